package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrBookNotFound is returned when a book id references nothing.
	ErrBookNotFound = errors.New("book not found")

	// ErrAuthorNotFound is returned when an author id references nothing.
	ErrAuthorNotFound = errors.New("author not found")

	// ErrReservationNotFound is returned when a reservation id references nothing.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrBookAlreadyReserved is returned when a book already has an unexpired
	// ACTIVE reservation. It is terminal for the call; the coordinator never
	// retries it.
	ErrBookAlreadyReserved = errors.New("book already has an active reservation")

	// ErrStaleVersion is returned when a conditional write lost against a
	// concurrent writer. Callers may retry after re-reading.
	ErrStaleVersion = errors.New("resource was modified by another request")

	// ErrLockWaitTimeout is returned when the exclusive lock on the active
	// reservation row could not be acquired within the configured bound.
	// Distinct from conflicts: a timed-out call may simply be retried.
	ErrLockWaitTimeout = errors.New("timed out waiting for reservation lock")

	// ErrDuplicateISBN is returned when creating or updating a book would
	// collide with an existing ISBN.
	ErrDuplicateISBN = errors.New("isbn already exists")

	// ErrBookHasReservations is returned when deleting a book that any
	// reservation, in any status, still references.
	ErrBookHasReservations = errors.New("book is referenced by reservations")

	// ErrAuthorHasBooks is returned when deleting an author still linked to books.
	ErrAuthorHasBooks = errors.New("author is referenced by books")

	// ErrInvalidHolderName is returned when the holder name is empty or too long.
	ErrInvalidHolderName = errors.New("holder name must be non-empty and at most 100 characters")

	// ErrBlankSearchQuery is returned when a search query is empty after sanitization.
	ErrBlankSearchQuery = errors.New("search query must not be blank")

	// ErrInvalidReservationStatus is returned when a status filter value is
	// not one of ACTIVE, CANCELLED, EXPIRED.
	ErrInvalidReservationStatus = errors.New("invalid reservation status")

	// ErrInvalidBookTitle is returned when a book title is empty or too long.
	ErrInvalidBookTitle = errors.New("book title must be non-empty and at most 255 characters")

	// ErrInvalidISBN is returned when an ISBN is empty or too long.
	ErrInvalidISBN = errors.New("isbn must be non-empty and at most 13 characters")

	// ErrInvalidAuthorName is returned when an author name part is empty or too long.
	ErrInvalidAuthorName = errors.New("author names must be non-empty and at most 100 characters")
)

// ReservationStateError reports a cancel attempt on a reservation that is not
// ACTIVE. It carries the current status for diagnostics and matches
// errors.Is(err, ErrInvalidReservationState).
type ReservationStateError struct {
	ID     uuid.UUID
	Status ReservationStatus
}

// ErrInvalidReservationState is the sentinel all ReservationStateError values unwrap to.
var ErrInvalidReservationState = errors.New("reservation is not in a cancellable state")

func (e *ReservationStateError) Error() string {
	return fmt.Sprintf("reservation %s cannot be cancelled: status is %s", e.ID, e.Status)
}

func (e *ReservationStateError) Unwrap() error {
	return ErrInvalidReservationState
}
