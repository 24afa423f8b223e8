package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReservationTTL is the fixed duration added to the creation time to compute
// the expiry of a new reservation.
const ReservationTTL = 14 * 24 * time.Hour

// MaxHolderNameLength bounds the free-text holder name, matching the column width.
const MaxHolderNameLength = 100

// ReservationStatus is the lifecycle state of a reservation, stored as its
// literal name so the column stays human-readable.
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "ACTIVE"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
)

// IsValid reports whether s is one of the known lifecycle states.
func (s ReservationStatus) IsValid() bool {
	switch s {
	case ReservationStatusActive, ReservationStatusCancelled, ReservationStatusExpired:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s permits no further transitions.
// CANCELLED and EXPIRED are one-way states; only ACTIVE rows ever change.
func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationStatusCancelled || s == ReservationStatusExpired
}

// Reservation is a time-bounded exclusive hold on a book by a named holder.
//
// At most one ACTIVE reservation may exist per book at any committed state.
// That invariant is owned by the partial unique index on
// (book_id) WHERE status = 'ACTIVE'; the coordinator's row lock only turns a
// late constraint violation into an earlier, friendlier conflict.
//
// Reservations are never deleted. Cancelled and expired rows are retained
// indefinitely as history.
type Reservation struct {
	ID          uuid.UUID
	BookID      uuid.UUID
	HolderName  string
	Status      ReservationStatus
	ReservedAt  time.Time
	ExpiresAt   time.Time
	CancelledAt *time.Time
	Version     int64
}

// IsExpiredAt reports whether the reservation's expiry has passed at the given
// instant. It does not consult Status: an ACTIVE row with a past expiry stays
// ACTIVE in storage until the next create call touches it (lazy expiry).
func (r Reservation) IsExpiredAt(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// ReservationFilter narrows a reservation listing. Nil fields match everything.
type ReservationFilter struct {
	BookID     *uuid.UUID
	HolderName *string
	Status     *ReservationStatus
}
