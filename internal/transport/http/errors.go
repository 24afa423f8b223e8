package http

import (
	"errors"
	"net/http"

	"github.com/okrause/shelfmark/internal/domain"
)

const (
	codeBookNotFound        = "book_not_found"
	codeAuthorNotFound      = "author_not_found"
	codeReservationNotFound = "reservation_not_found"
	codeAlreadyReserved     = "already_reserved"
	codeInvalidState        = "invalid_state"
	codeStaleVersion        = "stale_version"
	codeLockWaitTimeout     = "lock_wait_timeout"
	codeDuplicateISBN       = "duplicate_isbn"
	codeBookHasReservations = "book_has_reservations"
	codeAuthorHasBooks      = "author_has_books"
	codeInvalidRequestBody  = "invalid_request_body"
	codeValidationFailed    = "validation_failed"
	codeInvalidID           = "invalid_id"
	codeInternalError       = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{Error: msg, Code: code})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps the service error taxonomy onto stable HTTP outcomes
// so clients can tell "you lost the race" (409) from "try again shortly"
// (503) from "this no longer exists" (404). Unanticipated errors surface as
// an opaque 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBookNotFound):
		writeError(w, http.StatusNotFound, codeBookNotFound, err.Error())
	case errors.Is(err, domain.ErrAuthorNotFound):
		writeError(w, http.StatusNotFound, codeAuthorNotFound, err.Error())
	case errors.Is(err, domain.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, codeReservationNotFound, err.Error())

	case errors.Is(err, domain.ErrBookAlreadyReserved):
		writeError(w, http.StatusConflict, codeAlreadyReserved, err.Error())
	case errors.Is(err, domain.ErrInvalidReservationState):
		writeError(w, http.StatusConflict, codeInvalidState, err.Error())
	case errors.Is(err, domain.ErrStaleVersion):
		writeError(w, http.StatusConflict, codeStaleVersion, err.Error())
	case errors.Is(err, domain.ErrDuplicateISBN):
		writeError(w, http.StatusConflict, codeDuplicateISBN, err.Error())
	case errors.Is(err, domain.ErrBookHasReservations):
		writeError(w, http.StatusConflict, codeBookHasReservations, err.Error())
	case errors.Is(err, domain.ErrAuthorHasBooks):
		writeError(w, http.StatusConflict, codeAuthorHasBooks, err.Error())

	case errors.Is(err, domain.ErrLockWaitTimeout):
		writeError(w, http.StatusServiceUnavailable, codeLockWaitTimeout, err.Error())

	case errors.Is(err, domain.ErrInvalidHolderName),
		errors.Is(err, domain.ErrInvalidBookTitle),
		errors.Is(err, domain.ErrInvalidISBN),
		errors.Is(err, domain.ErrInvalidAuthorName),
		errors.Is(err, domain.ErrBlankSearchQuery),
		errors.Is(err, domain.ErrInvalidReservationStatus):
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())

	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "an unexpected error occurred")
	}
}
