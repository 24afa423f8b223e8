package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/okrause/shelfmark/internal/domain"
)

// ReservationAPI is the reservation coordinator surface the handlers need.
type ReservationAPI interface {
	Create(ctx context.Context, bookID uuid.UUID, holderName string) (domain.Reservation, error)
	Cancel(ctx context.Context, id uuid.UUID) (domain.Reservation, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Reservation, error)
	List(ctx context.Context, filter domain.ReservationFilter, page domain.PageRequest) (domain.Page[domain.Reservation], error)
}

type reservationHandlers struct {
	svc ReservationAPI
}

type createReservationRequest struct {
	BookID     string `json:"book_id"`
	HolderName string `json:"holder_name"`
}

type reservationResponse struct {
	ID          string     `json:"id"`
	BookID      string     `json:"book_id"`
	HolderName  string     `json:"holder_name"`
	Status      string     `json:"status"`
	ReservedAt  time.Time  `json:"reserved_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	Version     int64      `json:"version"`
}

func toReservationResponse(r domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:          r.ID.String(),
		BookID:      r.BookID.String(),
		HolderName:  r.HolderName,
		Status:      string(r.Status),
		ReservedAt:  r.ReservedAt,
		ExpiresAt:   r.ExpiresAt,
		CancelledAt: r.CancelledAt,
		Version:     r.Version,
	}
}

func (h *reservationHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
		return
	}

	bookID, err := uuid.Parse(req.BookID)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidID, "book_id must be a valid uuid")
		return
	}

	reservation, err := h.svc.Create(r.Context(), bookID, req.HolderName)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toReservationResponse(reservation))
}

func (h *reservationHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidID, "reservation id must be a valid uuid")
		return
	}

	reservation, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationResponse(reservation))
}

func (h *reservationHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidID, "reservation id must be a valid uuid")
		return
	}

	reservation, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationResponse(reservation))
}

func (h *reservationHandlers) list(w http.ResponseWriter, r *http.Request) {
	var filter domain.ReservationFilter

	if v := r.URL.Query().Get("book_id"); v != "" {
		bookID, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidID, "book_id must be a valid uuid")
			return
		}
		filter.BookID = &bookID
	}
	if v := r.URL.Query().Get("holder_name"); v != "" {
		filter.HolderName = &v
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.ReservationStatus(v)
		filter.Status = &status
	}

	page, err := h.svc.List(r.Context(), filter, pageRequestFromQuery(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPageResponse(page, toReservationResponse))
}
