package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/okrause/shelfmark/internal/app"
	"github.com/okrause/shelfmark/internal/domain"
)

// AuthorAPI is the author catalog surface the handlers need.
type AuthorAPI interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Author, error)
	List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Author], error)
	Create(ctx context.Context, in app.CreateAuthorInput) (domain.Author, error)
	Update(ctx context.Context, id uuid.UUID, in app.UpdateAuthorInput) (domain.Author, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type authorHandlers struct {
	svc AuthorAPI
}

type createAuthorRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Bio       string `json:"bio"`
}

type updateAuthorRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
}

type authorResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Bio       string `json:"bio"`
}

func toAuthorResponse(a domain.Author) authorResponse {
	return authorResponse{
		ID:        a.ID.String(),
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Bio:       a.Bio,
	}
}

func (h *authorHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createAuthorRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
		return
	}

	author, err := h.svc.Create(r.Context(), app.CreateAuthorInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Bio:       req.Bio,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuthorResponse(author))
}

func (h *authorHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidID, "author id must be a valid uuid")
		return
	}

	var req updateAuthorRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
		return
	}

	author, err := h.svc.Update(r.Context(), id, app.UpdateAuthorInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Bio:       req.Bio,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthorResponse(author))
}

func (h *authorHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidID, "author id must be a valid uuid")
		return
	}

	author, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthorResponse(author))
}

func (h *authorHandlers) list(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.List(r.Context(), pageRequestFromQuery(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPageResponse(page, toAuthorResponse))
}

func (h *authorHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidID, "author id must be a valid uuid")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
