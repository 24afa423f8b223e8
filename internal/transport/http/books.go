package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/okrause/shelfmark/internal/app"
	"github.com/okrause/shelfmark/internal/domain"
)

// BookAPI is the book catalog surface the handlers need.
type BookAPI interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Book, error)
	List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Book], error)
	Create(ctx context.Context, in app.CreateBookInput) (domain.Book, error)
	Update(ctx context.Context, id uuid.UUID, in app.UpdateBookInput) (domain.Book, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type bookHandlers struct {
	svc BookAPI
}

type createBookRequest struct {
	Title         string   `json:"title"`
	ISBN          string   `json:"isbn"`
	Description   string   `json:"description"`
	PublishedYear *int     `json:"published_year"`
	AuthorIDs     []string `json:"author_ids"`
}

type updateBookRequest struct {
	Title         *string  `json:"title"`
	ISBN          *string  `json:"isbn"`
	Description   *string  `json:"description"`
	PublishedYear *int     `json:"published_year"`
	AuthorIDs     []string `json:"author_ids"`
}

type authorSummary struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type bookResponse struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	ISBN          string          `json:"isbn"`
	Description   string          `json:"description"`
	PublishedYear *int            `json:"published_year,omitempty"`
	Authors       []authorSummary `json:"authors"`
	Version       int64           `json:"version"`
}

func toBookResponse(b domain.Book) bookResponse {
	authors := make([]authorSummary, 0, len(b.Authors))
	for _, a := range b.Authors {
		authors = append(authors, authorSummary{
			ID:        a.ID.String(),
			FirstName: a.FirstName,
			LastName:  a.LastName,
		})
	}

	return bookResponse{
		ID:            b.ID.String(),
		Title:         b.Title,
		ISBN:          b.ISBN,
		Description:   b.Description,
		PublishedYear: b.PublishedYear,
		Authors:       authors,
		Version:       b.Version,
	}
}

func parseAuthorIDs(raw []string) ([]uuid.UUID, bool) {
	if raw == nil {
		return nil, true
	}

	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, false
		}
		ids = append(ids, id)
	}

	return ids, true
}

func (h *bookHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
		return
	}

	authorIDs, ok := parseAuthorIDs(req.AuthorIDs)
	if !ok {
		writeError(w, http.StatusBadRequest, codeInvalidID, "author_ids must be valid uuids")
		return
	}

	book, err := h.svc.Create(r.Context(), app.CreateBookInput{
		Title:         req.Title,
		ISBN:          req.ISBN,
		Description:   req.Description,
		PublishedYear: req.PublishedYear,
		AuthorIDs:     authorIDs,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookResponse(book))
}

func (h *bookHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidID, "book id must be a valid uuid")
		return
	}

	var req updateBookRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
		return
	}

	authorIDs, ok := parseAuthorIDs(req.AuthorIDs)
	if !ok {
		writeError(w, http.StatusBadRequest, codeInvalidID, "author_ids must be valid uuids")
		return
	}

	book, err := h.svc.Update(r.Context(), id, app.UpdateBookInput{
		Title:         req.Title,
		ISBN:          req.ISBN,
		Description:   req.Description,
		PublishedYear: req.PublishedYear,
		AuthorIDs:     authorIDs,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookResponse(book))
}

func (h *bookHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidID, "book id must be a valid uuid")
		return
	}

	book, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookResponse(book))
}

func (h *bookHandlers) list(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.List(r.Context(), pageRequestFromQuery(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPageResponse(page, toBookResponse))
}

func (h *bookHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidID, "book id must be a valid uuid")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
