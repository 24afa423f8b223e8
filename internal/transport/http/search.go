package http

import (
	"context"
	"net/http"

	"github.com/okrause/shelfmark/internal/domain"
)

// SearchAPI is the full-text search surface the handlers need.
type SearchAPI interface {
	Search(ctx context.Context, rawQuery string, page domain.PageRequest) (domain.Page[domain.SearchResult], error)
}

type searchHandlers struct {
	svc SearchAPI
}

type searchResultResponse struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	ISBN          string          `json:"isbn"`
	PublishedYear *int            `json:"published_year,omitempty"`
	Authors       []authorSummary `json:"authors"`
	Score         float64         `json:"relevance_score"`
}

func toSearchResultResponse(hit domain.SearchResult) searchResultResponse {
	authors := make([]authorSummary, 0, len(hit.Book.Authors))
	for _, a := range hit.Book.Authors {
		authors = append(authors, authorSummary{
			ID:        a.ID.String(),
			FirstName: a.FirstName,
			LastName:  a.LastName,
		})
	}

	return searchResultResponse{
		ID:            hit.Book.ID.String(),
		Title:         hit.Book.Title,
		ISBN:          hit.Book.ISBN,
		PublishedYear: hit.Book.PublishedYear,
		Authors:       authors,
		Score:         hit.Score,
	}
}

func (h *searchHandlers) search(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Search(r.Context(), r.URL.Query().Get("q"), pageRequestFromQuery(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPageResponse(page, toSearchResultResponse))
}
