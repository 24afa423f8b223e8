package app

import (
	"context"
	"strings"

	"github.com/okrause/shelfmark/internal/domain"
)

const maxSearchQueryLength = 500

// SearchStore runs the ranked full-text query.
type SearchStore interface {
	Search(ctx context.Context, query string, page domain.PageRequest) (domain.Page[domain.SearchResult], error)
}

// SearchService sanitizes queries and delegates ranking to the store.
type SearchService struct {
	store SearchStore
}

// NewSearchService creates a search service.
func NewSearchService(store SearchStore) *SearchService {
	return &SearchService{store: store}
}

// Search returns one page of ranked catalog hits for the raw user query.
// A query that is blank after sanitization fails with ErrBlankSearchQuery.
func (s *SearchService) Search(ctx context.Context, rawQuery string, page domain.PageRequest) (domain.Page[domain.SearchResult], error) {
	query := SanitizeQuery(rawQuery)
	if query == "" {
		return domain.Page[domain.SearchResult]{}, domain.ErrBlankSearchQuery
	}

	return s.store.Search(ctx, query, page)
}

// SanitizeQuery trims the raw query, caps it at 500 characters, and strips
// null bytes and control characters other than tab and newline.
func SanitizeQuery(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) > maxSearchQueryLength {
		trimmed = trimmed[:maxSearchQueryLength]
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, c := range trimmed {
		if c == '\t' || c == '\n' || c >= 0x20 {
			b.WriteRune(c)
		}
	}

	return strings.TrimSpace(b.String())
}
