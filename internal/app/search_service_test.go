package app_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okrause/shelfmark/internal/app"
	"github.com/okrause/shelfmark/internal/domain"
)

type fakeSearchStore struct {
	lastQuery string
	results   []domain.SearchResult
}

func (f *fakeSearchStore) Search(_ context.Context, query string, page domain.PageRequest) (domain.Page[domain.SearchResult], error) {
	f.lastQuery = query
	return domain.NewPage(f.results, page, int64(len(f.results))), nil
}

func Test_SearchService_Search_PassesSanitizedQuery(t *testing.T) {
	// arrange
	store := &fakeSearchStore{}
	svc := app.NewSearchService(store)

	// act
	_, err := svc.Search(context.Background(), "  left hand\x00 of darkness  ", domain.PageRequest{})

	// assert
	require.NoError(t, err)
	assert.Equal(t, "left hand of darkness", store.lastQuery)
}

func Test_SearchService_Search_WhenQueryIsBlank(t *testing.T) {
	svc := app.NewSearchService(&fakeSearchStore{})

	testCases := []struct {
		name  string
		query string
	}{
		{name: "empty", query: ""},
		{name: "whitespace only", query: "   "},
		{name: "control characters only", query: "\x00\x01\x02"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Search(context.Background(), tc.query, domain.PageRequest{})
			assert.ErrorIs(t, err, domain.ErrBlankSearchQuery)
		})
	}
}

func Test_SanitizeQuery(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: "dune", want: "dune"},
		{name: "trims whitespace", raw: "  dune  ", want: "dune"},
		{name: "strips null bytes", raw: "du\x00ne", want: "dune"},
		{name: "keeps tabs and newlines", raw: "du\tne\nmessiah", want: "du\tne\nmessiah"},
		{name: "caps length", raw: strings.Repeat("a", 600), want: strings.Repeat("a", 500)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, app.SanitizeQuery(tc.raw))
		})
	}
}
