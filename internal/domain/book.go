package domain

import (
	"time"

	"github.com/google/uuid"
)

// Book is a catalog entry. ISBN is unique across the catalog.
// Version is an optimistic counter guarding concurrent updates.
type Book struct {
	ID            uuid.UUID
	Title         string
	ISBN          string
	Description   string
	PublishedYear *int
	Authors       []Author
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SearchResult is one ranked hit of a full-text catalog search.
type SearchResult struct {
	Book  Book
	Score float64
}
