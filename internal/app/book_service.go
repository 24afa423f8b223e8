package app

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/okrause/shelfmark/internal/clock"
	"github.com/okrause/shelfmark/internal/domain"
)

// BookStore is the durable book catalog the BookService drives.
type BookStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Book, error)
	Insert(ctx context.Context, book domain.Book) error
	Update(ctx context.Context, book domain.Book) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Book], error)
	GetAuthorsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Author, error)
}

// BookService implements catalog CRUD for books. It also serves as the
// Catalog collaborator the reservation coordinator consults.
type BookService struct {
	store BookStore
	clock clock.Clock
}

// NewBookService creates a book service.
func NewBookService(store BookStore, clk clock.Clock) *BookService {
	return &BookService{store: store, clock: clk}
}

// CreateBookInput carries the fields for a new catalog entry.
type CreateBookInput struct {
	Title         string
	ISBN          string
	Description   string
	PublishedYear *int
	AuthorIDs     []uuid.UUID
}

// UpdateBookInput carries a partial update; nil fields stay unchanged.
type UpdateBookInput struct {
	Title         *string
	ISBN          *string
	Description   *string
	PublishedYear *int
	AuthorIDs     []uuid.UUID
}

// GetByID reads one book with its authors.
func (s *BookService) GetByID(ctx context.Context, id uuid.UUID) (domain.Book, error) {
	return s.store.GetByID(ctx, id)
}

// List returns one page of the catalog.
func (s *BookService) List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Book], error) {
	return s.store.List(ctx, page)
}

// Create adds a book. Every referenced author must exist; an ISBN collision
// fails with ErrDuplicateISBN.
func (s *BookService) Create(ctx context.Context, in CreateBookInput) (domain.Book, error) {
	if err := validateBookFields(in.Title, in.ISBN); err != nil {
		return domain.Book{}, err
	}

	authors, err := s.resolveAuthors(ctx, in.AuthorIDs)
	if err != nil {
		return domain.Book{}, err
	}

	now := s.clock.Now()
	book := domain.Book{
		ID:            uuid.New(),
		Title:         strings.TrimSpace(in.Title),
		ISBN:          strings.TrimSpace(in.ISBN),
		Description:   in.Description,
		PublishedYear: in.PublishedYear,
		Authors:       authors,
		Version:       0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Insert(ctx, book); err != nil {
		return domain.Book{}, err
	}

	return book, nil
}

// Update applies a partial update, guarded by the book's optimistic version:
// a concurrent writer surfaces as ErrStaleVersion.
func (s *BookService) Update(ctx context.Context, id uuid.UUID, in UpdateBookInput) (domain.Book, error) {
	book, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}

	if in.Title != nil {
		book.Title = strings.TrimSpace(*in.Title)
	}
	if in.ISBN != nil {
		book.ISBN = strings.TrimSpace(*in.ISBN)
	}
	if in.Description != nil {
		book.Description = *in.Description
	}
	if in.PublishedYear != nil {
		book.PublishedYear = in.PublishedYear
	}

	if err := validateBookFields(book.Title, book.ISBN); err != nil {
		return domain.Book{}, err
	}

	if in.AuthorIDs != nil {
		authors, err := s.resolveAuthors(ctx, in.AuthorIDs)
		if err != nil {
			return domain.Book{}, err
		}
		book.Authors = authors
	}

	book.UpdatedAt = s.clock.Now()

	if err := s.store.Update(ctx, book); err != nil {
		return domain.Book{}, err
	}

	book.Version++

	return book, nil
}

// Delete removes a book. Restricted while any reservation, in any status,
// references it.
func (s *BookService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

func (s *BookService) resolveAuthors(ctx context.Context, ids []uuid.UUID) ([]domain.Author, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	authors, err := s.store.GetAuthorsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(authors) != len(ids) {
		return nil, domain.ErrAuthorNotFound
	}

	return authors, nil
}

func validateBookFields(title, isbn string) error {
	title = strings.TrimSpace(title)
	isbn = strings.TrimSpace(isbn)

	if title == "" || len(title) > 255 {
		return domain.ErrInvalidBookTitle
	}
	if isbn == "" || len(isbn) > 13 {
		return domain.ErrInvalidISBN
	}

	return nil
}
