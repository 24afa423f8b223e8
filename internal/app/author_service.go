package app

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/okrause/shelfmark/internal/clock"
	"github.com/okrause/shelfmark/internal/domain"
)

// AuthorStore is the durable author collection the AuthorService drives.
type AuthorStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Author, error)
	Insert(ctx context.Context, a domain.Author) error
	Update(ctx context.Context, a domain.Author) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Author], error)
}

// AuthorService implements catalog CRUD for authors.
type AuthorService struct {
	store AuthorStore
	clock clock.Clock
}

// NewAuthorService creates an author service.
func NewAuthorService(store AuthorStore, clk clock.Clock) *AuthorService {
	return &AuthorService{store: store, clock: clk}
}

// CreateAuthorInput carries the fields for a new author.
type CreateAuthorInput struct {
	FirstName string
	LastName  string
	Bio       string
}

// UpdateAuthorInput carries a partial update; nil fields stay unchanged.
type UpdateAuthorInput struct {
	FirstName *string
	LastName  *string
	Bio       *string
}

// GetByID reads one author.
func (s *AuthorService) GetByID(ctx context.Context, id uuid.UUID) (domain.Author, error) {
	return s.store.GetByID(ctx, id)
}

// List returns one page of authors.
func (s *AuthorService) List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Author], error) {
	return s.store.List(ctx, page)
}

// Create adds an author.
func (s *AuthorService) Create(ctx context.Context, in CreateAuthorInput) (domain.Author, error) {
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if err := validateAuthorName(first, last); err != nil {
		return domain.Author{}, err
	}

	now := s.clock.Now()
	author := domain.Author{
		ID:        uuid.New(),
		FirstName: first,
		LastName:  last,
		Bio:       in.Bio,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Insert(ctx, author); err != nil {
		return domain.Author{}, err
	}

	return author, nil
}

// Update applies a partial update.
func (s *AuthorService) Update(ctx context.Context, id uuid.UUID, in UpdateAuthorInput) (domain.Author, error) {
	author, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Author{}, err
	}

	if in.FirstName != nil {
		author.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		author.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Bio != nil {
		author.Bio = *in.Bio
	}

	if err := validateAuthorName(author.FirstName, author.LastName); err != nil {
		return domain.Author{}, err
	}

	author.UpdatedAt = s.clock.Now()

	if err := s.store.Update(ctx, author); err != nil {
		return domain.Author{}, err
	}

	return author, nil
}

// Delete removes an author. Restricted while any book references them.
func (s *AuthorService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

func validateAuthorName(first, last string) error {
	if first == "" || len(first) > 100 || last == "" || len(last) > 100 {
		return domain.ErrInvalidAuthorName
	}
	return nil
}
