package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okrause/shelfmark/internal/domain"
)

const authorsTable = "authors"

// AuthorRepository is the durable author store.
type AuthorRepository struct {
	pool *pgxpool.Pool
}

// NewAuthorRepository creates an author store on the given pool.
func NewAuthorRepository(pool *pgxpool.Pool) *AuthorRepository {
	return &AuthorRepository{pool: pool}
}

// GetByID reads one author.
func (r *AuthorRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Author, error) {
	const query = `SELECT id, first_name, last_name, bio, created_at, updated_at FROM authors WHERE id = $1`

	var a domain.Author
	err := r.queryRow(ctx, query, id).Scan(&a.ID, &a.FirstName, &a.LastName, &a.Bio, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Author{}, domain.ErrAuthorNotFound
		}
		return domain.Author{}, fmt.Errorf("get author: %w", err)
	}

	return a, nil
}

// Insert persists a new author.
func (r *AuthorRepository) Insert(ctx context.Context, a domain.Author) error {
	const stmt = `
INSERT INTO authors (id, first_name, last_name, bio, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.exec(ctx, stmt, a.ID, a.FirstName, a.LastName, a.Bio, a.CreatedAt, a.UpdatedAt); err != nil {
		return fmt.Errorf("insert author: %w", err)
	}

	return nil
}

// Update writes an author back.
func (r *AuthorRepository) Update(ctx context.Context, a domain.Author) error {
	const stmt = `
UPDATE authors
SET first_name = $1, last_name = $2, bio = $3, updated_at = $4
WHERE id = $5`

	tag, err := r.exec(ctx, stmt, a.FirstName, a.LastName, a.Bio, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update author: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAuthorNotFound
	}

	return nil
}

// Delete removes an author. The link table restricts deletion while any book
// still references the author.
func (r *AuthorRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.exec(ctx, `DELETE FROM authors WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrAuthorHasBooks
		}
		return fmt.Errorf("delete author: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAuthorNotFound
	}

	return nil
}

// List returns one page of authors ordered by name.
func (r *AuthorRepository) List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Author], error) {
	var empty domain.Page[domain.Author]
	page = page.Normalized()

	var total int64
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM authors`).Scan(&total); err != nil {
		return empty, fmt.Errorf("count authors: %w", err)
	}

	listSQL, _, err := goqu.Dialect(dialectPostgres).
		From(authorsTable).
		Select("id", "first_name", "last_name", "bio", "created_at", "updated_at").
		Order(goqu.I("last_name").Asc(), goqu.I("first_name").Asc(), goqu.I("id").Asc()).
		Limit(uint(page.Size)).
		Offset(uint(page.Offset())).
		ToSQL()
	if err != nil {
		return empty, fmt.Errorf("build author list query: %w", err)
	}

	rows, err := r.query(ctx, listSQL)
	if err != nil {
		return empty, fmt.Errorf("list authors: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Author, 0, page.Size)
	for rows.Next() {
		var a domain.Author
		if err := rows.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Bio, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return empty, fmt.Errorf("scan author row: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return empty, fmt.Errorf("iterate authors: %w", err)
	}

	return domain.NewPage(items, page, total), nil
}

func (r *AuthorRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *AuthorRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *AuthorRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
