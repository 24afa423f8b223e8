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

const (
	booksTable   = "books"
	booksISBNIdx = "books_isbn_idx"
)

const bookColumns = `id, title, isbn, description, published_year, version, created_at, updated_at`

// BookRepository is the durable book catalog store.
type BookRepository struct {
	pool *pgxpool.Pool
}

// NewBookRepository creates a book store on the given pool.
func NewBookRepository(pool *pgxpool.Pool) *BookRepository {
	return &BookRepository{pool: pool}
}

// WithTx runs fn inside a single transaction.
func (r *BookRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// GetByID reads one book with its authors.
func (r *BookRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	book, err := scanBook(r.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Book{}, domain.ErrBookNotFound
		}
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}

	byBook, err := r.authorsForBooks(ctx, []uuid.UUID{book.ID})
	if err != nil {
		return domain.Book{}, err
	}
	book.Authors = byBook[book.ID]

	return book, nil
}

// Insert persists a new book and its author links. An ISBN collision is
// translated to domain.ErrDuplicateISBN.
func (r *BookRepository) Insert(ctx context.Context, book domain.Book) error {
	return withTx(ctx, r.pool, func(txCtx context.Context) error {
		const stmt = `
INSERT INTO books (id, title, isbn, description, published_year, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

		_, err := r.exec(txCtx, stmt,
			book.ID,
			book.Title,
			book.ISBN,
			book.Description,
			book.PublishedYear,
			book.Version,
			book.CreatedAt,
			book.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err, booksISBNIdx) {
				return domain.ErrDuplicateISBN
			}
			return fmt.Errorf("insert book: %w", err)
		}

		return r.replaceAuthorLinks(txCtx, book.ID, book.Authors)
	})
}

// Update writes the book back conditioned on the version it was read at and
// replaces its author links. Zero rows affected means a concurrent writer
// changed the book: domain.ErrStaleVersion.
func (r *BookRepository) Update(ctx context.Context, book domain.Book) error {
	return withTx(ctx, r.pool, func(txCtx context.Context) error {
		const stmt = `
UPDATE books
SET title = $1, isbn = $2, description = $3, published_year = $4, version = version + 1, updated_at = $5
WHERE id = $6 AND version = $7`

		tag, err := r.exec(txCtx, stmt,
			book.Title,
			book.ISBN,
			book.Description,
			book.PublishedYear,
			book.UpdatedAt,
			book.ID,
			book.Version,
		)
		if err != nil {
			if isUniqueViolation(err, booksISBNIdx) {
				return domain.ErrDuplicateISBN
			}
			return fmt.Errorf("update book: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrStaleVersion
		}

		return r.replaceAuthorLinks(txCtx, book.ID, book.Authors)
	})
}

// Delete removes a book. The FK from reservations is delete-restricted, so a
// book with any reservation history cannot be removed.
func (r *BookRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrBookHasReservations
		}
		return fmt.Errorf("delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookNotFound
	}

	return nil
}

// List returns one page of books with their authors, newest first.
func (r *BookRepository) List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Book], error) {
	var empty domain.Page[domain.Book]
	page = page.Normalized()

	var total int64
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM books`).Scan(&total); err != nil {
		return empty, fmt.Errorf("count books: %w", err)
	}

	listSQL, _, err := goqu.Dialect(dialectPostgres).
		From(booksTable).
		Select("id", "title", "isbn", "description", "published_year", "version", "created_at", "updated_at").
		Order(goqu.I("created_at").Desc(), goqu.I("id").Asc()).
		Limit(uint(page.Size)).
		Offset(uint(page.Offset())).
		ToSQL()
	if err != nil {
		return empty, fmt.Errorf("build book list query: %w", err)
	}

	rows, err := r.query(ctx, listSQL)
	if err != nil {
		return empty, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Book, 0, page.Size)
	ids := make([]uuid.UUID, 0, page.Size)
	for rows.Next() {
		book, scanErr := scanBook(rows)
		if scanErr != nil {
			return empty, fmt.Errorf("scan book row: %w", scanErr)
		}
		items = append(items, book)
		ids = append(ids, book.ID)
	}
	if err := rows.Err(); err != nil {
		return empty, fmt.Errorf("iterate books: %w", err)
	}

	byBook, err := r.authorsForBooks(ctx, ids)
	if err != nil {
		return empty, err
	}
	for i := range items {
		items[i].Authors = byBook[items[i].ID]
	}

	return domain.NewPage(items, page, total), nil
}

// GetAuthorsByIDs resolves authors for book creation and update. The result
// preserves the requested order; missing ids are simply absent.
func (r *BookRepository) GetAuthorsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Author, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const query = `SELECT id, first_name, last_name, bio, created_at, updated_at FROM authors WHERE id = ANY($1)`

	rows, err := r.query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get authors by ids: %w", err)
	}
	defer rows.Close()

	found := make(map[uuid.UUID]domain.Author, len(ids))
	for rows.Next() {
		var a domain.Author
		if err := rows.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Bio, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan author row: %w", err)
		}
		found[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authors: %w", err)
	}

	authors := make([]domain.Author, 0, len(found))
	for _, id := range ids {
		if a, ok := found[id]; ok {
			authors = append(authors, a)
		}
	}

	return authors, nil
}

func (r *BookRepository) replaceAuthorLinks(ctx context.Context, bookID uuid.UUID, authors []domain.Author) error {
	if _, err := r.exec(ctx, `DELETE FROM book_authors WHERE book_id = $1`, bookID); err != nil {
		return fmt.Errorf("clear author links: %w", err)
	}

	for _, a := range authors {
		if _, err := r.exec(ctx, `INSERT INTO book_authors (book_id, author_id) VALUES ($1, $2)`, bookID, a.ID); err != nil {
			return fmt.Errorf("link author: %w", err)
		}
	}

	return nil
}

func (r *BookRepository) authorsForBooks(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID][]domain.Author, error) {
	if len(bookIDs) == 0 {
		return nil, nil
	}

	const query = `
SELECT ba.book_id, a.id, a.first_name, a.last_name, a.bio, a.created_at, a.updated_at
FROM book_authors ba
JOIN authors a ON a.id = ba.author_id
WHERE ba.book_id = ANY($1)
ORDER BY a.last_name, a.first_name`

	rows, err := r.query(ctx, query, bookIDs)
	if err != nil {
		return nil, fmt.Errorf("load book authors: %w", err)
	}
	defer rows.Close()

	byBook := make(map[uuid.UUID][]domain.Author)
	for rows.Next() {
		var bookID uuid.UUID
		var a domain.Author
		if err := rows.Scan(&bookID, &a.ID, &a.FirstName, &a.LastName, &a.Bio, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan book author row: %w", err)
		}
		byBook[bookID] = append(byBook[bookID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate book authors: %w", err)
	}

	return byBook, nil
}

func scanBook(row pgx.Row) (domain.Book, error) {
	var b domain.Book
	err := row.Scan(
		&b.ID,
		&b.Title,
		&b.ISBN,
		&b.Description,
		&b.PublishedYear,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

func (r *BookRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *BookRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *BookRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
