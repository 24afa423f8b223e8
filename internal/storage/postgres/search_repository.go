package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // database/sql driver for the read-side handle

	"github.com/okrause/shelfmark/internal/domain"
)

// SearchRepository runs the ranked full-text catalog search. It is read-only
// and lives on its own sqlx handle rather than the transactional pgx pool.
type SearchRepository struct {
	db *sqlx.DB
}

// NewSearchRepository creates a search store on the given sqlx handle.
func NewSearchRepository(db *sqlx.DB) *SearchRepository {
	return &SearchRepository{db: db}
}

// OpenSearchDB opens a read-side database/sql handle for search queries.
func OpenSearchDB(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open search db: %w", err)
	}
	return db, nil
}

// The inner query ranks and pages whole books; only then are author rows
// joined back in, so LIMIT can never truncate a book's author list. A book
// still produces one outer row per author; rows are regrouped after scanning.
const searchQuery = `
WITH ranked AS (
  SELECT b.id,
         GREATEST(
           ts_rank(b.search_vector, plainto_tsquery('english', $1)),
           COALESCE(MAX(ts_rank(
             to_tsvector('english', COALESCE(a.first_name || ' ' || a.last_name, '')),
             plainto_tsquery('english', $1)
           )), 0)
         ) AS relevance_score
  FROM books b
  LEFT JOIN book_authors ba ON b.id = ba.book_id
  LEFT JOIN authors a ON ba.author_id = a.id
  WHERE b.search_vector @@ plainto_tsquery('english', $1)
     OR to_tsvector('english', COALESCE(a.first_name || ' ' || a.last_name, ''))
        @@ plainto_tsquery('english', $1)
  GROUP BY b.id
  ORDER BY relevance_score DESC, b.id ASC
  LIMIT $2 OFFSET $3
)
SELECT b.id, b.title, b.isbn, b.description, b.published_year,
       a.id AS author_id, a.first_name, a.last_name,
       r.relevance_score
FROM ranked r
JOIN books b ON b.id = r.id
LEFT JOIN book_authors ba ON b.id = ba.book_id
LEFT JOIN authors a ON ba.author_id = a.id
ORDER BY r.relevance_score DESC, b.id ASC`

const searchCountQuery = `
SELECT COUNT(DISTINCT b.id)
FROM books b
LEFT JOIN book_authors ba ON b.id = ba.book_id
LEFT JOIN authors a ON ba.author_id = a.id
WHERE b.search_vector @@ plainto_tsquery('english', $1)
   OR to_tsvector('english', COALESCE(a.first_name || ' ' || a.last_name, ''))
      @@ plainto_tsquery('english', $1)`

type searchRow struct {
	ID            uuid.UUID  `db:"id"`
	Title         string     `db:"title"`
	ISBN          string     `db:"isbn"`
	Description   string     `db:"description"`
	PublishedYear *int       `db:"published_year"`
	AuthorID      *uuid.UUID `db:"author_id"`
	FirstName     *string    `db:"first_name"`
	LastName      *string    `db:"last_name"`
	Score         float64    `db:"relevance_score"`
}

// Search returns one page of ranked hits for an already-sanitized query.
func (r *SearchRepository) Search(ctx context.Context, query string, page domain.PageRequest) (domain.Page[domain.SearchResult], error) {
	var empty domain.Page[domain.SearchResult]
	page = page.Normalized()

	var total int64
	if err := r.db.GetContext(ctx, &total, searchCountQuery, query); err != nil {
		return empty, fmt.Errorf("count search hits: %w", err)
	}
	if total == 0 {
		return domain.NewPage([]domain.SearchResult{}, page, 0), nil
	}

	rows, err := r.db.QueryxContext(ctx, searchQuery, query, page.Size, page.Offset())
	if err != nil {
		return empty, fmt.Errorf("search books: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// Group author rows under their book, keeping first-seen (rank) order.
	order := make([]uuid.UUID, 0, page.Size)
	hits := make(map[uuid.UUID]*domain.SearchResult, page.Size)

	for rows.Next() {
		var row searchRow
		if err := rows.StructScan(&row); err != nil {
			return empty, fmt.Errorf("scan search row: %w", err)
		}

		hit, seen := hits[row.ID]
		if !seen {
			hit = &domain.SearchResult{
				Book: domain.Book{
					ID:            row.ID,
					Title:         row.Title,
					ISBN:          row.ISBN,
					Description:   row.Description,
					PublishedYear: row.PublishedYear,
				},
				Score: row.Score,
			}
			hits[row.ID] = hit
			order = append(order, row.ID)
		}

		if row.AuthorID != nil {
			hit.Book.Authors = append(hit.Book.Authors, domain.Author{
				ID:        *row.AuthorID,
				FirstName: derefString(row.FirstName),
				LastName:  derefString(row.LastName),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return empty, fmt.Errorf("iterate search rows: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(order))
	for _, id := range order {
		results = append(results, *hits[id])
	}

	return domain.NewPage(results, page, total), nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
