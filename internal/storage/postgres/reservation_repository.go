package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okrause/shelfmark/internal/domain"
)

const (
	reservationsTable    = "reservations"
	activeReservationIdx = "reservations_active_book_idx"
	dialectPostgres      = "postgres"
)

const reservationColumns = `id, book_id, holder_name, status, reserved_at, expires_at, cancelled_at, version`

// ReservationRepository is the durable reservation store. Reservations are
// inserted and conditionally updated, never deleted.
type ReservationRepository struct {
	pool            *pgxpool.Pool
	lockWaitTimeout time.Duration
}

const defaultLockWaitTimeout = 5 * time.Second

// NewReservationRepository creates a reservation store on the given pool.
func NewReservationRepository(pool *pgxpool.Pool, opts ...ReservationRepositoryOption) *ReservationRepository {
	repo := &ReservationRepository{
		pool:            pool,
		lockWaitTimeout: defaultLockWaitTimeout,
	}

	for _, opt := range opts {
		opt(repo)
	}

	return repo
}

// ReservationRepositoryOption configures a ReservationRepository.
type ReservationRepositoryOption func(*ReservationRepository)

// WithLockWaitTimeout bounds how long FindActiveForUpdate blocks on a locked row.
func WithLockWaitTimeout(d time.Duration) ReservationRepositoryOption {
	return func(r *ReservationRepository) {
		if d > 0 {
			r.lockWaitTimeout = d
		}
	}
}

// WithTx runs fn inside a single transaction. Nested calls join the
// transaction already carried by the context.
func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// FindActiveForUpdate reads the at-most-one ACTIVE reservation for a book and
// takes an exclusive row lock on it, blocking competing creators until the
// surrounding transaction ends. The wait is bounded by the configured lock
// timeout; exceeding it returns domain.ErrLockWaitTimeout.
//
// Returns (nil, nil) when the book has no ACTIVE reservation. Must be called
// inside WithTx: SET LOCAL and FOR UPDATE are meaningless outside one.
func (r *ReservationRepository) FindActiveForUpdate(ctx context.Context, bookID uuid.UUID) (*domain.Reservation, error) {
	tx := txFromContext(ctx)
	if tx == nil {
		return nil, errors.New("FindActiveForUpdate requires a transaction")
	}

	lockTimeout := fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, r.lockWaitTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, lockTimeout); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	query := `SELECT ` + reservationColumns + `
FROM reservations
WHERE book_id = $1 AND status = $2
FOR UPDATE`

	res, err := scanReservation(tx.QueryRow(ctx, query, bookID, domain.ReservationStatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isLockNotAvailable(err) {
			return nil, domain.ErrLockWaitTimeout
		}
		return nil, fmt.Errorf("find active reservation for update: %w", err)
	}

	return &res, nil
}

// Insert persists a new reservation. A violation of the partial unique index
// on (book_id) WHERE status='ACTIVE' means another writer won a race the row
// lock did not cover; it is translated to domain.ErrBookAlreadyReserved.
func (r *ReservationRepository) Insert(ctx context.Context, res domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, book_id, holder_name, status, reserved_at, expires_at, cancelled_at, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		res.ID,
		res.BookID,
		res.HolderName,
		res.Status,
		res.ReservedAt,
		res.ExpiresAt,
		res.CancelledAt,
		res.Version,
	)
	if err != nil {
		if isUniqueViolation(err, activeReservationIdx) {
			return domain.ErrBookAlreadyReserved
		}
		return fmt.Errorf("insert reservation: %w", err)
	}

	return nil
}

// MarkExpired flushes the terminal ACTIVE -> EXPIRED transition for a stale
// row, conditioned on the version read under the lock. Zero rows affected
// means a concurrent writer got there first.
func (r *ReservationRepository) MarkExpired(ctx context.Context, id uuid.UUID, version int64) error {
	const stmt = `
UPDATE reservations
SET status = $1, version = version + 1
WHERE id = $2 AND version = $3`

	tag, err := r.exec(ctx, stmt, domain.ReservationStatusExpired, id, version)
	if err != nil {
		return fmt.Errorf("mark reservation expired: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleVersion
	}

	return nil
}

// MarkCancelled performs the compare-and-swap ACTIVE -> CANCELLED transition.
// The write succeeds only if the version read is still the version stored;
// otherwise domain.ErrStaleVersion is returned and the caller may re-read and
// retry.
func (r *ReservationRepository) MarkCancelled(ctx context.Context, id uuid.UUID, cancelledAt time.Time, version int64) error {
	const stmt = `
UPDATE reservations
SET status = $1, cancelled_at = $2, version = version + 1
WHERE id = $3 AND version = $4`

	tag, err := r.exec(ctx, stmt, domain.ReservationStatusCancelled, cancelledAt, id, version)
	if err != nil {
		return fmt.Errorf("mark reservation cancelled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleVersion
	}

	return nil
}

// GetByID reads one reservation without locking.
func (r *ReservationRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	res, err := scanReservation(r.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}

	return res, nil
}

// List returns one page of reservations matching the filter, newest first.
// It is a pure read: no locking, and expiry is never recomputed here — a row
// can list as ACTIVE with a past expires_at until the next create touches it.
func (r *ReservationRepository) List(ctx context.Context, filter domain.ReservationFilter, page domain.PageRequest) (domain.Page[domain.Reservation], error) {
	var empty domain.Page[domain.Reservation]
	page = page.Normalized()

	where := make([]goqu.Expression, 0, 3)
	if filter.BookID != nil {
		where = append(where, goqu.C("book_id").Eq(filter.BookID.String()))
	}
	if filter.HolderName != nil {
		where = append(where, goqu.C("holder_name").Eq(*filter.HolderName))
	}
	if filter.Status != nil {
		where = append(where, goqu.C("status").Eq(string(*filter.Status)))
	}

	countSQL, _, err := goqu.Dialect(dialectPostgres).
		From(reservationsTable).
		Select(goqu.COUNT("*")).
		Where(where...).
		ToSQL()
	if err != nil {
		return empty, fmt.Errorf("build reservation count query: %w", err)
	}

	var total int64
	if err := r.queryRow(ctx, countSQL).Scan(&total); err != nil {
		return empty, fmt.Errorf("count reservations: %w", err)
	}

	listSQL, _, err := goqu.Dialect(dialectPostgres).
		From(reservationsTable).
		Select("id", "book_id", "holder_name", "status", "reserved_at", "expires_at", "cancelled_at", "version").
		Where(where...).
		Order(goqu.I("reserved_at").Desc(), goqu.I("id").Asc()).
		Limit(uint(page.Size)).
		Offset(uint(page.Offset())).
		ToSQL()
	if err != nil {
		return empty, fmt.Errorf("build reservation list query: %w", err)
	}

	rows, err := r.query(ctx, listSQL)
	if err != nil {
		return empty, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Reservation, 0, page.Size)
	for rows.Next() {
		res, scanErr := scanReservation(rows)
		if scanErr != nil {
			return empty, fmt.Errorf("scan reservation row: %w", scanErr)
		}
		items = append(items, res)
	}
	if err := rows.Err(); err != nil {
		return empty, fmt.Errorf("iterate reservations: %w", err)
	}

	return domain.NewPage(items, page, total), nil
}

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(
		&res.ID,
		&res.BookID,
		&res.HolderName,
		&res.Status,
		&res.ReservedAt,
		&res.ExpiresAt,
		&res.CancelledAt,
		&res.Version,
	)
	return res, err
}

func (r *ReservationRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ReservationRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *ReservationRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
