package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okrause/shelfmark/internal/domain"
	"github.com/okrause/shelfmark/internal/storage/postgres"
	"github.com/okrause/shelfmark/migrations"
)

// testPool connects to the database named by TEST_DATABASE_URL and applies
// the migrations. Tests are skipped when the variable is unset, so the suite
// stays runnable without a database.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrations.Apply(context.Background(), pool))

	return pool
}

// insertTestBook creates a catalog row for reservations to reference. Each
// test gets its own book, so tests never interfere with each other.
func insertTestBook(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()

	id := uuid.New()
	now := time.Now().UTC()

	repo := postgres.NewBookRepository(pool)
	err := repo.Insert(context.Background(), domain.Book{
		ID:        id,
		Title:     "integration test book",
		ISBN:      id.String()[:13],
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)

	return id
}

func activeReservation(bookID uuid.UUID) domain.Reservation {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Reservation{
		ID:         uuid.New(),
		BookID:     bookID,
		HolderName: "Ada Lovelace",
		Status:     domain.ReservationStatusActive,
		ReservedAt: now,
		ExpiresAt:  now.Add(domain.ReservationTTL),
		Version:    0,
	}
}

func Test_ReservationRepository_InsertAndGetByID(t *testing.T) {
	// arrange
	pool := testPool(t)
	repo := postgres.NewReservationRepository(pool)
	bookID := insertTestBook(t, pool)
	res := activeReservation(bookID)

	// act
	err := repo.Insert(context.Background(), res)

	// assert
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, stored.ID)
	assert.Equal(t, res.BookID, stored.BookID)
	assert.Equal(t, domain.ReservationStatusActive, stored.Status)
	assert.True(t, res.ExpiresAt.Equal(stored.ExpiresAt))
	assert.Nil(t, stored.CancelledAt)
}

func Test_ReservationRepository_Insert_SecondActiveRowViolatesIndex(t *testing.T) {
	// arrange
	pool := testPool(t)
	repo := postgres.NewReservationRepository(pool)
	bookID := insertTestBook(t, pool)

	require.NoError(t, repo.Insert(context.Background(), activeReservation(bookID)))

	// act
	err := repo.Insert(context.Background(), activeReservation(bookID))

	// assert
	assert.ErrorIs(t, err, domain.ErrBookAlreadyReserved)
}

func Test_ReservationRepository_Insert_SecondTerminalRowIsAllowed(t *testing.T) {
	// arrange: the index is partial, so history rows never collide
	pool := testPool(t)
	repo := postgres.NewReservationRepository(pool)
	bookID := insertTestBook(t, pool)

	cancelled := activeReservation(bookID)
	cancelled.Status = domain.ReservationStatusCancelled
	require.NoError(t, repo.Insert(context.Background(), cancelled))

	// act
	err := repo.Insert(context.Background(), activeReservation(bookID))

	// assert
	assert.NoError(t, err)
}

func Test_ReservationRepository_MarkCancelled(t *testing.T) {
	// arrange
	pool := testPool(t)
	repo := postgres.NewReservationRepository(pool)
	bookID := insertTestBook(t, pool)
	res := activeReservation(bookID)
	require.NoError(t, repo.Insert(context.Background(), res))

	cancelledAt := time.Now().UTC().Truncate(time.Microsecond)

	// act
	err := repo.MarkCancelled(context.Background(), res.ID, cancelledAt, res.Version)

	// assert
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)
	assert.True(t, cancelledAt.Equal(*stored.CancelledAt))
	assert.Equal(t, res.Version+1, stored.Version)
}

func Test_ReservationRepository_MarkCancelled_WhenVersionIsStale(t *testing.T) {
	// arrange
	pool := testPool(t)
	repo := postgres.NewReservationRepository(pool)
	bookID := insertTestBook(t, pool)
	res := activeReservation(bookID)
	require.NoError(t, repo.Insert(context.Background(), res))

	// act
	err := repo.MarkCancelled(context.Background(), res.ID, time.Now().UTC(), res.Version+5)

	// assert
	assert.ErrorIs(t, err, domain.ErrStaleVersion)

	stored, getErr := repo.GetByID(context.Background(), res.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.ReservationStatusActive, stored.Status)
}

func Test_ReservationRepository_FindActiveForUpdate(t *testing.T) {
	// arrange
	pool := testPool(t)
	repo := postgres.NewReservationRepository(pool)
	bookID := insertTestBook(t, pool)
	res := activeReservation(bookID)
	require.NoError(t, repo.Insert(context.Background(), res))

	// act
	var found *domain.Reservation
	err := repo.WithTx(context.Background(), func(txCtx context.Context) error {
		var txErr error
		found, txErr = repo.FindActiveForUpdate(txCtx, bookID)
		return txErr
	})

	// assert
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, res.ID, found.ID)
}

func Test_ReservationRepository_FindActiveForUpdate_WhenNoActiveRow(t *testing.T) {
	// arrange
	pool := testPool(t)
	repo := postgres.NewReservationRepository(pool)
	bookID := insertTestBook(t, pool)

	// act
	var found *domain.Reservation
	err := repo.WithTx(context.Background(), func(txCtx context.Context) error {
		var txErr error
		found, txErr = repo.FindActiveForUpdate(txCtx, bookID)
		return txErr
	})

	// assert
	require.NoError(t, err)
	assert.Nil(t, found)
}

func Test_ReservationRepository_FindActiveForUpdate_OutsideTransaction(t *testing.T) {
	pool := testPool(t)
	repo := postgres.NewReservationRepository(pool)

	_, err := repo.FindActiveForUpdate(context.Background(), uuid.New())

	assert.Error(t, err)
}

func Test_ReservationRepository_FindActiveForUpdate_WhenRowIsLocked(t *testing.T) {
	// arrange: one transaction holds the row lock while a second, with a very
	// short lock timeout, tries to take it
	pool := testPool(t)
	repo := postgres.NewReservationRepository(pool, postgres.WithLockWaitTimeout(100*time.Millisecond))
	bookID := insertTestBook(t, pool)
	require.NoError(t, repo.Insert(context.Background(), activeReservation(bookID)))

	locked := make(chan struct{})
	release := make(chan struct{})
	holderDone := make(chan error, 1)

	go func() {
		holderDone <- repo.WithTx(context.Background(), func(txCtx context.Context) error {
			if _, err := repo.FindActiveForUpdate(txCtx, bookID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()

	<-locked

	// act
	err := repo.WithTx(context.Background(), func(txCtx context.Context) error {
		_, txErr := repo.FindActiveForUpdate(txCtx, bookID)
		return txErr
	})

	close(release)
	require.NoError(t, <-holderDone)

	// assert
	assert.ErrorIs(t, err, domain.ErrLockWaitTimeout)
}

func Test_ReservationRepository_List_FiltersByBookAndStatus(t *testing.T) {
	// arrange
	pool := testPool(t)
	repo := postgres.NewReservationRepository(pool)
	bookID := insertTestBook(t, pool)
	otherBookID := insertTestBook(t, pool)

	res := activeReservation(bookID)
	require.NoError(t, repo.Insert(context.Background(), res))
	require.NoError(t, repo.Insert(context.Background(), activeReservation(otherBookID)))

	status := domain.ReservationStatusActive

	// act
	page, err := repo.List(context.Background(),
		domain.ReservationFilter{BookID: &bookID, Status: &status},
		domain.PageRequest{})

	// assert
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, res.ID, page.Items[0].ID)
	assert.Equal(t, int64(1), page.TotalItems)
}
