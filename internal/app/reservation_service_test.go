package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okrause/shelfmark/internal/app"
	"github.com/okrause/shelfmark/internal/clock"
	"github.com/okrause/shelfmark/internal/domain"
)

type fakeTxKey struct{}

// fakeReservationStore is an in-memory ReservationStore. WithTx holds a mutex
// for the whole callback, mirroring the exclusive row lock the real store
// takes, so concurrent creates serialize the same way they do against
// Postgres.
type fakeReservationStore struct {
	mu           sync.Mutex
	reservations map[uuid.UUID]domain.Reservation

	findErr          error
	insertErr        error
	markCancelledErr error
}

func newFakeReservationStore() *fakeReservationStore {
	return &fakeReservationStore{reservations: make(map[uuid.UUID]domain.Reservation)}
}

func (f *fakeReservationStore) lockUnlessInTx(ctx context.Context) func() {
	if ctx.Value(fakeTxKey{}) != nil {
		return func() {}
	}
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *fakeReservationStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return fn(context.WithValue(ctx, fakeTxKey{}, true))
}

func (f *fakeReservationStore) FindActiveForUpdate(ctx context.Context, bookID uuid.UUID) (*domain.Reservation, error) {
	defer f.lockUnlessInTx(ctx)()

	if f.findErr != nil {
		return nil, f.findErr
	}

	for _, res := range f.reservations {
		if res.BookID == bookID && res.Status == domain.ReservationStatusActive {
			found := res
			return &found, nil
		}
	}

	return nil, nil
}

func (f *fakeReservationStore) Insert(ctx context.Context, res domain.Reservation) error {
	defer f.lockUnlessInTx(ctx)()

	if f.insertErr != nil {
		return f.insertErr
	}

	for _, existing := range f.reservations {
		if existing.BookID == res.BookID && existing.Status == domain.ReservationStatusActive {
			return domain.ErrBookAlreadyReserved
		}
	}

	f.reservations[res.ID] = res

	return nil
}

func (f *fakeReservationStore) MarkExpired(ctx context.Context, id uuid.UUID, version int64) error {
	defer f.lockUnlessInTx(ctx)()

	res, ok := f.reservations[id]
	if !ok || res.Version != version {
		return domain.ErrStaleVersion
	}

	res.Status = domain.ReservationStatusExpired
	res.Version++
	f.reservations[id] = res

	return nil
}

func (f *fakeReservationStore) MarkCancelled(ctx context.Context, id uuid.UUID, cancelledAt time.Time, version int64) error {
	defer f.lockUnlessInTx(ctx)()

	if f.markCancelledErr != nil {
		return f.markCancelledErr
	}

	res, ok := f.reservations[id]
	if !ok || res.Version != version {
		return domain.ErrStaleVersion
	}

	res.Status = domain.ReservationStatusCancelled
	res.CancelledAt = &cancelledAt
	res.Version++
	f.reservations[id] = res

	return nil
}

func (f *fakeReservationStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	defer f.lockUnlessInTx(ctx)()

	res, ok := f.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}

	return res, nil
}

func (f *fakeReservationStore) List(ctx context.Context, filter domain.ReservationFilter, page domain.PageRequest) (domain.Page[domain.Reservation], error) {
	defer f.lockUnlessInTx(ctx)()

	var items []domain.Reservation
	for _, res := range f.reservations {
		if filter.BookID != nil && res.BookID != *filter.BookID {
			continue
		}
		if filter.HolderName != nil && res.HolderName != *filter.HolderName {
			continue
		}
		if filter.Status != nil && res.Status != *filter.Status {
			continue
		}
		items = append(items, res)
	}

	return domain.NewPage(items, page, int64(len(items))), nil
}

type fakeCatalog struct {
	books map[uuid.UUID]domain.Book
}

func newFakeCatalog(bookIDs ...uuid.UUID) *fakeCatalog {
	books := make(map[uuid.UUID]domain.Book, len(bookIDs))
	for _, id := range bookIDs {
		books[id] = domain.Book{ID: id, Title: "some book"}
	}
	return &fakeCatalog{books: books}
}

func (f *fakeCatalog) GetByID(_ context.Context, id uuid.UUID) (domain.Book, error) {
	book, ok := f.books[id]
	if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return book, nil
}

func Test_ReservationService_Create_WhenBookIsFree(t *testing.T) {
	// arrange
	bookID := uuid.New()
	store := newFakeReservationStore()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc := app.NewReservationService(store, newFakeCatalog(bookID), clock.NewFixed(now))

	// act
	res, err := svc.Create(context.Background(), bookID, "Ada Lovelace")

	// assert
	require.NoError(t, err)
	assert.Equal(t, bookID, res.BookID)
	assert.Equal(t, "Ada Lovelace", res.HolderName)
	assert.Equal(t, domain.ReservationStatusActive, res.Status)
	assert.Equal(t, now, res.ReservedAt)
	assert.Equal(t, now.Add(domain.ReservationTTL), res.ExpiresAt)
	assert.Equal(t, int64(0), res.Version)

	stored, err := store.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, res, stored)
}

func Test_ReservationService_Create_WhenBookDoesNotExist(t *testing.T) {
	// arrange
	store := newFakeReservationStore()
	svc := app.NewReservationService(store, newFakeCatalog(), clock.NewSystem())

	// act
	_, err := svc.Create(context.Background(), uuid.New(), "Ada Lovelace")

	// assert
	assert.ErrorIs(t, err, domain.ErrBookNotFound)
	assert.Empty(t, store.reservations)
}

func Test_ReservationService_Create_WhenHolderNameIsInvalid(t *testing.T) {
	bookID := uuid.New()
	svc := app.NewReservationService(newFakeReservationStore(), newFakeCatalog(bookID), clock.NewSystem())

	testCases := []struct {
		name       string
		holderName string
	}{
		{name: "empty", holderName: ""},
		{name: "blank", holderName: "   "},
		{name: "too long", holderName: strings.Repeat("x", domain.MaxHolderNameLength+1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), bookID, tc.holderName)
			assert.ErrorIs(t, err, domain.ErrInvalidHolderName)
		})
	}
}

func Test_ReservationService_Create_TrimsHolderName(t *testing.T) {
	// arrange
	bookID := uuid.New()
	svc := app.NewReservationService(newFakeReservationStore(), newFakeCatalog(bookID), clock.NewSystem())

	// act
	res, err := svc.Create(context.Background(), bookID, "  Ada Lovelace  ")

	// assert
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", res.HolderName)
}

func Test_ReservationService_Create_WhenBookHasLiveReservation(t *testing.T) {
	// arrange
	bookID := uuid.New()
	store := newFakeReservationStore()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc := app.NewReservationService(store, newFakeCatalog(bookID), clock.NewFixed(now))

	first, err := svc.Create(context.Background(), bookID, "Ada Lovelace")
	require.NoError(t, err)

	// act
	_, err = svc.Create(context.Background(), bookID, "Grace Hopper")

	// assert
	assert.ErrorIs(t, err, domain.ErrBookAlreadyReserved)

	stored, err := store.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusActive, stored.Status)
	assert.Len(t, store.reservations, 1)
}

func Test_ReservationService_Create_FlushesExpiredReservation(t *testing.T) {
	// arrange
	bookID := uuid.New()
	store := newFakeReservationStore()
	reservedAt := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	svc := app.NewReservationService(store, newFakeCatalog(bookID), clock.NewFixed(reservedAt))

	first, err := svc.Create(context.Background(), bookID, "Ada Lovelace")
	require.NoError(t, err)

	// one second past the first reservation's expiry
	later := reservedAt.Add(domain.ReservationTTL).Add(time.Second)
	svc = app.NewReservationService(store, newFakeCatalog(bookID), clock.NewFixed(later))

	// act
	second, err := svc.Create(context.Background(), bookID, "Grace Hopper")

	// assert
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusActive, second.Status)
	assert.Equal(t, later, second.ReservedAt)

	expired, err := store.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusExpired, expired.Status)
	assert.Len(t, store.reservations, 2)
}

func Test_ReservationService_Create_WhenExpiryBoundaryNotYetPassed(t *testing.T) {
	// arrange: second create at exactly the expiry instant, which still counts
	// as live
	bookID := uuid.New()
	store := newFakeReservationStore()
	reservedAt := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	svc := app.NewReservationService(store, newFakeCatalog(bookID), clock.NewFixed(reservedAt))

	_, err := svc.Create(context.Background(), bookID, "Ada Lovelace")
	require.NoError(t, err)

	atExpiry := reservedAt.Add(domain.ReservationTTL)
	svc = app.NewReservationService(store, newFakeCatalog(bookID), clock.NewFixed(atExpiry))

	// act
	_, err = svc.Create(context.Background(), bookID, "Grace Hopper")

	// assert
	assert.ErrorIs(t, err, domain.ErrBookAlreadyReserved)
}

func Test_ReservationService_Create_WhenLockWaitTimesOut(t *testing.T) {
	// arrange
	bookID := uuid.New()
	store := newFakeReservationStore()
	store.findErr = domain.ErrLockWaitTimeout
	svc := app.NewReservationService(store, newFakeCatalog(bookID), clock.NewSystem())

	// act
	_, err := svc.Create(context.Background(), bookID, "Ada Lovelace")

	// assert
	assert.ErrorIs(t, err, domain.ErrLockWaitTimeout)
}

func Test_ReservationService_Create_WhenInsertLosesIndexRace(t *testing.T) {
	// arrange: the unique index fires even though the lock saw no row
	bookID := uuid.New()
	store := newFakeReservationStore()
	store.insertErr = domain.ErrBookAlreadyReserved
	svc := app.NewReservationService(store, newFakeCatalog(bookID), clock.NewSystem())

	// act
	_, err := svc.Create(context.Background(), bookID, "Ada Lovelace")

	// assert
	assert.ErrorIs(t, err, domain.ErrBookAlreadyReserved)
}

func Test_ReservationService_Create_WithCustomTTL(t *testing.T) {
	// arrange
	bookID := uuid.New()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc := app.NewReservationService(
		newFakeReservationStore(), newFakeCatalog(bookID), clock.NewFixed(now),
		app.WithReservationTTL(48*time.Hour))

	// act
	res, err := svc.Create(context.Background(), bookID, "Ada Lovelace")

	// assert
	require.NoError(t, err)
	assert.Equal(t, now.Add(48*time.Hour), res.ExpiresAt)
}

func Test_ReservationService_Create_ConcurrentRequestsYieldOneWinner(t *testing.T) {
	// arrange
	const attempts = 10

	bookID := uuid.New()
	store := newFakeReservationStore()
	svc := app.NewReservationService(store, newFakeCatalog(bookID), clock.NewSystem())

	// act
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), bookID, "Ada Lovelace")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// assert
	var successes, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrBookAlreadyReserved):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
	assert.Len(t, store.reservations, 1)
}

func Test_ReservationService_Cancel_WhenReservationIsActive(t *testing.T) {
	// arrange
	bookID := uuid.New()
	store := newFakeReservationStore()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc := app.NewReservationService(store, newFakeCatalog(bookID), clock.NewFixed(now))

	created, err := svc.Create(context.Background(), bookID, "Ada Lovelace")
	require.NoError(t, err)

	// act
	cancelled, err := svc.Cancel(context.Background(), created.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, now, *cancelled.CancelledAt)
	assert.Equal(t, created.Version+1, cancelled.Version)

	stored, err := store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, cancelled, stored)
}

func Test_ReservationService_Cancel_FreesBookForNewReservation(t *testing.T) {
	// arrange
	bookID := uuid.New()
	store := newFakeReservationStore()
	svc := app.NewReservationService(store, newFakeCatalog(bookID), clock.NewSystem())

	created, err := svc.Create(context.Background(), bookID, "Ada Lovelace")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), created.ID)
	require.NoError(t, err)

	// act
	res, err := svc.Create(context.Background(), bookID, "Grace Hopper")

	// assert
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusActive, res.Status)
}

func Test_ReservationService_Cancel_WhenReservationDoesNotExist(t *testing.T) {
	svc := app.NewReservationService(newFakeReservationStore(), newFakeCatalog(), clock.NewSystem())

	_, err := svc.Cancel(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func Test_ReservationService_Cancel_WhenAlreadyCancelled(t *testing.T) {
	// arrange
	bookID := uuid.New()
	store := newFakeReservationStore()
	svc := app.NewReservationService(store, newFakeCatalog(bookID), clock.NewSystem())

	created, err := svc.Create(context.Background(), bookID, "Ada Lovelace")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), created.ID)
	require.NoError(t, err)

	// act
	_, err = svc.Cancel(context.Background(), created.ID)

	// assert
	assert.ErrorIs(t, err, domain.ErrInvalidReservationState)

	var stateErr *domain.ReservationStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, created.ID, stateErr.ID)
	assert.Equal(t, domain.ReservationStatusCancelled, stateErr.Status)
	assert.Contains(t, err.Error(), "CANCELLED")
}

func Test_ReservationService_Cancel_WhenReservationIsExpired(t *testing.T) {
	// arrange: a flushed-to-EXPIRED reservation cannot be cancelled
	bookID := uuid.New()
	store := newFakeReservationStore()
	reservedAt := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	svc := app.NewReservationService(store, newFakeCatalog(bookID), clock.NewFixed(reservedAt))

	first, err := svc.Create(context.Background(), bookID, "Ada Lovelace")
	require.NoError(t, err)

	later := reservedAt.Add(domain.ReservationTTL).Add(time.Hour)
	svc = app.NewReservationService(store, newFakeCatalog(bookID), clock.NewFixed(later))
	_, err = svc.Create(context.Background(), bookID, "Grace Hopper")
	require.NoError(t, err)

	// act
	_, err = svc.Cancel(context.Background(), first.ID)

	// assert
	var stateErr *domain.ReservationStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, domain.ReservationStatusExpired, stateErr.Status)
}

func Test_ReservationService_Cancel_WhenVersionIsStale(t *testing.T) {
	// arrange
	bookID := uuid.New()
	store := newFakeReservationStore()
	svc := app.NewReservationService(store, newFakeCatalog(bookID), clock.NewSystem())

	created, err := svc.Create(context.Background(), bookID, "Ada Lovelace")
	require.NoError(t, err)

	store.markCancelledErr = domain.ErrStaleVersion

	// act
	_, err = svc.Cancel(context.Background(), created.ID)

	// assert
	assert.ErrorIs(t, err, domain.ErrStaleVersion)
}

func Test_ReservationService_Get_ReturnsReservationUntouched(t *testing.T) {
	// arrange: even a reservation past its expiry reads back as ACTIVE
	bookID := uuid.New()
	store := newFakeReservationStore()
	reservedAt := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	svc := app.NewReservationService(store, newFakeCatalog(bookID), clock.NewFixed(reservedAt))

	created, err := svc.Create(context.Background(), bookID, "Ada Lovelace")
	require.NoError(t, err)

	later := reservedAt.Add(domain.ReservationTTL).Add(time.Hour)
	svc = app.NewReservationService(store, newFakeCatalog(bookID), clock.NewFixed(later))

	// act
	res, err := svc.Get(context.Background(), created.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusActive, res.Status)
}

func Test_ReservationService_List_WithStatusFilter(t *testing.T) {
	// arrange
	bookID := uuid.New()
	otherBookID := uuid.New()
	store := newFakeReservationStore()
	svc := app.NewReservationService(store, newFakeCatalog(bookID, otherBookID), clock.NewSystem())

	active, err := svc.Create(context.Background(), bookID, "Ada Lovelace")
	require.NoError(t, err)

	cancelledRes, err := svc.Create(context.Background(), otherBookID, "Grace Hopper")
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), cancelledRes.ID)
	require.NoError(t, err)

	status := domain.ReservationStatusActive

	// act
	page, err := svc.List(context.Background(), domain.ReservationFilter{Status: &status}, domain.PageRequest{})

	// assert
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, active.ID, page.Items[0].ID)
}

func Test_ReservationService_List_WhenStatusFilterIsInvalid(t *testing.T) {
	svc := app.NewReservationService(newFakeReservationStore(), newFakeCatalog(), clock.NewSystem())

	status := domain.ReservationStatus("PENDING")
	_, err := svc.List(context.Background(), domain.ReservationFilter{Status: &status}, domain.PageRequest{})

	assert.ErrorIs(t, err, domain.ErrInvalidReservationStatus)
}
