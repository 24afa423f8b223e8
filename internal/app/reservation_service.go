package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okrause/shelfmark/internal/clock"
	"github.com/okrause/shelfmark/internal/domain"
)

const (
	logMsgReservationCreated   = "reservation created"
	logMsgReservationCancelled = "reservation cancelled"
	logMsgStaleExpired         = "stale reservation expired during create"
	logMsgCreateConflict       = "reservation create conflict"
	logMsgCancelConflict       = "reservation cancel conflict"
	logMsgLockWaitTimedOut     = "reservation lock wait timed out"
	logMsgCreateFailed         = "reservation create failed"
	logMsgCancelFailed         = "reservation cancel failed"

	logAttrReservationID = "reservation_id"
	logAttrBookID        = "book_id"
	logAttrStatus        = "status"
	logAttrError         = "error"

	metricCreateDuration = "reservation_create_duration_seconds"
	metricCancelDuration = "reservation_cancel_duration_seconds"
	metricConflicts      = "reservation_conflicts_total"
	metricLockTimeouts   = "reservation_lock_timeouts_total"
	metricExpiredLazily  = "reservations_expired_lazily_total"

	labelReason            = "reason"
	reasonAlreadyReserved  = "already_reserved"
	reasonInvalidState     = "invalid_state"
	reasonStaleVersion     = "stale_version"
)

// ReservationStore is the durable reservation collection the coordinator
// drives: an exclusive-lock read, a plain read, an insert, conditional
// versioned updates, and a filtered paginated list.
type ReservationStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindActiveForUpdate(ctx context.Context, bookID uuid.UUID) (*domain.Reservation, error)
	Insert(ctx context.Context, res domain.Reservation) error
	MarkExpired(ctx context.Context, id uuid.UUID, version int64) error
	MarkCancelled(ctx context.Context, id uuid.UUID, cancelledAt time.Time, version int64) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Reservation, error)
	List(ctx context.Context, filter domain.ReservationFilter, page domain.PageRequest) (domain.Page[domain.Reservation], error)
}

// Catalog is the collaborator the coordinator consults for book existence.
// Read-only; the catalog never mutates reservations.
type Catalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Book, error)
}

// ReservationService coordinates reservation creation, cancellation, and lazy
// expiry against the store. It holds no mutable state between calls and
// caches nothing: every operation re-reads persisted state, so any number of
// instances can run against the same database.
//
// Correctness layering, deliberately redundant: the exclusive row lock taken
// in Create turns most races into an early, descriptive conflict, and the
// partial unique index backstops whatever the lock cannot see under weak
// isolation or multi-writer topologies. Neither layer alone is treated as
// authoritative.
type ReservationService struct {
	store   ReservationStore
	catalog Catalog
	clock   clock.Clock
	ttl     time.Duration
	logger  ContextualLogger
	metrics MetricsCollector
}

// ReservationServiceOption configures a ReservationService.
type ReservationServiceOption func(*ReservationService)

// WithReservationTTL overrides the default 14-day hold duration.
func WithReservationTTL(d time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithLogger sets the contextual logger; defaults to a no-op.
func WithLogger(logger ContextualLogger) ReservationServiceOption {
	return func(s *ReservationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector; defaults to a no-op.
func WithMetrics(collector MetricsCollector) ReservationServiceOption {
	return func(s *ReservationService) {
		if collector != nil {
			s.metrics = collector
		}
	}
}

// NewReservationService creates the coordinator with optional configuration.
func NewReservationService(store ReservationStore, catalog Catalog, clk clock.Clock, opts ...ReservationServiceOption) *ReservationService {
	svc := &ReservationService{
		store:   store,
		catalog: catalog,
		clock:   clk,
		ttl:     domain.ReservationTTL,
		logger:  noopLogger{},
		metrics: noopMetrics{},
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// Create places an exclusive hold on a book for the named holder.
//
// Within one transaction it locks the at-most-one ACTIVE row for the book,
// bounded by the store's lock-wait timeout. A locked row that is still live
// fails with ErrBookAlreadyReserved; one whose expiry has passed is flushed
// to EXPIRED (a terminal side effect of this call) before the new ACTIVE row
// is inserted. Expiry flush and insert commit atomically, so no partial
// state is ever visible.
//
// Exactly one of {reservation, ErrBookNotFound, ErrBookAlreadyReserved,
// ErrLockWaitTimeout} results per call. Conflicts are terminal for the call;
// timeouts may be retried by the caller.
func (s *ReservationService) Create(ctx context.Context, bookID uuid.UUID, holderName string) (domain.Reservation, error) {
	holderName = strings.TrimSpace(holderName)
	if holderName == "" || len(holderName) > domain.MaxHolderNameLength {
		return domain.Reservation{}, domain.ErrInvalidHolderName
	}

	if _, err := s.catalog.GetByID(ctx, bookID); err != nil {
		return domain.Reservation{}, err
	}

	start := time.Now()
	now := s.clock.Now()
	var created domain.Reservation

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.store.FindActiveForUpdate(txCtx, bookID)
		if err != nil {
			return err
		}

		if existing != nil {
			if !existing.IsExpiredAt(now) {
				return domain.ErrBookAlreadyReserved
			}

			// Terminal one-way transition, flushed before the insert so the
			// partial unique index never sees two ACTIVE rows.
			if err := s.store.MarkExpired(txCtx, existing.ID, existing.Version); err != nil {
				return err
			}

			s.metrics.IncrementCounter(metricExpiredLazily, nil)
			s.logger.InfoContext(txCtx, logMsgStaleExpired,
				logAttrReservationID, existing.ID.String(),
				logAttrBookID, bookID.String())
		}

		created = domain.Reservation{
			ID:         uuid.New(),
			BookID:     bookID,
			HolderName: holderName,
			Status:     domain.ReservationStatusActive,
			ReservedAt: now,
			ExpiresAt:  now.Add(s.ttl),
			Version:    0,
		}

		return s.store.Insert(txCtx, created)
	})

	s.metrics.RecordDuration(metricCreateDuration, time.Since(start), nil)

	if err != nil {
		return domain.Reservation{}, s.classifyCreateError(ctx, bookID, err)
	}

	s.logger.InfoContext(ctx, logMsgReservationCreated,
		logAttrReservationID, created.ID.String(),
		logAttrBookID, bookID.String())

	return created, nil
}

// Cancel transitions an ACTIVE reservation to CANCELLED. The record is
// retained as history.
//
// No lock is taken: the write is conditioned on the version read, and a lost
// race surfaces as ErrStaleVersion for the caller to retry. Cancelling a
// non-ACTIVE reservation fails with a ReservationStateError carrying the
// current status.
func (s *ReservationService) Cancel(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	start := time.Now()

	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}

	if res.Status != domain.ReservationStatusActive {
		stateErr := &domain.ReservationStateError{ID: id, Status: res.Status}
		s.metrics.IncrementCounter(metricConflicts, map[string]string{labelReason: reasonInvalidState})
		s.logger.InfoContext(ctx, logMsgCancelConflict,
			logAttrReservationID, id.String(),
			logAttrStatus, string(res.Status))
		return domain.Reservation{}, stateErr
	}

	now := s.clock.Now()
	if err := s.store.MarkCancelled(ctx, id, now, res.Version); err != nil {
		s.metrics.RecordDuration(metricCancelDuration, time.Since(start), nil)

		if errors.Is(err, domain.ErrStaleVersion) {
			s.metrics.IncrementCounter(metricConflicts, map[string]string{labelReason: reasonStaleVersion})
			s.logger.InfoContext(ctx, logMsgCancelConflict,
				logAttrReservationID, id.String(),
				logAttrError, err.Error())
			return domain.Reservation{}, err
		}

		s.logger.ErrorContext(ctx, logMsgCancelFailed,
			logAttrReservationID, id.String(),
			logAttrError, err.Error())
		return domain.Reservation{}, err
	}

	s.metrics.RecordDuration(metricCancelDuration, time.Since(start), nil)

	res.Status = domain.ReservationStatusCancelled
	res.CancelledAt = &now
	res.Version++

	s.logger.InfoContext(ctx, logMsgReservationCancelled, logAttrReservationID, id.String())

	return res, nil
}

// Get reads one reservation. Pure read, no side effects.
func (s *ReservationService) Get(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	return s.store.GetByID(ctx, id)
}

// List returns one page of reservations matching the filter. Pure read:
// listing never triggers expiration, so a reservation may display ACTIVE
// with a past expiry until the next Create call touches it.
func (s *ReservationService) List(ctx context.Context, filter domain.ReservationFilter, page domain.PageRequest) (domain.Page[domain.Reservation], error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return domain.Page[domain.Reservation]{}, domain.ErrInvalidReservationStatus
	}

	return s.store.List(ctx, filter, page)
}

// classifyCreateError records metrics and logs for a failed create and
// returns the error unchanged. All named kinds surface verbatim; nothing is
// retried internally.
func (s *ReservationService) classifyCreateError(ctx context.Context, bookID uuid.UUID, err error) error {
	switch {
	case errors.Is(err, domain.ErrBookAlreadyReserved):
		s.metrics.IncrementCounter(metricConflicts, map[string]string{labelReason: reasonAlreadyReserved})
		s.logger.InfoContext(ctx, logMsgCreateConflict, logAttrBookID, bookID.String())

	case errors.Is(err, domain.ErrLockWaitTimeout):
		s.metrics.IncrementCounter(metricLockTimeouts, nil)
		s.logger.WarnContext(ctx, logMsgLockWaitTimedOut, logAttrBookID, bookID.String())

	default:
		s.logger.ErrorContext(ctx, logMsgCreateFailed,
			logAttrBookID, bookID.String(),
			logAttrError, err.Error())
	}

	return err
}
