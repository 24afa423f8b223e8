// Command shelfmark runs the library catalog and reservation service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/okrause/shelfmark/internal/app"
	"github.com/okrause/shelfmark/internal/clock"
	"github.com/okrause/shelfmark/internal/config"
	"github.com/okrause/shelfmark/internal/observability"
	"github.com/okrause/shelfmark/internal/storage/postgres"
	api "github.com/okrause/shelfmark/internal/transport/http"
	"github.com/okrause/shelfmark/migrations"
)

func main() {
	root := &cobra.Command{
		Use:           "shelfmark",
		Short:         "Library catalog and reservation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()

			pool, err := openPool(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			return migrations.Apply(cmd.Context(), pool)
		},
	}
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := newLogger(cfg)

	pool, err := openPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	searchDB, err := postgres.OpenSearchDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open search db: %w", err)
	}
	defer func() { _ = searchDB.Close() }()

	clk := clock.NewSystem()

	reservationRepo := postgres.NewReservationRepository(pool,
		postgres.WithLockWaitTimeout(cfg.LockWaitTimeout))
	bookRepo := postgres.NewBookRepository(pool)
	authorRepo := postgres.NewAuthorRepository(pool)
	searchRepo := postgres.NewSearchRepository(searchDB)

	bookSvc := app.NewBookService(bookRepo, clk)
	authorSvc := app.NewAuthorService(authorRepo, clk)
	searchSvc := app.NewSearchService(searchRepo)

	reservationOpts := []app.ReservationServiceOption{
		app.WithReservationTTL(cfg.ReservationTTL),
		app.WithLogger(logger),
	}
	if cfg.OTelEnabled {
		meter := otel.GetMeterProvider().Meter("shelfmark")
		reservationOpts = append(reservationOpts,
			app.WithMetrics(observability.NewOTelMetricsCollector(meter)))
	}
	reservationSvc := app.NewReservationService(reservationRepo, bookSvc, clk, reservationOpts...)

	handler := api.NewRouter(api.RouterConfig{
		Reservations: reservationSvc,
		Books:        bookSvc,
		Authors:      authorSvc,
		Search:       searchSvc,
		DB:           pool,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "listening", "addr", cfg.ListenAddr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.InfoContext(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func openPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := config.PGXPoolConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func newLogger(cfg config.Config) app.ContextualLogger {
	if cfg.OTelEnabled {
		return observability.NewOTelSlogLogger("shelfmark")
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})

	return observability.NewSlogLogger(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
