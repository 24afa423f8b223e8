package http

import (
	"net/http"

	"github.com/okrause/shelfmark/internal/app"
)

// RouterConfig bundles everything the HTTP surface depends on.
type RouterConfig struct {
	Reservations ReservationAPI
	Books        BookAPI
	Authors      AuthorAPI
	Search       SearchAPI
	DB           Pinger
	Logger       app.ContextualLogger
}

// NewRouter wires all API routes onto a method-pattern mux and wraps it
// with the request logging and panic recovery middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	reservations := &reservationHandlers{svc: cfg.Reservations}
	mux.HandleFunc("POST /api/v1/reservations", reservations.create)
	mux.HandleFunc("GET /api/v1/reservations", reservations.list)
	mux.HandleFunc("GET /api/v1/reservations/{id}", reservations.get)
	mux.HandleFunc("PATCH /api/v1/reservations/{id}/cancel", reservations.cancel)

	books := &bookHandlers{svc: cfg.Books}
	mux.HandleFunc("POST /api/v1/books", books.create)
	mux.HandleFunc("GET /api/v1/books", books.list)
	mux.HandleFunc("GET /api/v1/books/{id}", books.get)
	mux.HandleFunc("PUT /api/v1/books/{id}", books.update)
	mux.HandleFunc("DELETE /api/v1/books/{id}", books.delete)

	authors := &authorHandlers{svc: cfg.Authors}
	mux.HandleFunc("POST /api/v1/authors", authors.create)
	mux.HandleFunc("GET /api/v1/authors", authors.list)
	mux.HandleFunc("GET /api/v1/authors/{id}", authors.get)
	mux.HandleFunc("PUT /api/v1/authors/{id}", authors.update)
	mux.HandleFunc("DELETE /api/v1/authors/{id}", authors.delete)

	search := &searchHandlers{svc: cfg.Search}
	mux.HandleFunc("GET /api/v1/books/search", search.search)

	health := &healthHandlers{db: cfg.DB}
	mux.HandleFunc("GET /healthz", health.live)
	mux.HandleFunc("GET /readyz", health.ready)

	logger := cfg.Logger
	if logger == nil {
		logger = app.NoopLogger()
	}

	return recoverer(logger, requestLogger(logger, mux))
}
