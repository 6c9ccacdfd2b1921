// Package server exposes the pooled query engine over HTTP: a query
// endpoint, pool health and stats, and the run history.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	sqlkit "github.com/tylerbarker/sql-kit"
	"github.com/tylerbarker/sql-kit/internal/history"
	"github.com/tylerbarker/sql-kit/pool"
)

// Config configures the server surface.
type Config struct {
	Addr           string
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
}

// Server serves queries against one pool.
type Server struct {
	cfg     Config
	pool    *pool.Pool
	store   *history.Store // nil disables history
	logger  *slog.Logger
	handler http.Handler
}

// New wires the router. store may be nil to disable run recording and the
// history endpoint.
func New(cfg Config, p *pool.Pool, store *history.Store, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{cfg: cfg, pool: p, store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
	}))
	r.Use(rateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

	r.Post("/v1/query", s.handleQuery)
	r.Get("/v1/healthz", s.handleHealthz)
	r.Get("/v1/stats", s.handleStats)
	if store != nil {
		r.Get("/v1/history", s.handleHistory)
	}

	s.handler = r
	return s
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) (int, string) {
	var (
		noResults   *sqlkit.NoResultsError
		multiple    *sqlkit.MultipleResultsError
		unknownCol  *sqlkit.UnknownColumnError
		timeout     *sqlkit.CheckoutTimeoutError
		poolClosed  *sqlkit.PoolClosedError
		unsupported *sqlkit.UnsupportedResultError
		queryErr    *sqlkit.QueryError
	)
	switch {
	case errors.As(err, &noResults):
		return http.StatusNotFound, "no_results"
	case errors.As(err, &multiple):
		return http.StatusConflict, "multiple_results"
	case errors.As(err, &unknownCol):
		return http.StatusBadRequest, "unknown_column"
	case errors.As(err, &timeout):
		return http.StatusServiceUnavailable, "checkout_timeout"
	case errors.As(err, &poolClosed):
		return http.StatusServiceUnavailable, "pool_closed"
	case errors.As(err, &unsupported):
		return http.StatusBadRequest, "unsupported_result"
	case errors.As(err, &queryErr):
		return http.StatusBadRequest, "query_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
