// Package api serves the dashboard HTTP surface of the warehouse: catalog,
// summary, trend reads and an ad-hoc read-only query endpoint.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jellydator/ttlcache/v3"

	"github.com/sentimetry/pipeline/internal/metrics"
	"github.com/sentimetry/pipeline/internal/store"
)

const (
	defaultSummaryTTL   = 30 * time.Second
	defaultMaxQueryRows = 10_000
	defaultTrendDays    = 7
	summaryCacheKey     = "summary"
)

// ReadyChecker gates /readyz on the pipeline's first completed pass.
type ReadyChecker interface {
	Ready() bool
}

type Config struct {
	Logger *slog.Logger
	Store  *store.Store
	// Ready is optional; when nil /readyz always reports ready.
	Ready ReadyChecker

	AllowedOrigins []string
	// SummaryTTL bounds how stale the cached /api/summary response may get.
	SummaryTTL time.Duration
	// MaxQueryRows caps /api/query result size.
	MaxQueryRows int
	// DefaultTrendDays is used when /api/trends/daily has no days parameter.
	DefaultTrendDays int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}

	// Optional with defaults
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = defaultSummaryTTL
	}
	if cfg.MaxQueryRows <= 0 {
		cfg.MaxQueryRows = defaultMaxQueryRows
	}
	if cfg.DefaultTrendDays <= 0 {
		cfg.DefaultTrendDays = defaultTrendDays
	}
	return nil
}

type Server struct {
	log     *slog.Logger
	cfg     Config
	store   *store.Store
	summary *ttlcache.Cache[string, *store.Summary]
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	return &Server{
		log:   cfg.Logger,
		cfg:   cfg,
		store: cfg.Store,
		summary: ttlcache.New(
			ttlcache.WithTTL[string, *store.Summary](cfg.SummaryTTL),
		),
	}, nil
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/api/catalog", s.handleCatalog)
	r.Get("/api/summary", s.handleSummary)
	r.Get("/api/trends/daily", s.handleDailyTrends)
	r.Get("/api/trends/hourly", s.handleHourlyTrends)
	r.Post("/api/query", s.handleQuery)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("api: failed to write healthz response", "error", err)
	}
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ready != nil && !s.cfg.Ready.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("pipeline not ready\n")); err != nil {
			s.log.Error("api: failed to write readyz response", "error", err)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("api: failed to write readyz response", "error", err)
	}
}
