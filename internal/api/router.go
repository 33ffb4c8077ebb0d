package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/developer-az/commit-warrior/internal/watch"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	// Database is the optional history database, checked by /api/health
	Database    interface{ Health(context.Context) error }
	Checker     Checker
	Scheduler   Scheduler
	History     HistoryStore
	Credentials watch.CredentialFunc
	// CheckTimeout bounds a dated check run by POST /api/check
	CheckTimeout time.Duration
	// AllowedOrigins for CORS; "*" allows all
	AllowedOrigins []string
	Logger         *slog.Logger
}

// RouterResult holds the router and resources that need cleanup
type RouterResult struct {
	Router       *chi.Mux
	RateLimiters *RateLimiters
}

// NewRouter creates and configures the HTTP router.
// Caller must call result.RateLimiters.Stop() on shutdown.
func NewRouter(cfg *RouterConfig) *RouterResult {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	rateLimiters := NewRateLimiters()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware(cfg.AllowedOrigins))
	r.Use(rateLimiters.Global.Middleware)

	h := NewCheckHandler(cfg.Checker, cfg.Scheduler, cfg.History, cfg.Credentials, cfg.CheckTimeout, logger)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", NewHealthHandler(cfg.Database, logger))
		r.With(rateLimiters.Check.Middleware).Post("/check", h.Check)
		r.Get("/status", h.Status)
		r.Get("/history", h.History)
		r.Get("/ratelimit", h.RateLimit)
		r.Get("/cache/stats", h.CacheStats)
		r.Delete("/cache", h.ClearCache)
		r.Get("/token/validate", h.ValidateToken)
	})

	return &RouterResult{
		Router:       r,
		RateLimiters: rateLimiters,
	}
}
