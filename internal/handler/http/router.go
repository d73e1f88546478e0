package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omendivilg/CoffeeBox/pkg/health"
	"github.com/omendivilg/CoffeeBox/pkg/middleware"
)

// Cache directives for the public and per-user endpoints.
const (
	publicCache  = "public, max-age=15"
	privateCache = "private, no-store"
)

// RouterConfig carries everything NewRouter wires.
type RouterConfig struct {
	ServiceName  string
	Coffees      CoffeeService
	Reviews      ReviewService
	Authenticate middleware.Authenticator
	Health       *health.Handler
	CORS         middleware.CORSConfig
	ReviewLimit  middleware.RateLimitConfig
	Logger       *slog.Logger
}

// NewRouter creates a chi router with all CoffeeBox routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	coffeeHandler := NewCoffeeHandler(cfg.Coffees, cfg.Logger)
	reviewHandler := NewReviewHandler(cfg.Reviews, cfg.Logger)

	reviewLimit := middleware.RateLimit(cfg.ReviewLimit, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.Authenticate))
		r.Use(middleware.RequestLogger(cfg.Logger))

		r.Route("/coffees", func(r chi.Router) {
			r.With(middleware.CacheControl(publicCache)).Get("/", coffeeHandler.List)
			r.Get("/{id}", coffeeHandler.Get)
			r.With(middleware.RequireAuth, reviewLimit, middleware.ContentTypeJSON).Post("/{id}/reviews", reviewHandler.Submit)
		})

		r.With(middleware.RequireAuth, middleware.CacheControl(privateCache)).Get("/me/reviews", reviewHandler.ListMine)
	})

	return r
}
