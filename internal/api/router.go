// Package api assembles the admin HTTP surface for a running Healer:
// health, metrics, flakiness inspection, cache control and ad-hoc
// healing, all served from a single process alongside the test run
// that owns the Healer instance.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/selectorheal/selectorheal/internal/api/handlers"
	"github.com/selectorheal/selectorheal/internal/api/middleware"
	"github.com/selectorheal/selectorheal/internal/healer"
	"github.com/selectorheal/selectorheal/internal/observability"
	"github.com/selectorheal/selectorheal/pkg/httputil"
)

// Router holds the HTTP router and its dependencies.
type Router struct {
	chi.Router
	logger *zap.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	Healer     *healer.Healer
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	EnableCORS bool
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(cfg.Logger).Handler)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Handler)
	r.Use(chimw.Timeout(60 * time.Second))

	if cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", healthHandler)

	healingHandler := handlers.NewHealingHandler(cfg.Healer, cfg.Logger)

	r.Get("/healthz", healingHandler.HealthCheck)
	r.Get("/flakiness", healingHandler.Flakiness)
	r.Post("/cache/clear", healingHandler.ClearCache)
	r.Post("/heal", healingHandler.Heal)
	r.Patch("/config", healingHandler.UpdateConfig)

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	return &Router{Router: r, logger: cfg.Logger}
}

// healthHandler reports basic process liveness, independent of the
// Healer's own strategy health.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "selectorheal",
	})
}
