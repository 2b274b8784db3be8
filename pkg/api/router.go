// Package api provides HTTP API server components.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/goclaw/recall/config"
	"github.com/goclaw/recall/pkg/api/handlers"
	"github.com/goclaw/recall/pkg/api/middleware"
	"github.com/goclaw/recall/pkg/logger"
)

// Handlers holds all HTTP handlers. Nil handlers leave their routes
// unregistered.
type Handlers struct {
	// Search handles the search endpoints
	Search *handlers.SearchHandler
	// Strategies handles strategy, monitoring, breaker and audit endpoints
	Strategies *handlers.StrategyHandler
	// Config handles strategy configuration endpoints
	Config *handlers.ConfigHandler
	// Health handles health check endpoints
	Health *handlers.HealthHandler
	// Alerts streams alerts over websocket
	Alerts *handlers.WebSocketHandler
	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
	// MetricsHandler serves the Prometheus exposition on the API port
	MetricsHandler http.Handler
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}
	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}
	r.Use(middleware.CORS(&cfg.Server.CORS))

	// Websocket connections are long-lived and stay outside the timeout.
	if handlers.Alerts != nil {
		r.Handle("/ws/alerts", handlers.Alerts)
	}
	if handlers.MetricsHandler != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, handlers.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if rl := cfg.Server.RateLimit; rl.Enabled && rl.RequestsPerSecond > 0 {
			r.Use(middleware.RateLimit(middleware.NewRateLimiter(rl.RequestsPerSecond, rl.Burst, rl.MaxClients)))
		}
		if timeout := requestTimeout(cfg); timeout > 0 {
			r.Use(middleware.Timeout(timeout))
		}
		RegisterRoutes(r, handlers)
	})

	return r
}

func requestTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.HTTP.RequestTimeout > 0 {
		return cfg.Server.HTTP.RequestTimeout
	}
	return cfg.Server.HTTP.ReadTimeout
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		if handlers.Search != nil {
			r.Post("/search", handlers.Search.Search)
			r.Post("/search/{strategy}", handlers.Search.SearchWithStrategy)
			r.Get("/templates", handlers.Search.ListTemplates)
		}

		if handlers.Strategies != nil {
			r.Route("/strategies", func(r chi.Router) {
				r.Get("/", handlers.Strategies.ListStrategies)
				r.Get("/{name}", handlers.Strategies.GetStrategy)
				r.Post("/{name}/reload", handlers.Strategies.ReloadStrategy)
			})
			r.Get("/report", handlers.Strategies.Report)
			r.Get("/dashboard", handlers.Strategies.Dashboard)
			r.Get("/errors", handlers.Strategies.Errors)
			r.Get("/audit", handlers.Strategies.Audit)
			r.Post("/breakers/{name}/reset", handlers.Strategies.ResetBreaker)
			r.Post("/breakers/{name}/trip", handlers.Strategies.TripBreaker)
		}

		if handlers.Config != nil {
			r.Route("/config/{name}", func(r chi.Router) {
				r.Get("/", handlers.Config.GetConfig)
				r.Put("/", handlers.Config.UpdateConfig)
				r.Post("/backups", handlers.Config.CreateBackup)
				r.Get("/backups", handlers.Config.ListBackups)
				r.Post("/restore/{backupID}", handlers.Config.RestoreBackup)
			})
		}
	})

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}
}
