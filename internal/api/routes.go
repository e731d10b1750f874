// Package api provides the HTTP API for the setup gateway.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/tuttiud/platform/internal/api/handlers"
	"github.com/tuttiud/platform/internal/api/middleware"
	"github.com/tuttiud/platform/internal/config"
	"github.com/tuttiud/platform/internal/metrics"
)

// Config holds configuration for the API router.
type Config struct {
	// Environment decides how strict the CORS policy is.
	Environment config.Environment
	// AllowedOrigins for CORS. Empty means all origins allowed in dev mode.
	AllowedOrigins []string
	// RateLimitRequests is the number of requests allowed per period.
	RateLimitRequests int64
	// RateLimitPeriod is the duration string for rate limiting (e.g. "1m", "1h").
	RateLimitPeriod string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		Environment:       config.EnvDevelopment,
		AllowedOrigins:    []string{},
		RateLimitRequests: 100,
		RateLimitPeriod:   "1m",
	}
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(
	cfg Config,
	svc handlers.SetupService,
	resolver handlers.TenantResolver,
	db handlers.DatabaseHealthChecker,
	registry *prometheus.Registry,
	m *metrics.Metrics,
	logger zerolog.Logger,
) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Environment, logger))

	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	healthHandler := handlers.NewHealthHandler(db, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	if registry != nil {
		r.Engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	apiV1 := r.Engine.Group("/api/v1")

	setupHandler := handlers.NewSetupHandler(svc, m, logger)
	setupHandler.RegisterRoutes(apiV1)

	recordsHandler := handlers.NewRecordsHandler(resolver, logger)
	recordsHandler.RegisterRoutes(apiV1)

	return r, nil
}
