package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/woragis/woragis-sub002/application/ports"
	"github.com/woragis/woragis-sub002/infrastructure/observability"
	"github.com/woragis/woragis-sub002/interfaces/http/rest/handlers"
	"github.com/woragis/woragis-sub002/interfaces/http/rest/middleware"
	"github.com/woragis/woragis-sub002/pkg/api"
	"github.com/woragis/woragis-sub002/pkg/auth"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const readyTimeout = 2 * time.Second

// Options tune the router.
type Options struct {
	AllowedOrigins []string
	ServiceName    string
	// Debug exposes raw error messages in responses
	Debug bool
}

// Router creates and configures the HTTP router
type Router struct {
	service   handlers.NodeService
	health    ports.HealthChecker
	validator *auth.JWTValidator
	collector *observability.Collector
	options   Options
	logger    *zap.Logger
}

// NewRouter creates a new router instance. validator and collector may
// be nil: without a validator requests are attributed from the X-User-ID
// header, without a collector no metrics are recorded.
func NewRouter(
	service handlers.NodeService,
	health ports.HealthChecker,
	validator *auth.JWTValidator,
	collector *observability.Collector,
	options Options,
	logger *zap.Logger,
) *Router {
	if options.ServiceName == "" {
		options.ServiceName = "idea-canvas"
	}
	if len(options.AllowedOrigins) == 0 {
		options.AllowedOrigins = []string{"*"}
	}
	return &Router{
		service:   service,
		health:    health,
		validator: validator,
		collector: collector,
		options:   options,
		logger:    logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	errorHandler := pkgerrors.NewErrorHandler(rt.logger, rt.options.Debug)
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(errorHandler.Middleware)
	router.Use(middleware.Logger(rt.logger))
	router.Use(observability.TracingMiddleware(rt.options.ServiceName))
	if rt.collector != nil {
		router.Use(observability.MetricsMiddleware(rt.collector))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.options.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-Match", "X-Request-ID", middleware.DevUserHeader},
		ExposedHeaders:   []string{"ETag", "Location", "X-Request-ID", "X-Scrubbed-Nodes"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.collector != nil {
		router.Method(http.MethodGet, "/metrics", rt.collector.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.validator, errorHandler, rt.logger))
		handlers.NewNodeHandler(rt.service, errorHandler, rt.logger).Routes(r)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errorHandler.Handle(w, r, pkgerrors.NewNotFoundError("route"))
	})

	return router
}

// healthCheck reports liveness only.
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	rt.respond(w, http.StatusOK, api.HealthResponse{Status: "healthy"})
}

// readinessCheck pings the node store.
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	if rt.health != nil {
		ctx, cancel := context.WithTimeout(req.Context(), readyTimeout)
		defer cancel()
		if err := rt.health.Ping(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.Error(err))
			rt.respond(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "unavailable", Error: err.Error()})
			return
		}
	}
	rt.respond(w, http.StatusOK, api.HealthResponse{Status: "ready"})
}

func (rt *Router) respond(w http.ResponseWriter, status int, body api.HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		rt.logger.Error("Failed to encode response", zap.Error(err))
	}
}
