package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hcp-portal/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routeGroup struct {
	registrar   RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	middlewares    []func(http.Handler) http.Handler
	health         *HealthHandlers
	metrics        http.Handler
	allowedOrigins []string

	proxy routeGroup
	admin routeGroup
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	proxyPrefix       = "/proxy/hcp"
	adminPrefix       = "/api/v1/hcp"
	defaultTimeout    = 60 * time.Second
	corsMaxAgeSeconds = 600
)

// NewRouter constructs the chi router with shared middleware and the intake route groups.
// Groups without a registrar answer 501.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
		allowedOrigins: []string{"*"},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(http.StatusNotFound, "route_not_found", fmt.Sprintf("no route for %s", req.URL.Path)))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(http.StatusMethodNotAllowed, "method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path)))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Idempotency-Key"},
		ExposedHeaders: []string{"Idempotent-Replayed"},
		MaxAge:         corsMaxAgeSeconds,
	})

	mount := func(prefix, name string, group routeGroup) {
		r.Route(prefix, func(sub chi.Router) {
			// Preflight requests are answered before authentication runs.
			sub.Use(corsHandler)
			sub.Group(func(authed chi.Router) {
				for _, mw := range group.middlewares {
					if mw != nil {
						authed.Use(mw)
					}
				}
				if group.registrar != nil {
					group.registrar(authed)
					return
				}
				registerNotImplemented(authed, name)
			})
		})
	}
	mount(proxyPrefix, "proxy", cfg.proxy)
	mount(adminPrefix, "admin", cfg.admin)

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithMetricsHandler exposes h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.metrics = h
	}
}

// WithAllowedOrigins sets the CORS origins for the intake groups.
func WithAllowedOrigins(origins ...string) Option {
	return func(cfg *routerConfig) {
		if len(origins) > 0 {
			cfg.allowedOrigins = append([]string(nil), origins...)
		}
	}
}

// WithProxyRoutes mounts reg beneath /proxy/hcp behind mw.
func WithProxyRoutes(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.proxy = routeGroup{registrar: reg, middlewares: mw}
	}
}

// WithAdminRoutes mounts reg beneath /api/v1/hcp behind mw.
func WithAdminRoutes(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.admin = routeGroup{registrar: reg, middlewares: mw}
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(http.StatusNotImplemented, "not_implemented", fmt.Sprintf("%s endpoints are not configured", name)))
	}
	r.Post("/customer", handler)
	r.Post("/samples", handler)
}
