// Package api provides the HTTP surface of the package registry.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/aopkg/aopkg-server/internal/telemetry"
)

// ServerOption configures the API server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	middlewares []func(http.Handler) http.Handler
}

// WithMiddlewares adds middleware to the server.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// NewServer creates and configures the HTTP router.
func NewServer(routes *Routes, metrics *telemetry.Metrics, logger *zap.Logger, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(loggingMiddleware(logger))
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Post("/upload", routes.upload)
	r.Route("/api/packages", func(r chi.Router) {
		r.Get("/", routes.listAll)
		r.Get("/latest", routes.listLatest)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", routes.listVersions)
			r.Get("/latest", routes.getLatest)
			r.Get("/{version}", routes.getVersion)
			r.Get("/{version}/download", routes.download)
		})
	})
	r.Post("/webhook/github", routes.githubWebhook)
	r.Get("/health", routes.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// loggingMiddleware logs one line per request at debug level.
func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
