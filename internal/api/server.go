// Package api serves the optics of catalog telescopes over HTTP/JSON.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/aperture/internal/auth"
	"github.com/star/aperture/internal/catalog"
	"github.com/star/aperture/internal/health"
	"github.com/star/aperture/internal/httputil"
	"github.com/star/aperture/internal/metrics"
)

// DefaultMaxSamples bounds the r or f samples of one request when Options leaves it unset.
const DefaultMaxSamples = 4096

// Options configures the HTTP surface.
type Options struct {
	MaxSamples int
	Auth       auth.Config
	TrustProxy bool
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, store *catalog.Store, opts Options) *Server {
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = DefaultMaxSamples
	}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(store.Ready))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/telescopes", listHandler(store))
	mux.HandleFunc("GET /api/v1/telescopes/{name}/otf", otfHandler(logger, store, opts.MaxSamples))
	mux.HandleFunc("GET /api/v1/telescopes/{name}/psf", psfHandler(logger, store, opts.MaxSamples))
	mux.HandleFunc("GET /api/v1/telescopes/{name}/fwhm", fwhmHandler(store))
	mux.HandleFunc("GET /api/v1/telescopes/{name}/pupil", pupilHandler(logger, store))

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(opts.Auth)(handler)
	handler = loggingMiddleware(logger, opts.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
