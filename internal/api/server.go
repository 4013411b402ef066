// Package api wires the HTTP routes of the globe service.
package api

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/auth"
	"github.com/vsr83/WebGLGlobeTest/internal/cache"
	"github.com/vsr83/WebGLGlobeTest/internal/catalog"
	"github.com/vsr83/WebGLGlobeTest/internal/geometry"
	"github.com/vsr83/WebGLGlobeTest/internal/health"
	"github.com/vsr83/WebGLGlobeTest/internal/metrics"
	"github.com/vsr83/WebGLGlobeTest/internal/propagation"
	"github.com/vsr83/WebGLGlobeTest/internal/scene"
	"github.com/vsr83/WebGLGlobeTest/internal/stream"
	"github.com/vsr83/WebGLGlobeTest/internal/transform"
)

// Deps are the components the routes are served from. Cache, Stream and
// Web may be nil; their routes are then not registered.
type Deps struct {
	Store      *catalog.Store
	Propagator *propagation.Propagator
	Builder    *scene.Builder
	Cache      *cache.KeyframeCache
	Stream     *stream.Handler
	Observer   transform.Observer // default observer for /api/v1/passes
	Globe      geometry.Ellipsoid // default mesh for /api/v1/geometry
	Web        fs.FS
	TextureDir string
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(logger, authCfg, deps),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the route mux wrapped in the middleware chain:
// metrics -> logging -> auth -> mux.
func NewHandler(logger *slog.Logger, authCfg auth.Config, deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(readinessChecks(deps)...))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/time", timeHandler())
	mux.HandleFunc("GET /api/v1/ephemeris", ephemerisHandler())
	mux.HandleFunc("GET /api/v1/illumination", illuminationHandler())
	mux.HandleFunc("GET /api/v1/geometry", geometryHandler(logger, deps.Globe))
	mux.HandleFunc("GET /api/v1/frame", frameHandler(logger, deps.Builder))
	mux.HandleFunc("GET /api/v1/objects", objectsHandler(logger, deps.Store, deps.Propagator))
	mux.HandleFunc("GET /api/v1/objects/{id}/trajectory", trajectoryHandler(logger, deps.Builder))
	mux.HandleFunc("GET /api/v1/passes", passesHandler(logger, deps.Store, deps.Observer))

	if deps.Cache != nil {
		mux.HandleFunc("GET /api/v1/cache/stats", cacheStatsHandler(deps.Cache))
	}
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/frames", deps.Stream.HandleFrames)
	}
	if deps.TextureDir != "" {
		mux.Handle("GET /textures/", http.StripPrefix("/textures/", http.FileServer(http.Dir(deps.TextureDir))))
	}
	if deps.Web != nil {
		mux.Handle("GET /", http.FileServer(http.FS(deps.Web)))
	}

	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)
	return handler
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
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
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
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
