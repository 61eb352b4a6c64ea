package api

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/star/satviz/internal/auth"
	"github.com/star/satviz/internal/clock"
	"github.com/star/satviz/internal/groundstation"
	"github.com/star/satviz/internal/health"
	"github.com/star/satviz/internal/metrics"
	"github.com/star/satviz/internal/satellite"
	"github.com/star/satviz/internal/tle"
)

// Tracker is the part of the tracker the API reads and drives.
type Tracker interface {
	Snapshot() *satellite.Snapshot
	Clock() *clock.Clock
	Store() *tle.Store
	Select(ids []tle.CatalogNumber) (added, removed []tle.CatalogNumber, err error)
	Add(id tle.CatalogNumber) (bool, error)
	Remove(id tle.CatalogNumber) bool
	SetOrbitVisible(id tle.CatalogNumber, visible bool) error
	RequestRefresh()
}

// Deps are the collaborators the routes are served from. Stream may be nil.
type Deps struct {
	Tracker        Tracker
	GroundStations *groundstation.Table
	Stream         http.Handler
	Ready          []health.Check
	OrbitSegments  int
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	handler := NewHandler(logger, authCfg, deps)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed handler with its middleware chain.
func NewHandler(logger *slog.Logger, authCfg auth.Config, deps Deps) http.Handler {
	if deps.OrbitSegments < 1 {
		deps.OrbitSegments = 100
	}
	trk := deps.Tracker
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Ready...))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/satellites", listSatellitesHandler(trk))
	mux.HandleFunc("PUT /api/v1/satellites", selectHandler(logger, trk))
	mux.HandleFunc("GET /api/v1/satellites/{id}", getSatelliteHandler(trk))
	mux.HandleFunc("POST /api/v1/satellites/{id}", addSatelliteHandler(logger, trk))
	mux.HandleFunc("DELETE /api/v1/satellites/{id}", removeSatelliteHandler(logger, trk))
	mux.HandleFunc("GET /api/v1/satellites/{id}/summary", summaryHandler(trk))
	mux.HandleFunc("GET /api/v1/satellites/{id}/orbit", orbitHandler(trk, deps.OrbitSegments))
	mux.HandleFunc("PUT /api/v1/satellites/{id}/orbit", orbitVisibilityHandler(trk))

	mux.HandleFunc("GET /api/v1/groundstations", groundStationsHandler(deps.GroundStations, trk))
	mux.HandleFunc("GET /api/v1/groundstations/{name}/passes", passesHandler(logger, deps.GroundStations, trk))

	mux.HandleFunc("GET /api/v1/clock", clockHandler(trk))
	mux.HandleFunc("PUT /api/v1/clock", setClockHandler(logger, trk))

	mux.HandleFunc("GET /api/v1/presentation/earth", earthPresentationHandler)
	mux.HandleFunc("GET /api/v1/presentation/{id}", presentationHandler)

	mux.HandleFunc("GET /api/v1/tle/metadata", tleMetadataHandler(trk))
	mux.HandleFunc("POST /api/v1/tle/refresh", tleRefreshHandler(logger, trk))

	if deps.Stream != nil {
		mux.Handle("GET /api/v1/stream", deps.Stream)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
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

// Hijack lets the stream endpoint upgrade through the middleware.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	sr.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
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
