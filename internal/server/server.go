// Package server exposes the daemon's HTTP surface: the capture-bridge
// intake, the call log REST endpoints, the live WebSocket stream, and
// the settings and status endpoints the panel UIs consume.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aurascope/aurascope/internal/capture"
	"github.com/aurascope/aurascope/internal/session"
	"github.com/aurascope/aurascope/internal/settings"
)

const defaultRequestTimeout = 30 * time.Second

// Revealer forwards open-resource requests to the capture bridge. The
// bridge client implements this.
type Revealer interface {
	Reveal(ctx context.Context, rawURL string, line int) error
}

// Config configures a Server. Log, Adapter, and Settings must be set;
// Revealer may be nil when no bridge is reachable.
type Config struct {
	Log      *session.Log
	Adapter  *capture.Adapter
	Settings settings.Store
	Revealer Revealer
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Server owns the router and the handler dependencies. The HTTP
// listener itself is managed by the runtime so embedders can mount the
// router wherever they like.
type Server struct {
	Router *chi.Mux

	log      *session.Log
	adapter  *capture.Adapter
	settings settings.Store
	revealer Revealer
	logger   *slog.Logger
	started  time.Time
}

// New creates a Server and registers all routes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	s := &Server{
		Router:   chi.NewRouter(),
		log:      cfg.Log,
		adapter:  cfg.Adapter,
		settings: cfg.Settings,
		revealer: cfg.Revealer,
		logger:   logger,
		started:  time.Now(),
	}
	s.routes(timeout)
	return s
}

func (s *Server) routes(timeout time.Duration) {
	r := s.Router

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "aurascope")
	})

	// The stream endpoint stays outside the timeout group: a WebSocket
	// lives as long as the panel does.
	r.Get("/api/stream", s.handleStream)

	r.Group(func(r chi.Router) {
		r.Use(TimeoutMiddleware(timeout))

		r.Post("/api/capture/exchange", s.handleIntake)
		r.Get("/api/calls", s.handleListCalls)
		r.Get("/api/calls/{id}", s.handleCallDetail)
		r.Delete("/api/calls", s.handleClearCalls)
		r.Get("/api/settings", s.handleGetSettings)
		r.Put("/api/settings", s.handlePutSettings)
		r.Post("/api/reveal", s.handleReveal)
		r.Get("/api/status", s.handleStatus)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONStatus(w, http.StatusOK, payload)
}

func writeJSONStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
