package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kvcanary/internal/metrics"
)

// MetricsPath is where the Prometheus exposition is served.
const MetricsPath = "/metrics"

// StreamPath serves the live snapshot websocket when streaming is enabled.
const StreamPath = "/stream"

// Server exposes the canary state over HTTP. It only reads the state.
type Server struct {
	httpServer *http.Server
	state      metrics.SnapshotSource
	registry   *prometheus.Registry
	log        *slog.Logger

	stream     bool
	streamPoll time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithStream enables the /stream websocket endpoint.
func WithStream(enabled bool) Option {
	return func(s *Server) {
		s.stream = enabled
	}
}

// WithStreamPoll sets how often stream connections check for a new tick.
func WithStreamPoll(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamPoll = d
		}
	}
}

// WithLogger sets the logger used for server errors. Requests are never logged.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// New creates an exporter for state listening on addr.
func New(addr string, state metrics.SnapshotSource, opts ...Option) *Server {
	s := &Server{
		state:      state,
		registry:   prometheus.NewRegistry(),
		log:        slog.Default(),
		streamPoll: time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.registry.MustRegister(metrics.NewCollector(state))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelDebug),
	}
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the listener synchronously, so a busy port is reported to the
// caller, then serves in the background.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server stopped", "error", err)
		}
	}()
	return ln.Addr(), nil
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Method(http.MethodGet, MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(s.log.Handler(), slog.LevelError),
		ErrorHandling: promhttp.ContinueOnError,
	}))
	if s.stream {
		r.Get(StreamPath, s.handleStream)
	}
	return r
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}
