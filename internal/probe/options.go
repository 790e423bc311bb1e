package probe

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds each of the probe's two HTTP requests.
const DefaultTimeout = 30 * time.Second

// HTTPDoer represents the subset of *http.Client used by the executor.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient overrides the HTTP client used for probe requests.
func WithHTTPClient(client HTTPDoer) Option {
	return func(e *Executor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithTimeout sets the per-request timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger injects the logger used for probe step diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.log = logger
		}
	}
}

// WithClock replaces the wall clock used to stamp probe values.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}
