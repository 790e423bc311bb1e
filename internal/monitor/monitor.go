package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"kvcanary/internal/metrics"
	"kvcanary/internal/models"
	"kvcanary/internal/probe"
)

// ErrTooManyFailures is returned by Run when the consecutive failure limit is reached.
var ErrTooManyFailures = errors.New("too many consecutive failures")

// Prober executes one canary round trip.
type Prober interface {
	Execute(ctx context.Context) probe.Result
}

// Sink receives every published snapshot.
type Sink interface {
	Persist(models.Snapshot)
}

// Tick is what one loop iteration produced.
type Tick struct {
	Result   probe.Result
	Snapshot models.Snapshot
}

// Monitor periodically probes the target and publishes metrics.
type Monitor struct {
	interval    time.Duration
	maxFailures int
	prober      Prober
	state       *metrics.State
	sink        Sink
	status      *statusPrinter
	log         *slog.Logger
	now         func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the pause between ticks.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d >= 0 {
			m.interval = d
		}
	}
}

// WithMaxFailures stops Run after n consecutive failures; 0 disables the limit.
func WithMaxFailures(n int) Option {
	return func(m *Monitor) {
		if n >= 0 {
			m.maxFailures = n
		}
	}
}

// WithSink sets where snapshots are persisted after each tick.
func WithSink(sink Sink) Option {
	return func(m *Monitor) {
		m.sink = sink
	}
}

// WithOutput redirects the per-tick status lines (stdout by default).
func WithOutput(w io.Writer) Option {
	return func(m *Monitor) {
		if w != nil {
			m.status = newStatusPrinter(w)
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.log = logger
		}
	}
}

// New creates a monitor driving prober and publishing into state.
func New(prober Prober, state *metrics.State, opts ...Option) *Monitor {
	m := &Monitor{
		interval: 10 * time.Second,
		prober:   prober,
		state:    state,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.status == nil {
		m.status = newStatusPrinter(os.Stdout)
	}
	return m
}

// RunOnce executes a single tick: probe, publish, persist and report.
// The probe itself is not cancelled by ctx; a hung request runs into its own timeout.
func (m *Monitor) RunOnce(ctx context.Context) Tick {
	m.log.Debug("canary: starting probe", "check", m.state.Snapshot().TotalChecks+1)

	res := m.prober.Execute(context.WithoutCancel(ctx))
	snap := m.state.Record(res.OK(), metrics.LatencyMillis(res.Latency), m.now())

	if m.sink != nil {
		m.sink.Persist(snap)
	}
	m.status.print(res, snap)
	return Tick{Result: res, Snapshot: snap}
}

// Run loops until ctx is cancelled (returning nil) or the consecutive
// failure limit is hit (returning an error wrapping ErrTooManyFailures).
func (m *Monitor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		tick := m.RunOnce(ctx)
		if m.maxFailures > 0 && tick.Snapshot.ConsecutiveFailures >= int64(m.maxFailures) {
			return fmt.Errorf("%w: exiting after %d consecutive failures",
				ErrTooManyFailures, tick.Snapshot.ConsecutiveFailures)
		}

		timer := time.NewTimer(m.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
