package metrics

import (
	"sync/atomic"
	"time"

	"kvcanary/internal/models"
)

// State holds the latest canary snapshot. It has a single writer (the
// control loop) and any number of concurrent readers; every update swaps in
// a complete record so readers never observe a half-applied tick.
type State struct {
	current atomic.Pointer[models.Snapshot]
}

// NewState returns a State holding the zero snapshot.
func NewState() *State {
	s := &State{}
	s.current.Store(&models.Snapshot{})
	return s
}

// Snapshot returns the most recently published record.
func (s *State) Snapshot() models.Snapshot {
	if p := s.current.Load(); p != nil {
		return *p
	}
	return models.Snapshot{}
}

// Record folds one probe result into the counters and publishes the result.
// It must only be called from one goroutine at a time.
func (s *State) Record(ok bool, latencyMS float64, at time.Time) models.Snapshot {
	prev := s.Snapshot()
	next := models.Snapshot{
		LastCheckTS:         at.UnixMilli(),
		LastOK:              ok,
		LastLatencyMS:       latencyMS,
		TotalChecks:         prev.TotalChecks + 1,
		TotalFailures:       prev.TotalFailures,
		ConsecutiveFailures: 0,
	}
	if !ok {
		next.TotalFailures++
		next.ConsecutiveFailures = prev.ConsecutiveFailures + 1
	}
	s.current.Store(&next)
	return next
}

// Publish replaces the current record wholesale.
func (s *State) Publish(snap models.Snapshot) {
	s.current.Store(&snap)
}
