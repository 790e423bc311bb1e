package models

// Snapshot is the canary's metrics record for the most recent tick.
// Values are never mutated after publication; each tick produces a new one.
type Snapshot struct {
	LastCheckTS         int64   `json:"last_check_ts"`
	LastOK              bool    `json:"last_ok"`
	LastLatencyMS       float64 `json:"last_latency_ms"`
	TotalChecks         int64   `json:"total_checks"`
	TotalFailures       int64   `json:"total_failures"`
	ConsecutiveFailures int64   `json:"consecutive_failures"`
}
