package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"kvcanary/internal/models"
)

const namespace = "canary"

// SnapshotSource is the read side of State.
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

// Collector exposes a SnapshotSource as Prometheus gauges. Each scrape reads
// a single snapshot so every series comes from the same tick.
type Collector struct {
	source SnapshotSource

	lastOK              *prometheus.Desc
	lastLatency         *prometheus.Desc
	totalChecks         *prometheus.Desc
	totalFailures       *prometheus.Desc
	consecutiveFailures *prometheus.Desc
	availability        *prometheus.Desc
	lastCheckTS         *prometheus.Desc
}

// NewCollector builds a collector reading from source.
func NewCollector(source SnapshotSource) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		source:              source,
		lastOK:              desc("last_ok", "Whether the last probe succeeded (1=ok, 0=fail)"),
		lastLatency:         desc("last_latency_ms", "Latency of last probe in milliseconds"),
		totalChecks:         desc("total_checks", "Total number of probe checks"),
		totalFailures:       desc("total_failures", "Total number of failed probes"),
		consecutiveFailures: desc("consecutive_failures", "Consecutive failures count"),
		availability:        desc("availability_pct", "Availability percentage (100 * (checks - failures) / checks)"),
		lastCheckTS:         desc("last_check_ts", "Timestamp of last check (ms since epoch)"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lastOK
	ch <- c.lastLatency
	ch <- c.totalChecks
	ch <- c.totalFailures
	ch <- c.consecutiveFailures
	ch <- c.availability
	ch <- c.lastCheckTS
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()

	lastOK := 0.0
	if snap.LastOK {
		lastOK = 1
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	gauge(c.lastOK, lastOK)
	gauge(c.lastLatency, snap.LastLatencyMS)
	gauge(c.totalChecks, float64(snap.TotalChecks))
	gauge(c.totalFailures, float64(snap.TotalFailures))
	gauge(c.consecutiveFailures, float64(snap.ConsecutiveFailures))
	gauge(c.availability, Availability(snap))
	gauge(c.lastCheckTS, float64(snap.LastCheckTS))
}
