package metrics

import (
	"math"
	"time"

	"kvcanary/internal/models"
)

// Availability returns the percentage of passing checks in s, rounded to two
// decimals. A canary that has not probed yet reports 100.
func Availability(s models.Snapshot) float64 {
	if s.TotalChecks <= 0 {
		return 100
	}
	passing := s.TotalChecks - s.TotalFailures
	return round2(float64(passing) / float64(s.TotalChecks) * 100)
}

// LatencyMillis converts a probe duration to milliseconds with two decimals.
func LatencyMillis(d time.Duration) float64 {
	if d < 0 {
		d = 0
	}
	return round2(d.Seconds() * 1000)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
