package diagnostics

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
)

var log = obslog.For("diagnostics")

// driftWindow bounds the rolling tick-duration sample count kept for the
// montanaflynn/stats summary; older samples are dropped.
const driftWindow = 1024

// DriftTracker compares each tick's wall time against the configured
// control period and counts the ticks that overran it. It measures the
// fraction of overrunning ticks; it does not accumulate overrun duration
// against elapsed uptime.
type DriftTracker struct {
	mu sync.Mutex

	controlPeriod time.Duration
	startedAt     time.Time

	totalTicks    uint64
	overBudget    uint64
	recentSeconds []float64
}

// NewDriftTracker creates a tracker for the given nominal control period.
func NewDriftTracker(controlPeriod time.Duration) *DriftTracker {
	return &DriftTracker{controlPeriod: controlPeriod}
}

// RecordTick registers one tick's measured wall-clock duration.
func (d *DriftTracker) RecordTick(duration time.Duration, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.startedAt.IsZero() {
		d.startedAt = now
	}
	d.totalTicks++
	if duration > d.controlPeriod {
		d.overBudget++
	}

	d.recentSeconds = append(d.recentSeconds, duration.Seconds())
	if len(d.recentSeconds) > driftWindow {
		d.recentSeconds = d.recentSeconds[len(d.recentSeconds)-driftWindow:]
	}
}

// Ratio returns the fraction of recorded ticks that exceeded the control
// period. The caller reports this in diagnostics once it crosses 0.01.
func (d *DriftTracker) Ratio() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.totalTicks == 0 {
		return 0
	}
	return float64(d.overBudget) / float64(d.totalTicks)
}

// RollingMean returns the mean tick duration (seconds) over the recent
// window, using montanaflynn/stats.
func (d *DriftTracker) RollingMean() float64 {
	d.mu.Lock()
	samples := append([]float64(nil), d.recentSeconds...)
	d.mu.Unlock()

	if len(samples) == 0 {
		return 0
	}
	mean, err := stats.Mean(samples)
	if err != nil {
		log.WithError(err).Warn("failed to compute rolling tick-duration mean")
		return 0
	}
	return mean
}

// RollingStdDev returns the standard deviation of tick durations
// (seconds) over the recent window.
func (d *DriftTracker) RollingStdDev() float64 {
	d.mu.Lock()
	samples := append([]float64(nil), d.recentSeconds...)
	d.mu.Unlock()

	if len(samples) < 2 {
		return 0
	}
	sd, err := stats.StandardDeviation(samples)
	if err != nil {
		log.WithError(err).Warn("failed to compute rolling tick-duration stddev")
		return 0
	}
	return sd
}

// ExceedsReportThreshold reports whether more than 1% of the recorded
// ticks overran the control period.
func (d *DriftTracker) ExceedsReportThreshold() bool {
	return d.Ratio() > 0.01
}
