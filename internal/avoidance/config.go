package avoidance

import "time"

// Config bundles the avoidance coordinator's tunables (spec.md section 6,
// "avoidance {...}").
type Config struct {
	Enabled bool

	OwnUAVName string
	OwnPriority int

	HorizontalRadius    float64
	VerticalThreshold   float64
	HeightCorrection    float64
	SafetyAreaMinHeight float64

	TrajectoryTimeout time.Duration

	SlowDownFully        int
	SlowDownStart        int
	StartClimbingSamples int
	HorizontalSpeedCoef  float64

	PublishRate time.Duration

	// FloorDecayPerTick is the rate the altitude floor relaxes toward
	// SafetyAreaMinHeight once no avoidance is active
	// (original_source/src/mpc_tracker/mpc_tracker.cpp hardcodes 0.02).
	FloorDecayPerTick float64

	// SpeedScaleHoldTime is the minimum duration a horizontal-speed scale
	// factor is held before a smaller one may replace it; a larger factor
	// replaces it immediately (original source hardcodes 2 s).
	SpeedScaleHoldTime time.Duration
}
