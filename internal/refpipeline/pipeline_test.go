package refpipeline

import (
	"math"
	"testing"

	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

func testConfig() Config {
	return Config{
		Horizon: 5, Dt1: 0.02, Dt2: 0.1,
		MaxAscendingSpeed: 3, MaxDescendingSpeed: 2, MaxHorizontalSpeed: 5,
		SafetyAreaMinHeight: 0.5,
	}
}

// TestSaturateVertical_ClampsAnOversizedAscentDelta is invariant 4's
// vertical half: sample-to-sample z motion must not exceed
// maxAscendingSpeed*dt / maxDescendingSpeed*dt.
func TestSaturateVertical_ClampsAnOversizedAscentDelta(t *testing.T) {
	p := New()
	cfg := testConfig()
	ref := types.NewHorizonReference(cfg.Horizon, 0, 0, 100, 0) // wildly above the start
	p.saturateVertical(cfg, ref, 0)

	wantFirstStep := cfg.MaxAscendingSpeed * cfg.Dt1
	if math.Abs(ref.Z[0]-wantFirstStep) > 1e-9 {
		t.Fatalf("ref.Z[0] = %v, want clamped to %v", ref.Z[0], wantFirstStep)
	}
	for i := 1; i < ref.Len(); i++ {
		delta := ref.Z[i] - ref.Z[i-1]
		if delta > cfg.MaxAscendingSpeed*cfg.Dt2+1e-9 {
			t.Fatalf("stage %d ascent delta = %v, exceeds %v", i, delta, cfg.MaxAscendingSpeed*cfg.Dt2)
		}
	}
}

func TestSaturateVertical_ClampsAnOversizedDescentDelta(t *testing.T) {
	p := New()
	cfg := testConfig()
	ref := types.NewHorizonReference(cfg.Horizon, 0, 0, -100, 0)
	p.saturateVertical(cfg, ref, 0)

	wantFirstStep := -cfg.MaxDescendingSpeed * cfg.Dt1
	if math.Abs(ref.Z[0]-wantFirstStep) > 1e-9 {
		t.Fatalf("ref.Z[0] = %v, want clamped to %v", ref.Z[0], wantFirstStep)
	}
}

// TestApplyAltitudeFloor_RaisesZToTheGreaterOfAvoidanceAndSafetyFloor is
// invariant 5: every horizon sample's z must be >= the avoidance floor,
// which is itself bounded below by the configured safety minimum.
func TestApplyAltitudeFloor_RaisesZToTheGreaterOfAvoidanceAndSafetyFloor(t *testing.T) {
	p := New()
	ref := types.NewHorizonReference(4, 0, 0, 0, 0)
	for i := range ref.Z {
		ref.Z[i] = 0.1
	}
	p.applyAltitudeFloor(ref, 1.0, 0.5)
	for i, z := range ref.Z {
		if z < 1.0-1e-9 {
			t.Fatalf("stage %d z = %v, want >= avoidance floor 1.0", i, z)
		}
	}
}

func TestApplyAltitudeFloor_FallsBackToSafetyMinimumWhenAvoidanceFloorIsLower(t *testing.T) {
	p := New()
	ref := types.NewHorizonReference(4, 0, 0, 0, 0)
	for i := range ref.Z {
		ref.Z[i] = 0.1
	}
	p.applyAltitudeFloor(ref, 0.0, 0.5)
	for i, z := range ref.Z {
		if z < 0.5-1e-9 {
			t.Fatalf("stage %d z = %v, want >= safety minimum 0.5", i, z)
		}
	}
}

// TestSaturateHorizontal_ClampsPerSampleSpeedToTheCap is invariant 4's
// horizontal half: per-sample horizontal motion must not exceed the
// resolved speed cap projected along the direction of travel.
func TestSaturateHorizontal_ClampsPerSampleSpeedToTheCap(t *testing.T) {
	p := New()
	cfg := testConfig()
	ref := types.NewHorizonReference(cfg.Horizon, 1000, 0, 0, 0) // far beyond reach in one horizon
	start := types.WorldPoint{X: 0, Y: 0, Z: 0}
	p.saturateHorizontal(cfg, ref, start, 0)

	prevX, prevY := start.X, start.Y
	for i := 0; i < ref.Len(); i++ {
		dt := cfg.Dt2
		if i == 0 {
			dt = cfg.Dt1
		}
		limit := cfg.MaxHorizontalSpeed * dt
		dist := math.Hypot(ref.X[i]-prevX, ref.Y[i]-prevY)
		if dist > limit+1e-6 {
			t.Fatalf("stage %d horizontal step = %v, exceeds limit %v", i, dist, limit)
		}
		prevX, prevY = ref.X[i], ref.Y[i]
	}
}

func TestSaturateHorizontal_SpeedCapOverridesConfiguredMaxWhenLower(t *testing.T) {
	p := New()
	cfg := testConfig()
	ref := types.NewHorizonReference(cfg.Horizon, 1000, 0, 0, 0)
	start := types.WorldPoint{}
	p.saturateHorizontal(cfg, ref, start, 1.0) // cap well below MaxHorizontalSpeed

	limit := 1.0 * cfg.Dt1
	dist := math.Hypot(ref.X[0]-start.X, ref.Y[0]-start.Y)
	if dist > limit+1e-6 {
		t.Fatalf("stage 0 horizontal step = %v, exceeds the lower speed-cap limit %v", dist, limit)
	}
}

func TestSaturateHorizontal_LeavesReachableMotionUnchanged(t *testing.T) {
	p := New()
	cfg := testConfig()
	ref := types.NewHorizonReference(cfg.Horizon, 0.001, 0, 0, 0) // trivially reachable
	start := types.WorldPoint{}
	p.saturateHorizontal(cfg, ref, start, 0)
	if math.Abs(ref.X[0]-0.001) > 1e-9 {
		t.Fatalf("expected a reachable step to pass through unchanged, got %v", ref.X[0])
	}
}

func TestUnwrapHeading_ProducesAContinuousSignalAcrossTheSeam(t *testing.T) {
	p := New()
	ref := types.NewHorizonReference(3, 0, 0, 0, 0)
	ref.Heading[0] = math.Pi - 0.1
	ref.Heading[1] = -math.Pi + 0.1
	ref.Heading[2] = -math.Pi + 0.2

	p.unwrapHeading(ref, math.Pi-0.2)

	for i := 1; i < len(ref.Heading); i++ {
		if math.Abs(ref.Heading[i]-ref.Heading[i-1]) > math.Pi {
			t.Fatalf("stage %d heading jumped discontinuously: %v -> %v", i, ref.Heading[i-1], ref.Heading[i])
		}
	}
}

func TestIsStationary_TrueWhenEveryStageMatchesTheFirst(t *testing.T) {
	ref := types.NewHorizonReference(4, 1, 2, 3, 0)
	if !IsStationary(ref, 1e-6) {
		t.Fatalf("expected a constant horizon to be reported stationary")
	}
}

func TestIsStationary_FalseWhenHorizontalMotionExceedsTolerance(t *testing.T) {
	ref := types.NewHorizonReference(4, 0, 0, 0, 0)
	ref.X[2] = 10
	if IsStationary(ref, 1e-6) {
		t.Fatalf("expected horizontal motion beyond tolerance to break stationarity")
	}
}

func TestIsStationary_FalseWhenVerticalMotionExceedsTolerance(t *testing.T) {
	ref := types.NewHorizonReference(4, 0, 0, 0, 0)
	ref.Z[1] = 5
	if IsStationary(ref, 1e-6) {
		t.Fatalf("expected vertical motion beyond tolerance to break stationarity")
	}
}

func TestIsStationary_EmptyHorizonIsStationary(t *testing.T) {
	ref := types.NewHorizonReference(0, 0, 0, 0, 0)
	if !IsStationary(ref, 1e-6) {
		t.Fatalf("expected an empty horizon to be trivially stationary")
	}
}

func TestReshape_ProducesAFeasibleReferenceEndToEnd(t *testing.T) {
	p := New()
	cfg := testConfig()
	desired := types.NewHorizonReference(cfg.Horizon, 1000, 1000, 1000, math.Pi-0.05)
	out := p.Reshape(cfg, desired, types.WorldPoint{}, math.Pi-0.1, 0.5, 0)

	if out.Len() != cfg.Horizon {
		t.Fatalf("expected reshaped horizon length %d, got %d", cfg.Horizon, out.Len())
	}
	for i, z := range out.Z {
		if z < cfg.SafetyAreaMinHeight-1e-9 {
			t.Fatalf("stage %d z = %v, below safety floor %v", i, z, cfg.SafetyAreaMinHeight)
		}
	}
}
