package frameswitch

import (
	"math"
	"testing"

	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

func TestCompute_DerivesDeltaFromEstimatorSamples(t *testing.T) {
	old := types.VehicleState{X: 0, Y: 0, Z: 5, Heading: 0}
	next := types.VehicleState{X: 1, Y: 1, Z: 5, Heading: math.Pi / 2}

	d := Compute(old, next)
	if d.DX != 1 || d.DY != 1 || d.DZ != 0 {
		t.Fatalf("delta = %+v, want dx=dy=1 dz=0", d)
	}
	if math.Abs(d.DHeading-math.Pi/2) > 1e-9 {
		t.Fatalf("dheading = %v, want pi/2", d.DHeading)
	}
}

func TestApplyToSetpoint_RotatesAndTranslates(t *testing.T) {
	// S5 scenario: F2 is F1 translated by (1,1,0) and rotated by 90 degrees.
	old := types.VehicleState{X: 0, Y: 0, Heading: 0}
	next := types.VehicleState{X: 1, Y: 1, Heading: math.Pi / 2}
	d := Compute(old, next)

	sp := types.SetpointReference{X: 10, Y: 0, Z: 5, Heading: 0, UseHeading: true}
	out := d.ApplyToSetpoint(sp)

	if math.Abs(out.X-1) > 1e-9 || math.Abs(out.Y-11) > 1e-9 {
		t.Fatalf("transformed setpoint = (%v, %v), want (1, 11)", out.X, out.Y)
	}
	if math.Abs(out.Heading-math.Pi/2) > 1e-9 {
		t.Fatalf("transformed heading = %v, want pi/2", out.Heading)
	}
}

func TestApplyToPlant_ZerosAccelerationAndKeepsVerticalVelocity(t *testing.T) {
	d := Delta{NewX: 1, NewY: 1, DHeading: math.Pi / 2}
	state := types.PlantState{}
	state.X.Acceleration = 3
	state.Z.Velocity = 0.5

	next := types.VehicleState{VelX: 2, VelY: -1, AngularZ: 0.3}
	out := d.ApplyToPlant(state, next)

	if out.X.Acceleration != 0 || out.Y.Acceleration != 0 || out.Z.Acceleration != 0 {
		t.Fatalf("expected accelerations zeroed, got %+v", out)
	}
	if out.Z.Velocity != 0.5 {
		t.Fatalf("vertical velocity must be left as-is, got %v", out.Z.Velocity)
	}
	if out.X.Velocity != 2 || out.Y.Velocity != -1 {
		t.Fatalf("horizontal velocity should be reinitialised from estimator, got %+v", out)
	}
	if out.Heading.Rate != 0.3 {
		t.Fatalf("heading rate should come from AngularZ, got %v", out.Heading.Rate)
	}
}

func TestApplyToHorizon_TransformsEverySample(t *testing.T) {
	d := Delta{NewX: 1, NewY: 1, DHeading: math.Pi / 2}
	ref := types.NewHorizonReference(2, 10, 0, 5, 0)
	d.ApplyToHorizon(ref)

	if math.Abs(ref.X[0]-1) > 1e-9 || math.Abs(ref.Y[0]-11) > 1e-9 {
		t.Fatalf("sample 0 = (%v, %v), want (1, 11)", ref.X[0], ref.Y[0])
	}
}

// TestTransformPoint_PivotsAroundOldPositionNotOrigin guards against
// rotating the raw coordinate about the world origin: mpc_tracker.cpp
// rotates (p - old_position) and only then adds the new position, so a
// nonzero old position must change the result relative to an
// origin-pivoted rotation.
func TestTransformPoint_PivotsAroundOldPositionNotOrigin(t *testing.T) {
	old := types.VehicleState{X: 5, Y: 5, Z: 2, Heading: 0}
	next := types.VehicleState{X: 6, Y: 6, Z: 2, Heading: math.Pi / 2}
	d := Compute(old, next)

	// p is (10, 0) offset from the old position; rotating that offset by
	// +90 degrees gives (0, 10), then the new position is added back.
	nx, ny, nz := d.TransformPoint(15, 5, 2)
	if math.Abs(nx-6) > 1e-9 || math.Abs(ny-16) > 1e-9 {
		t.Fatalf("transformed point = (%v, %v), want (6, 16) pivoting around the old position", nx, ny)
	}
	if math.Abs(nz-2) > 1e-9 {
		t.Fatalf("z should translate linearly, got %v, want 2", nz)
	}

	// An origin-pivoted rotation (the bug) would instead give
	// R(90)*(15,5) + (1,1) = (-5+1, 15+1) = (-4, 16); confirm we are not
	// producing that answer.
	if math.Abs(nx-(-4)) < 1e-9 {
		t.Fatalf("transformed point rotated around the world origin instead of the old position")
	}
}

func TestTransformWorldPoint_ReportsFailureOnNonFinite(t *testing.T) {
	d := Delta{}
	_, err := d.TransformWorldPoint(types.WorldPoint{X: math.NaN()})
	if err == nil {
		t.Fatalf("expected transform failure for a non-finite point")
	}
}
