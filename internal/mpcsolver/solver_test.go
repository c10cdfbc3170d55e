package mpcsolver

import (
	"math"
	"testing"
)

func testConfig() Config {
	return Config{Horizon: 8, Dt1: 0.02, Dt2: 0.1, R: 0.01, MaxIterations: 15}
}

func testWeights() QWeights {
	return QWeights{Position: 10, VelBraking: 5, VelNoBraking: 1, Acceleration: 0.5, Jerk: 0.1}
}

func testBounds() Bounds {
	return Bounds{MaxVel: 5, MinVel: -5, MaxAcc: 3, MinAcc: -3, MaxJerk: 10, MaxSnap: 50}
}

func TestNew_AppliesDefaultsWhenUnset(t *testing.T) {
	s := New(Config{})
	if s.cfg.Horizon != 40 {
		t.Fatalf("expected default horizon 40, got %d", s.cfg.Horizon)
	}
	if s.cfg.MaxIterations != 20 {
		t.Fatalf("expected default max iterations 20, got %d", s.cfg.MaxIterations)
	}
}

func TestSolve_DrivesFirstInputTowardThePositiveReference(t *testing.T) {
	s := New(testConfig())
	ref := make([]float64, testConfig().Horizon)
	for i := range ref {
		ref[i] = 10
	}
	snap, predicted, _, _ := s.Solve(State4{}, ref, testWeights(), testBounds(), false)
	if snap <= 0 {
		t.Fatalf("expected a positive first-tick snap toward a positive reference, got %v", snap)
	}
	if len(predicted) != testConfig().Horizon {
		t.Fatalf("expected %d predicted stages, got %d", testConfig().Horizon, len(predicted))
	}
}

func TestSolve_ZeroReferenceAtRestReturnsZeroInput(t *testing.T) {
	s := New(testConfig())
	ref := make([]float64, testConfig().Horizon)
	snap, _, _, converged := s.Solve(State4{}, ref, testWeights(), testBounds(), false)
	if math.Abs(snap) > 1e-9 {
		t.Fatalf("expected ~zero input when already at the zero reference, got %v", snap)
	}
	if !converged {
		t.Fatalf("expected convergence for a trivially feasible problem")
	}
}

// TestProjectOntoBounds_ClampsVelocityWithinHorizon is invariant 3: no
// predicted stage may exceed the resolved velocity/acceleration/jerk
// bounds, even when the unconstrained solve would overshoot them.
func TestProjectOntoBounds_ClampsVelocityWithinHorizon(t *testing.T) {
	s := New(testConfig())
	ref := make([]float64, testConfig().Horizon)
	for i := range ref {
		ref[i] = 1000 // wildly infeasible within the horizon at the given bounds
	}
	bounds := testBounds()
	_, predicted, iterations, converged := s.Solve(State4{}, ref, testWeights(), bounds, false)

	if iterations < 1 {
		t.Fatalf("expected at least one projection iteration, got %d", iterations)
	}
	for i, st := range predicted {
		if st.Velocity > bounds.MaxVel+1e-6 || st.Velocity < bounds.MinVel-1e-6 {
			t.Fatalf("stage %d velocity = %v, outside [%v, %v]", i, st.Velocity, bounds.MinVel, bounds.MaxVel)
		}
		if st.Acceleration > bounds.MaxAcc+1e-6 || st.Acceleration < bounds.MinAcc-1e-6 {
			t.Fatalf("stage %d acceleration = %v, outside [%v, %v]", i, st.Acceleration, bounds.MinAcc, bounds.MaxAcc)
		}
		if math.Abs(st.Jerk) > bounds.MaxJerk+1e-6 {
			t.Fatalf("stage %d jerk = %v, exceeds %v", i, st.Jerk, bounds.MaxJerk)
		}
	}
	_ = converged
}

func TestProjectOntoBounds_GivesUpAfterMaxIterationsWithoutPanicking(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 2
	s := New(cfg)
	ref := make([]float64, cfg.Horizon)
	for i := range ref {
		ref[i] = 1e6
	}
	// An essentially unreachable reference with a tiny iteration budget
	// and tight state bounds should report non-convergence rather than
	// loop forever or panic. The snap cap is left loose so that clamping
	// alone cannot make the sequence feasible.
	tight := Bounds{MaxVel: 0.01, MinVel: -0.01, MaxAcc: 0.01, MinAcc: -0.01, MaxJerk: 0.01, MaxSnap: 1e9}
	_, _, iterations, converged := s.Solve(State4{}, ref, testWeights(), tight, false)
	if iterations > cfg.MaxIterations {
		t.Fatalf("iterations = %d, exceeds MaxIterations %d", iterations, cfg.MaxIterations)
	}
	if converged {
		t.Fatalf("expected non-convergence against an unreachable reference with a tiny iteration budget")
	}
}

func TestSolve_BrakingSwapsToTheBrakingVelocityWeight(t *testing.T) {
	s := New(testConfig())
	ref := make([]float64, testConfig().Horizon)
	for i := range ref {
		ref[i] = 5
	}
	weights := testWeights()
	snapBrake, _, _, _ := s.Solve(State4{}, ref, weights, testBounds(), true)
	snapNoBrake, _, _, _ := s.Solve(State4{}, ref, weights, testBounds(), false)

	if snapBrake == snapNoBrake {
		t.Fatalf("expected braking and non-braking solves to diverge given VelBraking != VelNoBraking")
	}
}

func TestPadOrTruncate_PadsWithFinalValue(t *testing.T) {
	out := padOrTruncate([]float64{1, 2}, 4)
	want := []float64{1, 2, 2, 2}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("padOrTruncate = %v, want %v", out, want)
		}
	}
}

func TestPadOrTruncate_TruncatesExcessSamples(t *testing.T) {
	out := padOrTruncate([]float64{1, 2, 3, 4}, 2)
	if len(out) != 2 || out[0] != 1 || out[1] != 2 {
		t.Fatalf("padOrTruncate = %v, want [1 2]", out)
	}
}

func TestPadOrTruncate_EmptyInputStaysZero(t *testing.T) {
	out := padOrTruncate(nil, 3)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("padOrTruncate(nil)[%d] = %v, want 0", i, v)
		}
	}
}
