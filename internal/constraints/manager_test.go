package constraints

import (
	"testing"

	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

func wideLimits(speed, accel float64) types.AxisLimits {
	return types.AxisLimits{MaxSpeed: speed, MaxAcceleration: accel, MaxJerk: 10, MaxSnap: 10}
}

func TestSetRequested_AppliesSpeedImmediately(t *testing.T) {
	m := New()
	m.SetRequested(types.DynamicConstraints{
		X: wideLimits(4, 5), Y: wideLimits(4, 5), Z: wideLimits(4, 5),
		Heading: types.HeadingLimits{MaxSpeed: 1, MaxAcceleration: 1, MaxJerk: 1, MaxSnap: 1},
	})
	m.TryCommitPending(types.PlantState{})

	res := m.SetRequested(types.DynamicConstraints{
		X: wideLimits(4, 0.5), Y: wideLimits(4, 0.5), Z: wideLimits(4, 0.5),
		Heading: types.HeadingLimits{MaxSpeed: 1, MaxAcceleration: 1, MaxJerk: 1, MaxSnap: 1},
	})
	if !res.Success {
		t.Fatalf("expected success, got %v", res)
	}

	eff := m.Effective()
	if eff.X.MaxSpeed != 4 {
		t.Fatalf("speed should apply immediately, got %v", eff.X.MaxSpeed)
	}
	if eff.X.MaxAcceleration != 5 {
		t.Fatalf("acceleration should remain at the wider prior value until commit, got %v", eff.X.MaxAcceleration)
	}
	if !m.HasPending() {
		t.Fatalf("expected a pending commit")
	}
}

func TestTryCommitPending_WaitsUntilStateIsWithinEnvelope(t *testing.T) {
	m := New()
	m.SetRequested(types.DynamicConstraints{
		X: wideLimits(4, 0.5), Y: wideLimits(4, 0.5), Z: wideLimits(4, 0.5),
		Heading: types.HeadingLimits{MaxSpeed: 1, MaxAcceleration: 1, MaxJerk: 1, MaxSnap: 1},
	})

	outOfEnvelope := types.PlantState{}
	outOfEnvelope.X.Acceleration = 3 // exceeds the pending 0.5 limit
	if m.TryCommitPending(outOfEnvelope) {
		t.Fatalf("expected commit to be deferred while acceleration exceeds the pending bound")
	}
	if !m.HasPending() {
		t.Fatalf("pending commit should still be outstanding")
	}

	inEnvelope := types.PlantState{}
	inEnvelope.X.Acceleration = 0.1
	if !m.TryCommitPending(inEnvelope) {
		t.Fatalf("expected commit once state is within the pending envelope")
	}
	if m.HasPending() {
		t.Fatalf("pending flag should clear after commit")
	}
	if m.Effective().X.MaxAcceleration != 0.5 {
		t.Fatalf("effective acceleration = %v, want committed 0.5", m.Effective().X.MaxAcceleration)
	}
}

func TestSetRequested_RejectsInvalidValues(t *testing.T) {
	m := New()
	res := m.SetRequested(types.DynamicConstraints{
		X: types.AxisLimits{MaxSpeed: -1},
	})
	if res.Success {
		t.Fatalf("expected negative speed to be rejected")
	}
}
