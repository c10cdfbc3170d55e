package diagnostics

import (
	"testing"
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

func TestDriftTracker_RatioTracksOverBudgetTicks(t *testing.T) {
	d := NewDriftTracker(10 * time.Millisecond)
	now := time.Now()

	for i := 0; i < 90; i++ {
		d.RecordTick(5*time.Millisecond, now)
	}
	for i := 0; i < 10; i++ {
		d.RecordTick(20*time.Millisecond, now)
	}

	if d.Ratio() < 0.09 || d.Ratio() > 0.11 {
		t.Fatalf("ratio = %v, want ~0.1", d.Ratio())
	}
	if !d.ExceedsReportThreshold() {
		t.Fatalf("expected ratio above the 1%% report threshold")
	}
}

func TestHasGoal_FalseWhenWithinThresholds(t *testing.T) {
	goal := types.SetpointReference{X: 1, Y: 1, Z: 1, Heading: 0, UseHeading: true}
	current := types.WorldPoint{X: 1.01, Y: 1.0, Z: 1.0}
	if HasGoal(current, 0.01, goal, 0.1, 0.1) {
		t.Fatalf("expected no outstanding goal within thresholds")
	}
}

func TestHasGoal_TrueWhenPositionFarFromSetpoint(t *testing.T) {
	goal := types.SetpointReference{X: 10, Y: 10, Z: 10}
	current := types.WorldPoint{X: 0, Y: 0, Z: 0}
	if !HasGoal(current, 0, goal, 0.1, 0.1) {
		t.Fatalf("expected an outstanding goal when far from the setpoint")
	}
}
