package linetracker

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

func testConfig() Config {
	return Config{
		HorizontalSpeed:        2.0,
		HorizontalAcceleration: 1.0,
		VerticalSpeed:          1.0,
		VerticalAcceleration:   0.5,
		YawRate:                1.0,
		YawGain:                2.0,
		Dt:                     20 * time.Millisecond,
	}
}

func TestActivate_SucceedsFromEstimatorAlone(t *testing.T) {
	tr := New(testConfig())
	est := types.VehicleState{X: 0, Y: 0, Z: 0, Heading: 0}
	res := tr.Activate(nil, est)
	if !res.Success {
		t.Fatalf("activation should succeed from estimator: %v", res.Message)
	}
	status := tr.Status()
	if !status.Active {
		t.Fatalf("expected tracker to be active")
	}
}

func TestSetReference_DrivesStateTowardGoal(t *testing.T) {
	tr := New(testConfig())
	est := types.VehicleState{}
	tr.Activate(nil, est)
	tr.SetReference(types.SetpointReference{X: 5, Y: 0, Z: 0, Heading: 0, UseHeading: true})

	var cmd types.PositionCommand
	for i := 0; i < 2000; i++ {
		var err error
		cmd, err = tr.Update(context.Background(), est, time.Now())
		if err != nil {
			t.Fatalf("update error: %v", err)
		}
		if !tr.Status().HasGoal {
			break
		}
	}

	if math.Abs(cmd.X.Position-5) > 0.05 {
		t.Fatalf("expected to converge near x=5, got %v", cmd.X.Position)
	}
}

func TestHover_HoldsCurrentPositionIdempotently(t *testing.T) {
	tr := New(testConfig())
	est := types.VehicleState{X: 1, Y: 2, Z: 3}
	tr.Activate(nil, est)
	tr.Hover()
	first := tr.Status().CurrentReference
	tr.Hover()
	second := tr.Status().CurrentReference
	if first != second {
		t.Fatalf("expected hover to be idempotent, got %+v vs %+v", first, second)
	}
}

func TestSwitchOdometrySource_TranslatesGoalAndState(t *testing.T) {
	tr := New(testConfig())
	est := types.VehicleState{}
	tr.Activate(nil, est)
	tr.SetReference(types.SetpointReference{X: 5, Y: 5, Z: 0})

	old := types.VehicleState{X: 0, Y: 0, Heading: 0}
	next := types.VehicleState{X: 1, Y: 1, Heading: 0}
	tr.SwitchOdometrySource(old, next)

	tr.mu.Lock()
	gx, gy := tr.goalX, tr.goalY
	tr.mu.Unlock()

	if math.Abs(gx-6) > 1e-9 || math.Abs(gy-6) > 1e-9 {
		t.Fatalf("expected goal translated by (1,1), got (%v, %v)", gx, gy)
	}
}

func TestSetTrajectory_Unsupported(t *testing.T) {
	tr := New(testConfig())
	res := tr.SetTrajectory(types.TrajectoryReference{})
	if res.Success {
		t.Fatalf("expected trajectory tracking to be rejected by the line tracker")
	}
}

func TestUpdate_InactiveReturnsZeroCommand(t *testing.T) {
	tr := New(testConfig())
	cmd, err := tr.Update(context.Background(), types.VehicleState{}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.X.UsePosition {
		t.Fatalf("expected a zero-value command while inactive")
	}
}
