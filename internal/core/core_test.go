package core

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/avoidance"
	"github.com/PossumXI/Asgard/mpctracker/internal/mpcsolver"
	"github.com/PossumXI/Asgard/mpctracker/internal/plant"
	"github.com/PossumXI/Asgard/mpctracker/internal/refpipeline"
	"github.com/PossumXI/Asgard/mpctracker/internal/trajectory"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

func testCore() *Core {
	dt1 := 20 * time.Millisecond
	dt2 := 100 * time.Millisecond
	horizon := 10

	weights := mpcsolver.QWeights{Position: 10, VelBraking: 5, VelNoBraking: 1, Acceleration: 0.5, Jerk: 0.1}

	cfg := Config{
		Plant: plant.Config{ControlPeriod: dt1, SampleSpacing: dt2},
		Solver: mpcsolver.Config{
			Horizon: horizon, Dt1: dt1.Seconds(), Dt2: dt2.Seconds(), R: 0.01, MaxIterations: 10,
		},
		WeightsX: weights, WeightsY: weights, WeightsZ: weights, WeightsYaw: weights,
		RefPipeline: refpipeline.Config{
			Horizon: horizon, Dt1: dt1.Seconds(), Dt2: dt2.Seconds(),
			MaxAscendingSpeed: 3, MaxDescendingSpeed: 2, MaxHorizontalSpeed: 5,
			SafetyAreaMinHeight: 0.5,
		},
		Trajectory: trajectory.Config{ControlPeriod: dt1, SampleSpacing: dt2, Horizon: horizon},
		Avoidance:  avoidance.Config{Enabled: false, SafetyAreaMinHeight: 0.5},
	}
	return New(cfg, avoidance.NewRegistry(), nil)
}

func wideLimits() types.DynamicConstraints {
	axis := types.AxisLimits{MaxSpeed: 5, MaxAcceleration: 5, MaxJerk: 20, MaxSnap: 100}
	return types.DynamicConstraints{
		X: axis, Y: axis, Z: axis,
		Heading: types.HeadingLimits{MaxSpeed: 2, MaxAcceleration: 5, MaxJerk: 20, MaxSnap: 100},
	}
}

func TestActivate_RequiresConstraintsFirst(t *testing.T) {
	c := testCore()
	est := types.VehicleState{}
	res := c.Activate(nil, est)
	if res.Success {
		t.Fatalf("expected activation to fail before constraints are received")
	}

	c.SetConstraints(wideLimits())
	res = c.Activate(nil, est)
	if !res.Success {
		t.Fatalf("expected activation to succeed once constraints are set: %v", res.Message)
	}
}

func TestUpdate_DrivesTowardSetReference(t *testing.T) {
	c := testCore()
	est := types.VehicleState{}
	c.SetConstraints(wideLimits())
	c.Activate(nil, est)
	c.SetReference(types.SetpointReference{X: 2, Y: 0, Z: 1, Heading: 0, UseHeading: true})

	var cmd types.PositionCommand
	now := time.Now()
	for i := 0; i < 500; i++ {
		now = now.Add(20 * time.Millisecond)
		var err error
		cmd, err = c.Update(context.Background(), est, now)
		if err != nil {
			t.Fatalf("update error: %v", err)
		}
	}

	if math.Abs(cmd.X.Position-2) > 0.1 {
		t.Fatalf("expected convergence near x=2, got %v", cmd.X.Position)
	}
	if cmd.Z.Position < 0.5-1e-6 {
		t.Fatalf("expected altitude floor to be respected, got %v", cmd.Z.Position)
	}
}

func TestUpdate_InactiveReturnsZeroCommand(t *testing.T) {
	c := testCore()
	cmd, err := c.Update(context.Background(), types.VehicleState{}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.X.UsePosition {
		t.Fatalf("expected a zero-value command while inactive")
	}
}

func TestSetTrajectory_RejectsTooShortDt(t *testing.T) {
	c := testCore()
	c.SetConstraints(wideLimits())
	c.Activate(nil, types.VehicleState{})

	ref := types.TrajectoryReference{
		Dt:     5 * time.Millisecond,
		FlyNow: true,
		Points: []types.TrajectorySample{{X: 1}},
	}
	res := c.SetTrajectory(ref)
	if res.Success {
		t.Fatalf("expected rejection of a trajectory dt shorter than the control period")
	}
}

func TestHover_IdempotentAfterActivation(t *testing.T) {
	c := testCore()
	c.SetConstraints(wideLimits())
	c.Activate(nil, types.VehicleState{X: 1, Y: 1, Z: 1})

	res1 := c.Hover()
	res2 := c.Hover()
	if !res1.Success || !res2.Success {
		t.Fatalf("expected hover to succeed twice in a row")
	}
}

func TestStatus_ReportsActiveAfterActivation(t *testing.T) {
	c := testCore()
	c.SetConstraints(wideLimits())
	c.Activate(nil, types.VehicleState{})

	st := c.Status()
	if !st.Active {
		t.Fatalf("expected status to report active")
	}
}
