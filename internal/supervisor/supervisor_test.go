package supervisor

import (
	"testing"

	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

func TestActivate_RejectsWithoutConstraints(t *testing.T) {
	s := New()
	_, res, err := s.Activate(nil, types.VehicleState{})
	if res.Success || err == nil {
		t.Fatalf("expected activation to fail without constraints")
	}
	if s.State() != Inactive {
		t.Fatalf("state changed on rejected activation: %v", s.State())
	}
}

func TestActivate_SeedsFromEstimatorWhenNoCommand(t *testing.T) {
	s := New()
	s.NoteConstraintsReceived()

	est := types.VehicleState{X: 1, Y: 2, Z: 3, Heading: 0.5, VelX: 0.1}
	seed, res, err := s.Activate(nil, est)
	if !res.Success || err != nil {
		t.Fatalf("expected activation to succeed: %v %v", res, err)
	}
	if seed.X.Position != 1 || seed.Y.Position != 2 || seed.Z.Position != 3 {
		t.Fatalf("seed position = %+v, want estimator position", seed)
	}
	if s.State() != ActiveIdle {
		t.Fatalf("state = %v, want ACTIVE_IDLE", s.State())
	}
}

func TestActivate_PrefersUsableCommandFields(t *testing.T) {
	s := New()
	s.NoteConstraintsReceived()

	est := types.VehicleState{X: 1, Y: 1, Z: 1}
	cmd := &types.PositionCommand{
		X: types.AxisCommand{Position: 9, UsePosition: true},
	}
	seed, _, _ := s.Activate(cmd, est)
	if seed.X.Position != 9 {
		t.Fatalf("seed.X.Position = %v, want command value 9", seed.X.Position)
	}
	if seed.Y.Position != 1 {
		t.Fatalf("seed.Y.Position = %v, want estimator fallback 1", seed.Y.Position)
	}
}

func TestHover_IsIdempotent(t *testing.T) {
	s := New()
	s.NoteConstraintsReceived()
	s.Activate(nil, types.VehicleState{})

	pos := types.WorldPoint{X: 3, Y: 4, Z: 5}
	s.Hover(pos, 0.2)
	first := s.Setpoint()
	s.Hover(pos, 0.2)
	second := s.Setpoint()

	if first != second {
		t.Fatalf("hover is not idempotent: %+v vs %+v", first, second)
	}
	if s.State() != ActiveHover {
		t.Fatalf("state = %v, want ACTIVE_HOVER", s.State())
	}
}

func TestStartTrajectoryTracking_RequiresLoadedTrajectory(t *testing.T) {
	s := New()
	s.NoteConstraintsReceived()
	s.Activate(nil, types.VehicleState{})

	res := s.StartTrajectoryTracking(false)
	if res.Success {
		t.Fatalf("expected start to fail without a loaded trajectory")
	}

	res = s.StartTrajectoryTracking(true)
	if !res.Success || s.State() != ActiveTrackingTrajectory {
		t.Fatalf("expected start to succeed and transition state, got %v state=%v", res, s.State())
	}
}

func TestStopTrajectoryTracking_TransitionsToHover(t *testing.T) {
	s := New()
	s.NoteConstraintsReceived()
	s.Activate(nil, types.VehicleState{})
	s.StartTrajectoryTracking(true)

	res := s.StopTrajectoryTracking(types.WorldPoint{X: 1, Y: 2, Z: 3}, 0)
	if !res.Success || s.State() != ActiveHover {
		t.Fatalf("expected transition to ACTIVE_HOVER, got %v state=%v", res, s.State())
	}
}

func TestSwitchOdometrySource_RestoresPriorState(t *testing.T) {
	s := New()
	s.NoteConstraintsReceived()
	s.Activate(nil, types.VehicleState{})
	s.StartTrajectoryTracking(true)

	s.SwitchOdometrySource()
	if s.State() != OdometryReset {
		t.Fatalf("state = %v, want ODOMETRY_RESET", s.State())
	}
	s.CompleteOdometrySwitch()
	if s.State() != ActiveTrackingTrajectory {
		t.Fatalf("state = %v, want restored ACTIVE_TRACKING_TRAJECTORY", s.State())
	}
}

func TestDeactivate_FromAnyActiveState(t *testing.T) {
	s := New()
	s.NoteConstraintsReceived()
	s.Activate(nil, types.VehicleState{})
	s.Hover(types.WorldPoint{}, 0)

	res := s.Deactivate()
	if !res.Success || s.State() != Inactive {
		t.Fatalf("expected deactivation to succeed, got %v state=%v", res, s.State())
	}
}
