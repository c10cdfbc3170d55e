// Package passthrough implements the minimal passthrough tracker: it
// relays an externally supplied command unchanged, sharing the same
// tracker.Tracker capability set as the MPC tracker so a host can select
// between them uniformly (spec.md section 9).
package passthrough

import (
	"context"
	"sync"
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

var log = obslog.For("passthrough")

// Tracker relays whatever command was last supplied via SetCommand,
// falling back to an identity mirror of the estimator sample when none
// has been supplied yet (spec.md section 7, error kind 6).
type Tracker struct {
	mu sync.Mutex

	active  bool
	command *types.PositionCommand
}

// New creates an inactive passthrough tracker.
func New() *Tracker {
	return &Tracker{}
}

// SetCommand installs the command to relay on the next Update call.
func (t *Tracker) SetCommand(cmd types.PositionCommand) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.command = &cmd
}

func (t *Tracker) Initialize() error { return nil }

func (t *Tracker) Activate(lastCmd *types.PositionCommand, estimator types.VehicleState) types.ServiceResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = true
	if lastCmd != nil {
		t.command = lastCmd
	}
	return types.Ok("passthrough activated")
}

func (t *Tracker) Deactivate() types.ServiceResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
	t.command = nil
	return types.Ok("passthrough deactivated")
}

func (t *Tracker) Update(ctx context.Context, estimator types.VehicleState, now time.Time) (types.PositionCommand, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return types.PositionCommand{}, nil
	}
	if t.command != nil {
		cmd := *t.command
		cmd.FrameID = estimator.FrameID
		cmd.Stamp = estimator.Stamp
		return cmd, nil
	}

	log.Debug("no command supplied yet, mirroring estimator")
	return identityMirror(estimator), nil
}

func identityMirror(est types.VehicleState) types.PositionCommand {
	return types.PositionCommand{
		FrameID: est.FrameID,
		Stamp:   est.Stamp,
		X:       types.AxisCommand{Position: est.X, Velocity: est.VelX, UsePosition: true, UseVelocity: true},
		Y:       types.AxisCommand{Position: est.Y, Velocity: est.VelY, UsePosition: true, UseVelocity: true},
		Z:       types.AxisCommand{Position: est.Z, Velocity: est.VelZ, UsePosition: true, UseVelocity: true},
		Heading: types.HeadingCommand{Heading: est.Heading, Rate: est.AngularZ, UseHeading: true, UseRate: true},
	}
}

func (t *Tracker) Status() types.TrackerStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return types.TrackerStatus{Active: t.active, HasGoal: t.command != nil}
}

func (t *Tracker) SetReference(ref types.SetpointReference) types.ServiceResult {
	return types.Fail("passthrough tracker does not accept a reference")
}

func (t *Tracker) SetTrajectory(ref types.TrajectoryReference) types.ServiceResult {
	return types.Fail("passthrough tracker does not accept a trajectory")
}

func (t *Tracker) Hover() types.ServiceResult {
	return types.Fail("passthrough tracker cannot hover")
}

func (t *Tracker) SetConstraints(c types.DynamicConstraints) types.ServiceResult {
	return types.Ok("passthrough tracker ignores constraints")
}

func (t *Tracker) SwitchOdometrySource(old, next types.VehicleState) types.ServiceResult {
	return types.Ok("passthrough tracker has no stored state to reconcile")
}

func (t *Tracker) EnableCallbacks(enabled bool) types.ServiceResult {
	return types.Ok("callbacks toggled")
}
