package supervisor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

var log = obslog.For("supervisor")

// hoverSpeedThreshold is the translational speed below which the hover
// watchdog disarms itself (spec.md section 4.6).
const hoverSpeedThreshold = 0.1

// hoverWatchdogPeriod is the watchdog's fixed rate (spec.md section 5).
const hoverWatchdogPeriod = 100 * time.Millisecond

// Supervisor is the control supervisor's state machine. It owns no
// plant/reference/trajectory state itself; it hands back decisions
// (seeded plant state, setpoints, transition results) for the owning
// tracker to apply under its own mutex domains, matching spec.md section
// 5's "fine-grained, fixed order" locking model.
type Supervisor struct {
	mu sync.Mutex

	state         State
	preResetState State

	hasConstraints bool
	hoverArmed     bool

	setpoint           types.SetpointReference
	trajectoryRequested bool

	callbacksEnabled          bool
	collisionAvoidanceEnabled bool
	wiggleEnabled             bool
}

// New creates a supervisor in the INACTIVE state.
func New() *Supervisor {
	return &Supervisor{
		state:                     Inactive,
		callbacksEnabled:          true,
		collisionAvoidanceEnabled: true,
	}
}

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Setpoint returns the currently installed single-point reference.
func (s *Supervisor) Setpoint() types.SetpointReference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setpoint
}

// NoteConstraintsReceived marks that at least one dynamic-constraints
// message has been received, satisfying the activation precondition.
func (s *Supervisor) NoteConstraintsReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasConstraints = true
}

// Activate transitions INACTIVE -> ACTIVE_IDLE, seeding the plant state
// from the last downstream command (preferring its usable fields) and
// falling back to the estimator for the rest. Hover is auto-armed so the
// vehicle holds station until a setReference/hover/trajectory request
// arrives (spec.md section 4.6).
func (s *Supervisor) Activate(lastCmd *types.PositionCommand, estimator types.VehicleState) (types.PlantState, types.ServiceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasConstraints {
		return types.PlantState{}, types.Fail("cannot activate: no constraints have been received"), types.ErrPrecondition
	}
	if s.state != Inactive {
		return types.PlantState{}, types.Fail("already active"), nil
	}

	seed := seedPlantState(lastCmd, estimator)
	s.state = ActiveIdle
	s.hoverArmed = true
	s.setpoint = types.SetpointReference{X: seed.X.Position, Y: seed.Y.Position, Z: seed.Z.Position, Heading: seed.Heading.Heading, UseHeading: true}
	s.trajectoryRequested = false

	log.Info("activated")
	return seed, types.Ok("activated"), nil
}

// seedPlantState builds the initial plant state at activation, preferring
// each usable command field and falling back to the estimator sample.
func seedPlantState(lastCmd *types.PositionCommand, est types.VehicleState) types.PlantState {
	state := types.PlantState{}

	state.X.Position, state.X.Velocity = est.X, est.VelX
	state.Y.Position, state.Y.Velocity = est.Y, est.VelY
	state.Z.Position, state.Z.Velocity = est.Z, est.VelZ
	state.Heading.Heading, state.Heading.Rate = est.Heading, est.AngularZ

	if lastCmd != nil {
		if lastCmd.X.UsePosition {
			state.X.Position = lastCmd.X.Position
		}
		if lastCmd.X.UseVelocity {
			state.X.Velocity = lastCmd.X.Velocity
		}
		if lastCmd.X.UseAcceleration {
			state.X.Acceleration = lastCmd.X.Acceleration
		}
		if lastCmd.X.UseJerk {
			state.X.Jerk = lastCmd.X.Jerk
		}

		if lastCmd.Y.UsePosition {
			state.Y.Position = lastCmd.Y.Position
		}
		if lastCmd.Y.UseVelocity {
			state.Y.Velocity = lastCmd.Y.Velocity
		}
		if lastCmd.Y.UseAcceleration {
			state.Y.Acceleration = lastCmd.Y.Acceleration
		}
		if lastCmd.Y.UseJerk {
			state.Y.Jerk = lastCmd.Y.Jerk
		}

		if lastCmd.Z.UsePosition {
			state.Z.Position = lastCmd.Z.Position
		}
		if lastCmd.Z.UseVelocity {
			state.Z.Velocity = lastCmd.Z.Velocity
		}
		if lastCmd.Z.UseAcceleration {
			state.Z.Acceleration = lastCmd.Z.Acceleration
		}
		if lastCmd.Z.UseJerk {
			state.Z.Jerk = lastCmd.Z.Jerk
		}

		if lastCmd.Heading.UseHeading {
			state.Heading.Heading = lastCmd.Heading.Heading
		}
		if lastCmd.Heading.UseRate {
			state.Heading.Rate = lastCmd.Heading.Rate
		}
		if lastCmd.Heading.UseAcceleration {
			state.Heading.Acceleration = lastCmd.Heading.Acceleration
		}
		if lastCmd.Heading.UseJerk {
			state.Heading.Jerk = lastCmd.Heading.Jerk
		}
	}

	state.Heading.Heading = types.WrapHeading(state.Heading.Heading)
	return state
}

// Deactivate transitions any ACTIVE_* state back to INACTIVE.
func (s *Supervisor) Deactivate() types.ServiceResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Inactive
	s.hoverArmed = false
	s.trajectoryRequested = false
	log.Info("deactivated")
	return types.Ok("deactivated")
}

// Hover stops trajectory tracking and installs currentPos/currentHeading
// as the held setpoint, arming the hover watchdog (spec.md section 4.6).
// Calling Hover twice in a row is idempotent: the second call re-installs
// the same (already current) position and leaves the watchdog armed,
// satisfying spec.md section 8's idempotence property.
func (s *Supervisor) Hover(currentPos types.WorldPoint, currentHeading float64) types.ServiceResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Active() {
		return types.Fail("cannot hover while inactive")
	}

	s.state = ActiveHover
	s.hoverArmed = true
	s.trajectoryRequested = false
	s.setpoint = types.SetpointReference{X: currentPos.X, Y: currentPos.Y, Z: currentPos.Z, Heading: currentHeading, UseHeading: true}
	return types.Ok("hovering")
}

// SetReference installs a new single-point goal, transitioning to
// ACTIVE_IDLE and disarming the hover watchdog.
func (s *Supervisor) SetReference(ref types.SetpointReference) types.ServiceResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Active() {
		return types.Fail("cannot set reference while inactive")
	}
	s.state = ActiveIdle
	s.hoverArmed = false
	s.trajectoryRequested = false
	s.setpoint = ref
	return types.Ok("reference set")
}

// StartTrajectoryTracking transitions ACTIVE_IDLE/ACTIVE_HOVER ->
// ACTIVE_TRACKING_TRAJECTORY. It fails when trajectoryLoaded is false.
func (s *Supervisor) StartTrajectoryTracking(trajectoryLoaded bool) types.ServiceResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != ActiveIdle && s.state != ActiveHover {
		return types.Fail("cannot start trajectory tracking from current state")
	}
	if !trajectoryLoaded {
		return types.Fail("no trajectory loaded")
	}
	s.state = ActiveTrackingTrajectory
	s.hoverArmed = false
	s.trajectoryRequested = true
	return types.Ok("trajectory tracking started")
}

// StopTrajectoryTracking transitions ACTIVE_TRACKING_TRAJECTORY ->
// ACTIVE_HOVER, installing currentPos as the hold point.
func (s *Supervisor) StopTrajectoryTracking(currentPos types.WorldPoint, currentHeading float64) types.ServiceResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != ActiveTrackingTrajectory {
		return types.Fail("not tracking a trajectory")
	}
	s.state = ActiveHover
	s.hoverArmed = true
	s.trajectoryRequested = false
	s.setpoint = types.SetpointReference{X: currentPos.X, Y: currentPos.Y, Z: currentPos.Z, Heading: currentHeading, UseHeading: true}
	return types.Ok("trajectory tracking stopped")
}

// ResumeTrajectoryTracking resumes a previously stopped (not completed)
// trajectory from ACTIVE_HOVER without resetting the cursor.
func (s *Supervisor) ResumeTrajectoryTracking(trajectoryLoaded bool) types.ServiceResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != ActiveHover {
		return types.Fail("cannot resume: not hovering")
	}
	if !trajectoryLoaded {
		return types.Fail("no trajectory loaded")
	}
	s.state = ActiveTrackingTrajectory
	s.hoverArmed = false
	s.trajectoryRequested = true
	return types.Ok("trajectory tracking resumed")
}

// GotoStartTrajectoryTracking drives toward the trajectory's first
// sample as an ordinary setpoint; the caller invokes
// StartTrajectoryTracking once the vehicle arrives.
func (s *Supervisor) GotoStartTrajectoryTracking(start types.SetpointReference) types.ServiceResult {
	return s.SetReference(start)
}

// SwitchOdometrySource transitions any ACTIVE_* state into the transient
// ODOMETRY_RESET state, remembering the state to restore.
func (s *Supervisor) SwitchOdometrySource() types.ServiceResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Active() {
		return types.Fail("cannot switch odometry source while inactive")
	}
	s.preResetState = s.state
	s.state = OdometryReset
	return types.Ok("odometry reset in progress")
}

// CompleteOdometrySwitch restores the state saved by SwitchOdometrySource.
func (s *Supervisor) CompleteOdometrySwitch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == OdometryReset {
		s.state = s.preResetState
	}
}

// EnableCallbacks toggles whether inbound state/trajectory/constraint
// callbacks are processed.
func (s *Supervisor) EnableCallbacks(enabled bool) types.ServiceResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacksEnabled = enabled
	return types.Ok("callbacks toggled")
}

// CallbacksEnabled reports the current callback-enable flag.
func (s *Supervisor) CallbacksEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callbacksEnabled
}

// ToggleCollisionAvoidance enables or disables this vehicle's
// participation in the avoidance protocol.
func (s *Supervisor) ToggleCollisionAvoidance(enabled bool) types.ServiceResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collisionAvoidanceEnabled = enabled
	return types.Ok("collision avoidance toggled")
}

// CollisionAvoidanceEnabled reports the current avoidance-participation flag.
func (s *Supervisor) CollisionAvoidanceEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collisionAvoidanceEnabled
}

// ToggleWiggle enables or disables the reference pipeline's persistent
// excitation perturbation.
func (s *Supervisor) ToggleWiggle(enabled bool) types.ServiceResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wiggleEnabled = enabled
	return types.Ok("wiggle toggled")
}

// WiggleEnabled reports the current wiggle-enable flag.
func (s *Supervisor) WiggleEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wiggleEnabled
}

// TrackingTrajectory reports whether the supervisor believes a
// trajectory is currently being tracked, for the status report.
func (s *Supervisor) TrackingTrajectory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trajectoryRequested && s.state == ActiveTrackingTrajectory
}

// HoverSpeedSampler returns the instantaneous translational speed
// components, consumed by the hover watchdog.
type HoverSpeedSampler func() (vx, vy, vz float64)

// HoverZeroApplier re-applies a zero relative setpoint (hold station)
// each watchdog tick.
type HoverZeroApplier func()

// RunHoverWatchdog runs the 10 Hz hover watchdog until ctx is cancelled.
// While armed and the state is ACTIVE_HOVER, it re-applies a zero
// relative setpoint every tick; once all translational speeds fall
// below hoverSpeedThreshold, it disarms itself (spec.md section 4.6).
func (s *Supervisor) RunHoverWatchdog(ctx context.Context, speeds HoverSpeedSampler, apply HoverZeroApplier) {
	ticker := time.NewTicker(hoverWatchdogPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			armed := s.hoverArmed && s.state == ActiveHover
			s.mu.Unlock()
			if !armed {
				continue
			}

			apply()

			vx, vy, vz := speeds()
			if math.Sqrt(vx*vx+vy*vy+vz*vz) < hoverSpeedThreshold {
				s.mu.Lock()
				s.hoverArmed = false
				s.mu.Unlock()
			}
		}
	}
}
