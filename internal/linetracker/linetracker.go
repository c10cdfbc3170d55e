// Package linetracker implements the constant-jerk... in practice
// constant-acceleration "line tracker" (spec.md section 1's first
// companion tracker): a trapezoidal velocity profile toward a single
// goal point, with independent horizontal/vertical state machines and a
// proportional yaw controller. It shares the tracker.Tracker interface
// with the MPC tracker and contains no avoidance or constraint
// migration, matching spec.md's framing that it "contains no novel
// engineering".
package linetracker

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

var log = obslog.For("linetracker")

type motionState int

const (
	stateIdle motionState = iota
	stateStopMotion
	stateAccelerating
	stateDecelerating
	stateStopping
)

// Config carries the trapezoidal-profile and yaw-controller tunables
// (original_source/src/line_tracker/line_tracker.cpp's constraints block).
type Config struct {
	HorizontalSpeed        float64
	HorizontalAcceleration float64
	VerticalSpeed          float64
	VerticalAcceleration   float64
	YawRate                float64
	YawGain                float64
	Dt                     time.Duration
}

// Tracker is the line tracker's mutable state.
type Tracker struct {
	cfg Config

	mu sync.Mutex

	active  bool
	hasGoal bool

	horizontal motionState
	vertical   motionState

	goalX, goalY, goalZ, goalYaw float64

	stateX, stateY, stateZ, stateYaw float64

	currentHeading        float64
	verticalDirection      float64
	horizontalSpeed        float64
	verticalSpeed          float64
	horizontalAcceleration float64
	verticalAcceleration   float64
	yawRate                float64

	lastEstimator types.VehicleState
}

// New creates an inactive line tracker.
func New(cfg Config) *Tracker {
	return &Tracker{cfg: cfg}
}

func (t *Tracker) Initialize() error { return nil }

// Activate seeds state from lastCmd if usable, else the estimator, then
// computes the initial stopping distance so the goal starts at the
// natural coast-to-stop point (matches the source's activate()).
func (t *Tracker) Activate(lastCmd *types.PositionCommand, estimator types.VehicleState) types.ServiceResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if lastCmd != nil && lastCmd.X.UsePosition {
		t.stateX, t.stateY, t.stateZ, t.stateYaw = lastCmd.X.Position, lastCmd.Y.Position, lastCmd.Z.Position, lastCmd.Heading.Heading
		vx, vy := lastCmd.X.Velocity, lastCmd.Y.Velocity
		t.currentHeading = math.Atan2(vy, vx)
		t.horizontalSpeed = math.Hypot(vx, vy)
		t.verticalSpeed = math.Abs(lastCmd.Z.Velocity)
		t.verticalDirection = sign(lastCmd.Z.Velocity)
		t.goalYaw = lastCmd.Heading.Heading
	} else {
		t.stateX, t.stateY, t.stateZ, t.stateYaw = estimator.X, estimator.Y, estimator.Z, estimator.Heading
		t.currentHeading = math.Atan2(estimator.VelY, estimator.VelX)
		t.horizontalSpeed = math.Hypot(estimator.VelX, estimator.VelY)
		t.verticalSpeed = math.Abs(estimator.VelZ)
		t.verticalDirection = sign(estimator.VelZ)
		t.goalYaw = estimator.Heading
		log.Warn("previous command not usable for activation, seeding from estimator")
	}
	t.horizontalAcceleration = 0
	t.verticalAcceleration = 0

	stopDistX, stopDistY, stopDistZ := t.stoppingDistances()
	t.goalX = t.stateX + stopDistX
	t.goalY = t.stateY + stopDistY
	t.goalZ = t.stateZ + stopDistZ

	t.active = true
	t.changeState(stateStopMotion)

	return types.Ok("line tracker activated")
}

func (t *Tracker) stoppingDistances() (dx, dy, dz float64) {
	if t.cfg.HorizontalAcceleration > 0 {
		hStop := t.horizontalSpeed / t.cfg.HorizontalAcceleration
		hDist := hStop * t.horizontalSpeed / 2
		dx = math.Cos(t.currentHeading) * hDist
		dy = math.Sin(t.currentHeading) * hDist
	}
	if t.cfg.VerticalAcceleration > 0 {
		vStop := t.verticalSpeed / t.cfg.VerticalAcceleration
		vDist := vStop * t.verticalSpeed / 2
		dz = t.verticalDirection * vDist
	}
	return
}

func (t *Tracker) Deactivate() types.ServiceResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
	return types.Ok("line tracker deactivated")
}

func (t *Tracker) Hover() types.ServiceResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.horizontalSpeed = math.Hypot(t.lastEstimator.VelX, t.lastEstimator.VelY)
	t.verticalSpeed = t.lastEstimator.VelZ
	t.currentHeading = math.Atan2(t.lastEstimator.VelY, t.lastEstimator.VelX)

	stopDistX, stopDistY, stopDistZ := t.stoppingDistances()
	t.goalX = t.stateX + stopDistX
	t.goalY = t.stateY + stopDistY
	t.goalZ = t.stateZ + stopDistZ

	t.changeState(stateStopMotion)
	return types.Ok("hover initiated")
}

func (t *Tracker) SetReference(ref types.SetpointReference) types.ServiceResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.goalX, t.goalY, t.goalZ = ref.X, ref.Y, ref.Z
	t.goalYaw = types.WrapHeading(ref.Heading)
	t.hasGoal = true
	t.changeState(stateStopMotion)

	return types.Ok("reference set")
}

func (t *Tracker) SetTrajectory(ref types.TrajectoryReference) types.ServiceResult {
	return types.Fail("line tracker does not support trajectory tracking")
}

func (t *Tracker) SetConstraints(c types.DynamicConstraints) types.ServiceResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	maxH, _ := c.X.SpeedBounds()
	maxV, _ := c.Z.SpeedBounds()
	t.cfg.HorizontalSpeed = maxH
	t.cfg.HorizontalAcceleration = c.X.MaxAcceleration
	t.cfg.VerticalSpeed = maxV
	t.cfg.VerticalAcceleration = c.Z.MaxAcceleration
	t.cfg.YawRate = c.Heading.MaxSpeed

	return types.Ok("constraints updated")
}

// SwitchOdometrySource translates the stored goal and state by the
// frame delta, matching the source's switchOdometrySource().
func (t *Tracker) SwitchOdometrySource(old, next types.VehicleState) types.ServiceResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	dx, dy, dz := next.X-old.X, next.Y-old.Y, next.Z-old.Z
	dyaw := types.WrapHeading(next.Heading - old.Heading)

	t.goalX += dx
	t.goalY += dy
	t.goalZ += dz
	t.goalYaw += dyaw

	t.stateX += dx
	t.stateY += dy
	t.stateZ += dz
	t.stateYaw += dyaw

	t.currentHeading = math.Atan2(t.goalY-t.stateY, t.goalX-t.stateX)
	return types.Ok("odometry source switched")
}

func (t *Tracker) EnableCallbacks(enabled bool) types.ServiceResult {
	return types.Ok("callbacks toggled")
}

func (t *Tracker) Status() types.TrackerStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	idle := t.horizontal == stateIdle && t.vertical == stateIdle
	return types.TrackerStatus{
		Active:           t.active,
		HasGoal:          !idle,
		CurrentReference: types.SetpointReference{X: t.goalX, Y: t.goalY, Z: t.goalZ, Heading: t.goalYaw, UseHeading: true},
	}
}

// Update advances the trapezoidal profile by one Dt and returns the
// resulting position command; it is driven by the host's control-rate
// ticker (spec.md section 1's framing: "contains no novel engineering").
func (t *Tracker) Update(ctx context.Context, estimator types.VehicleState, now time.Time) (types.PositionCommand, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastEstimator = estimator
	if !t.active {
		return types.PositionCommand{}, nil
	}

	dt := t.cfg.Dt.Seconds()

	t.stepHorizontal(dt)
	t.stepVertical(dt)

	if t.horizontal == stateStopMotion && t.vertical == stateStopMotion && t.horizontalSpeed == 0 && t.verticalSpeed == 0 {
		if t.hasGoal {
			t.changeState(stateAccelerating)
		} else {
			t.changeState(stateStopping)
		}
	}

	if t.horizontal == stateStopping && t.vertical == stateStopping {
		if math.Abs(t.stateX-t.goalX) < 1e-3 && math.Abs(t.stateY-t.goalY) < 1e-3 && math.Abs(t.stateZ-t.goalZ) < 1e-3 {
			t.stateX, t.stateY, t.stateZ = t.goalX, t.goalY, t.goalZ
			t.changeState(stateIdle)
			t.hasGoal = false
		}
	}

	t.stateX += math.Cos(t.currentHeading) * t.horizontalSpeed * dt
	t.stateY += math.Sin(t.currentHeading) * t.horizontalSpeed * dt
	t.stateZ += t.verticalDirection * t.verticalSpeed * dt

	t.stepYaw(dt)

	return types.PositionCommand{
		FrameID: estimator.FrameID,
		Stamp:   now,
		X: types.AxisCommand{
			Position: t.stateX, Velocity: math.Cos(t.currentHeading) * t.horizontalSpeed,
			UsePosition: true, UseVelocity: true,
		},
		Y: types.AxisCommand{
			Position: t.stateY, Velocity: math.Sin(t.currentHeading) * t.horizontalSpeed,
			UsePosition: true, UseVelocity: true,
		},
		Z: types.AxisCommand{
			Position: t.stateZ, Velocity: t.verticalDirection * t.verticalSpeed, Acceleration: t.verticalDirection * t.verticalAcceleration,
			UsePosition: true, UseVelocity: true, UseAcceleration: true,
		},
		Heading: types.HeadingCommand{
			Heading: t.stateYaw, Rate: t.yawRate,
			UseHeading: true, UseRate: true,
		},
	}, nil
}

func (t *Tracker) stepHorizontal(dt float64) {
	switch t.horizontal {
	case stateStopMotion:
		t.horizontalSpeed -= t.cfg.HorizontalAcceleration * dt
		if t.horizontalSpeed < 0 {
			t.horizontalSpeed, t.horizontalAcceleration = 0, 0
		} else {
			t.horizontalAcceleration = -t.cfg.HorizontalAcceleration
		}
	case stateAccelerating:
		t.currentHeading = math.Atan2(t.goalY-t.stateY, t.goalX-t.stateX)

		hStop := t.horizontalSpeed / t.cfg.HorizontalAcceleration
		hDist := hStop * t.horizontalSpeed / 2
		stopDistX := math.Cos(t.currentHeading) * hDist
		stopDistY := math.Sin(t.currentHeading) * hDist

		t.horizontalSpeed += t.cfg.HorizontalAcceleration * dt
		if t.horizontalSpeed >= t.cfg.HorizontalSpeed {
			t.horizontalSpeed, t.horizontalAcceleration = t.cfg.HorizontalSpeed, 0
		} else {
			t.horizontalAcceleration = t.cfg.HorizontalAcceleration
		}

		if math.Hypot(t.stateX+stopDistX-t.goalX, t.stateY+stopDistY-t.goalY) < 2*(t.cfg.HorizontalSpeed*dt) {
			t.horizontalAcceleration = 0
			t.horizontal = stateDecelerating
		}
	case stateDecelerating:
		t.horizontalSpeed -= t.cfg.HorizontalAcceleration * dt
		if t.horizontalSpeed < 0 {
			t.horizontalSpeed = 0
		} else {
			t.horizontalAcceleration = -t.cfg.HorizontalAcceleration
		}
		if t.horizontalSpeed == 0 {
			t.horizontalAcceleration = 0
			t.horizontal = stateStopping
		}
	case stateStopping:
		t.stateX = 0.95*t.stateX + 0.05*t.goalX
		t.stateY = 0.95*t.stateY + 0.05*t.goalY
		t.horizontalAcceleration = 0
	}
}

func (t *Tracker) stepVertical(dt float64) {
	switch t.vertical {
	case stateStopMotion:
		t.verticalSpeed -= t.cfg.VerticalAcceleration * dt
		if t.verticalSpeed < 0 {
			t.verticalSpeed, t.verticalAcceleration = 0, 0
		} else {
			t.verticalAcceleration = -t.cfg.VerticalAcceleration
		}
	case stateAccelerating:
		t.verticalDirection = sign(t.goalZ - t.stateZ)

		vStop := t.verticalSpeed / t.cfg.VerticalAcceleration
		vDist := vStop * t.verticalSpeed / 2
		stopDistZ := t.verticalDirection * vDist

		t.verticalSpeed += t.cfg.VerticalAcceleration * dt
		if t.verticalSpeed >= t.cfg.VerticalSpeed {
			t.verticalSpeed, t.verticalAcceleration = t.cfg.VerticalSpeed, 0
		} else {
			t.verticalAcceleration = t.cfg.VerticalAcceleration
		}

		if math.Abs(t.stateZ+stopDistZ-t.goalZ) < 2*(t.cfg.VerticalSpeed*dt) {
			t.verticalAcceleration = 0
			t.vertical = stateDecelerating
		}
	case stateDecelerating:
		t.verticalSpeed -= t.cfg.VerticalAcceleration * dt
		if t.verticalSpeed < 0 {
			t.verticalSpeed = 0
		} else {
			t.verticalAcceleration = -t.cfg.VerticalAcceleration
		}
		if t.verticalSpeed == 0 {
			t.verticalAcceleration = 0
			t.vertical = stateStopping
		}
	case stateStopping:
		t.stateZ = 0.95*t.stateZ + 0.05*t.goalZ
		t.verticalAcceleration = 0
	}
}

func (t *Tracker) stepYaw(dt float64) {
	diff := t.goalYaw - t.stateYaw
	rate := t.cfg.YawGain * diff
	if math.Abs(diff) > math.Pi {
		rate = -rate
	}
	if rate > t.cfg.YawRate {
		rate = t.cfg.YawRate
	} else if rate < -t.cfg.YawRate {
		rate = -t.cfg.YawRate
	}
	t.yawRate = rate
	t.stateYaw = types.WrapHeading(t.stateYaw + rate*dt)
	if math.Abs(t.stateYaw-t.goalYaw) < 2*(t.cfg.YawRate*dt) {
		t.stateYaw = t.goalYaw
	}
}

func (t *Tracker) changeState(s motionState) {
	t.horizontal = s
	t.vertical = s
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
