// Package core wires the per-tick pipeline (C1-C9) into the shared
// tracker.Tracker capability set: plant integration, the four axis MPC
// solves, the reference pipeline, trajectory interpolation, distributed
// avoidance, the supervisor FSM, the constraint manager and the frame-
// change handler. Its mutex domains (plant, predicted horizon, estimator
// sample, last command) are each taken on their own, never nested; the
// sub-packages each own their own narrower locks.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/PossumXI/Asgard/mpctracker/internal/avoidance"
	"github.com/PossumXI/Asgard/mpctracker/internal/constraints"
	"github.com/PossumXI/Asgard/mpctracker/internal/diagnostics"
	"github.com/PossumXI/Asgard/mpctracker/internal/frameswitch"
	"github.com/PossumXI/Asgard/mpctracker/internal/mpcsolver"
	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
	"github.com/PossumXI/Asgard/mpctracker/internal/plant"
	"github.com/PossumXI/Asgard/mpctracker/internal/refpipeline"
	"github.com/PossumXI/Asgard/mpctracker/internal/supervisor"
	"github.com/PossumXI/Asgard/mpctracker/internal/trajectory"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

var log = obslog.For("core")

// HasGoal thresholds: position error and heading error beyond which the
// status report's have-goal flag is set (spec.md section 6).
const (
	goalPositionThreshold = 0.05
	goalHeadingThreshold  = 0.02
	stationaryTolerance   = 0.01
)

// Config bundles every sub-component's configuration for one tracker
// instance.
type Config struct {
	Plant       plant.Config
	Solver      mpcsolver.Config
	WeightsX    mpcsolver.QWeights
	WeightsY    mpcsolver.QWeights
	WeightsZ    mpcsolver.QWeights
	WeightsYaw  mpcsolver.QWeights
	RefPipeline refpipeline.Config
	Trajectory  trajectory.Config
	Avoidance   avoidance.Config
}

// Core is the concrete MPC tracker. It implements tracker.Tracker.
type Core struct {
	cfg Config

	plantModel                               *plant.Model
	solverX, solverY, solverZ, solverHeading *mpcsolver.Solver
	pipeline                                  *refpipeline.Pipeline
	store                                     *trajectory.Store
	avoid                                     *avoidance.Coordinator
	sup                                       *supervisor.Supervisor
	constraintsMgr                            *constraints.Manager
	drift                                     *diagnostics.DriftTracker
	metrics                                   *diagnostics.Metrics

	// plant domain: current and last-known-good integrator state.
	mu            sync.Mutex
	plantState    types.PlantState
	lastGoodState types.PlantState

	// predicted-horizon domain: this vehicle's own forecast, published to
	// peers by the host's avoidance loop.
	predMu    sync.Mutex
	predicted []types.WorldPoint

	// estimator domain: the most recent upstream sample.
	estMu         sync.Mutex
	lastEstimator types.VehicleState

	lastCmdMu sync.Mutex
	lastCmd   *types.PositionCommand
}

// New builds a Core from its configuration and shared peer registry.
func New(cfg Config, reg *avoidance.Registry, metrics *diagnostics.Metrics) *Core {
	return &Core{
		cfg:            cfg,
		plantModel:     plant.NewModel(cfg.Plant),
		solverX:        mpcsolver.New(cfg.Solver),
		solverY:        mpcsolver.New(cfg.Solver),
		solverZ:        mpcsolver.New(cfg.Solver),
		solverHeading:  mpcsolver.New(cfg.Solver),
		pipeline:       refpipeline.New(),
		store:          trajectory.New(cfg.Trajectory),
		avoid:          avoidance.New(cfg.Avoidance, reg),
		sup:            supervisor.New(),
		constraintsMgr: constraints.New(),
		drift:          diagnostics.NewDriftTracker(cfg.Plant.ControlPeriod),
		metrics:        metrics,
	}
}

func (c *Core) Initialize() error { return nil }

// Activate seeds the plant state and transitions the supervisor to
// ACTIVE_IDLE with the hover watchdog armed.
func (c *Core) Activate(lastCmd *types.PositionCommand, estimator types.VehicleState) types.ServiceResult {
	seed, res, err := c.sup.Activate(lastCmd, estimator)
	if err != nil || !res.Success {
		return res
	}

	c.mu.Lock()
	c.plantState = seed
	c.lastGoodState = seed
	c.mu.Unlock()

	c.lastCmdMu.Lock()
	c.lastCmd = lastCmd
	c.lastCmdMu.Unlock()

	log.WithField("activation_id", uuid.NewString()).Info("tracker activated")
	return res
}

func (c *Core) Deactivate() types.ServiceResult {
	return c.sup.Deactivate()
}

func (c *Core) Hover() types.ServiceResult {
	c.mu.Lock()
	pos := types.WorldPoint{X: c.plantState.X.Position, Y: c.plantState.Y.Position, Z: c.plantState.Z.Position}
	heading := c.plantState.Heading.Heading
	c.mu.Unlock()
	return c.sup.Hover(pos, heading)
}

func (c *Core) SetReference(ref types.SetpointReference) types.ServiceResult {
	return c.sup.SetReference(ref)
}

// SetTrajectory loads the trajectory into the store and, if fly_now is
// set, starts tracking immediately; otherwise it drives toward the
// first sample as an ordinary setpoint, leaving the caller to start
// tracking once arrived.
func (c *Core) SetTrajectory(ref types.TrajectoryReference) types.ServiceResult {
	c.mu.Lock()
	currentHeading := c.plantState.Heading.Heading
	c.mu.Unlock()

	res, err := c.store.Load(ref, currentHeading, time.Now())
	if err != nil {
		log.WithError(err).Warn("trajectory rejected")
		return res
	}

	if ref.FlyNow {
		return c.sup.StartTrajectoryTracking(true)
	}
	first := ref.Points[0]
	return c.sup.GotoStartTrajectoryTracking(types.SetpointReference{X: first.X, Y: first.Y, Z: first.Z, Heading: first.Heading, UseHeading: ref.UseHeading})
}

// StartTrajectoryTracking transitions into ACTIVE_TRACKING_TRAJECTORY
// when a trajectory is loaded; it does not check that the vehicle has
// reached the trajectory's first sample.
func (c *Core) StartTrajectoryTracking() types.ServiceResult {
	return c.sup.StartTrajectoryTracking(c.store.Loaded())
}

// ResumeTrajectoryTracking resumes a previously stopped trajectory
// without resetting the cursor.
func (c *Core) ResumeTrajectoryTracking() types.ServiceResult {
	return c.sup.ResumeTrajectoryTracking(c.store.Loaded())
}

func (c *Core) SetConstraints(cons types.DynamicConstraints) types.ServiceResult {
	c.sup.NoteConstraintsReceived()
	return c.constraintsMgr.SetRequested(cons)
}

// SwitchOdometrySource reconciles the plant state and any loaded
// trajectory across an upstream reference-frame change. The supervisor's
// held single-point setpoint is not retransformed: ACTIVE_HOVER and
// ACTIVE_TRACKING_TRAJECTORY resume against their own state machines once
// the switch completes, and a bare setpoint is expected to be resent by
// the caller if the frame moved meaningfully (see DESIGN.md).
func (c *Core) SwitchOdometrySource(old, next types.VehicleState) types.ServiceResult {
	res := c.sup.SwitchOdometrySource()
	if !res.Success {
		return res
	}

	delta := frameswitch.Compute(old, next)

	c.mu.Lock()
	c.plantState = delta.ApplyToPlant(c.plantState, next)
	c.lastGoodState = c.plantState
	c.mu.Unlock()

	c.store.ApplyTransform(func(x, y, z, heading float64) (float64, float64, float64, float64) {
		nx, ny, nz := delta.TransformPoint(x, y, z)
		return nx, ny, nz, delta.TransformHeading(heading)
	})

	c.sup.CompleteOdometrySwitch()
	return types.Ok("odometry source switched")
}

func (c *Core) EnableCallbacks(enabled bool) types.ServiceResult {
	return c.sup.EnableCallbacks(enabled)
}

// Status reports the tracker's current high-level state.
func (c *Core) Status() types.TrackerStatus {
	c.mu.Lock()
	pos := types.WorldPoint{X: c.plantState.X.Position, Y: c.plantState.Y.Position, Z: c.plantState.Z.Position}
	heading := c.plantState.Heading.Heading
	c.mu.Unlock()

	sp := c.sup.Setpoint()
	hasGoal := diagnostics.HasGoal(pos, heading, sp, goalPositionThreshold, goalHeadingThreshold)

	return diagnostics.BuildStatus(diagnostics.StatusInputs{
		Active:             c.sup.State().Active(),
		HasGoal:            hasGoal,
		TrackingTrajectory: c.sup.TrackingTrajectory(),
		TrajectoryLength:   c.store.Length(),
		TrajectoryIndex:    c.store.Cursor().SampleIndex,
		CurrentReference:   sp,
	})
}

// PredictedHorizon returns this vehicle's most recent forecast, for the
// host's avoidance-publish loop.
func (c *Core) PredictedHorizon() []types.WorldPoint {
	c.predMu.Lock()
	defer c.predMu.Unlock()
	return append([]types.WorldPoint(nil), c.predicted...)
}

// DriftRatio exposes the cumulative tick-drift ratio for the diagnostics
// report builder.
func (c *Core) DriftRatio() float64 { return c.drift.Ratio() }

// RunSampleTicker advances the trajectory cursor's sample index on the
// dedicated dt-period timer (spec.md section 4.4); the control-rate
// sub-sample advance happens once per Update call instead.
func (c *Core) RunSampleTicker(ctx context.Context, dt time.Duration) {
	ticker := time.NewTicker(dt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.store.AdvanceSample()
		}
	}
}

// RunHoverWatchdog wires the supervisor's watchdog to this core's own
// plant-state velocity and zero-relative-setpoint re-application.
func (c *Core) RunHoverWatchdog(ctx context.Context) {
	c.sup.RunHoverWatchdog(ctx,
		func() (vx, vy, vz float64) {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.plantState.X.Velocity, c.plantState.Y.Velocity, c.plantState.Z.Velocity
		},
		func() {
			c.mu.Lock()
			pos := types.WorldPoint{X: c.plantState.X.Position, Y: c.plantState.Y.Position, Z: c.plantState.Z.Position}
			heading := c.plantState.Heading.Heading
			c.mu.Unlock()
			c.sup.Hover(pos, heading)
		},
	)
}

// Update runs one control tick: builds the desired horizon, evaluates
// avoidance, reshapes the reference, solves each axis independently,
// integrates the plant, and returns the resulting position command.
func (c *Core) Update(ctx context.Context, estimator types.VehicleState, now time.Time) (types.PositionCommand, error) {
	tickStart := time.Now()
	ctx, endSpan := diagnostics.StartTick(ctx)
	defer endSpan()
	defer func() {
		elapsed := time.Since(tickStart)
		c.drift.RecordTick(elapsed, now)
		if c.metrics != nil {
			c.metrics.TickDuration.Observe(elapsed.Seconds())
			c.metrics.TickDriftRatio.Set(c.drift.Ratio())
		}
	}()

	c.estMu.Lock()
	c.lastEstimator = estimator
	c.estMu.Unlock()

	state := c.sup.State()
	if !state.Active() {
		return types.PositionCommand{}, nil
	}

	c.mu.Lock()
	plantState := c.plantState
	c.mu.Unlock()

	currentPos := types.WorldPoint{X: plantState.X.Position, Y: plantState.Y.Position, Z: plantState.Z.Position}
	currentHeading := plantState.Heading.Heading

	tracking := c.sup.TrackingTrajectory() && c.store.Loaded()
	if tracking {
		c.store.AdvanceSubSample()
	}

	var desired *types.HorizonReference
	if tracking {
		desired = c.store.Horizon()
	} else {
		sp := c.sup.Setpoint()
		desired = types.NewHorizonReference(c.cfg.RefPipeline.Horizon, sp.X, sp.Y, sp.Z, sp.Heading)
	}

	ownHorizon := make([]types.WorldPoint, desired.Len())
	for i := range ownHorizon {
		ownHorizon[i] = types.WorldPoint{X: desired.X[i], Y: desired.Y[i], Z: desired.Z[i]}
	}
	avoidRes := c.avoid.Evaluate(ownHorizon, now, nil)
	if c.metrics != nil {
		if avoidRes.Active {
			c.metrics.AvoidanceActive.Set(1)
		} else {
			c.metrics.AvoidanceActive.Set(0)
		}
		c.metrics.PeersInRadius.Set(float64(len(avoidRes.PeersInRadius)))
	}

	speedCap := c.cfg.RefPipeline.MaxHorizontalSpeed * avoidRes.HorizontalSpeedScale

	reshapeCfg := c.cfg.RefPipeline
	reshapeCfg.Wiggle.Enabled = reshapeCfg.Wiggle.Enabled && c.sup.WiggleEnabled()
	reshaped := c.pipeline.Reshape(reshapeCfg, desired, currentPos, currentHeading, avoidRes.AltitudeFloor, speedCap)

	brake := refpipeline.IsStationary(reshaped, stationaryTolerance)
	eff := c.constraintsMgr.Effective()

	var (
		snapX, snapY, snapZ, snapH float64
		predX, predY, predZ        []mpcsolver.State4
		iterX, iterY, iterZ, iterH int
		convX, convY, convZ, convH bool
	)

	var g errgroup.Group
	g.Go(func() error {
		snapX, predX, iterX, convX = c.solverX.Solve(state4(plantState.X), reshaped.X, c.cfg.WeightsX, axisBounds(eff.X), brake)
		return nil
	})
	g.Go(func() error {
		snapY, predY, iterY, convY = c.solverY.Solve(state4(plantState.Y), reshaped.Y, c.cfg.WeightsY, axisBounds(eff.Y), brake)
		return nil
	})
	g.Go(func() error {
		snapZ, predZ, iterZ, convZ = c.solverZ.Solve(state4(plantState.Z), reshaped.Z, c.cfg.WeightsZ, axisBounds(eff.Z), brake)
		return nil
	})
	g.Go(func() error {
		snapH, _, iterH, convH = c.solverHeading.Solve(headingState4(plantState.Heading), reshaped.Heading, c.cfg.WeightsYaw, headingBounds(eff.Heading), brake)
		return nil
	})
	_ = g.Wait()

	c.recordConvergence(types.AxisX, iterX, convX)
	c.recordConvergence(types.AxisY, iterY, convY)
	c.recordConvergence(types.AxisZ, iterZ, convZ)
	c.recordConvergence(types.AxisHeading, iterH, convH)

	next := c.plantModel.Step(plantState, plant.Input{SnapX: snapX, SnapY: snapY, SnapZ: snapZ, SnapHeading: snapH}, now)

	c.mu.Lock()
	sanitized, ok := plant.SanitizeOrHold(next, c.lastGoodState)
	if ok {
		c.lastGoodState = sanitized
	}
	c.plantState = sanitized
	c.mu.Unlock()

	c.constraintsMgr.TryCommitPending(sanitized)

	worldPred := make([]types.WorldPoint, len(predX))
	for i := range worldPred {
		z := 0.0
		if i < len(predZ) {
			z = predZ[i].Position
		}
		worldPred[i] = types.WorldPoint{X: predX[i].Position, Y: predY[i].Position, Z: z}
	}
	c.predMu.Lock()
	c.predicted = worldPred
	c.predMu.Unlock()

	cmd := types.PositionCommand{
		FrameID: estimator.FrameID,
		Stamp:   now,
		X:       axisCommand(sanitized.X),
		Y:       axisCommand(sanitized.Y),
		Z:       axisCommand(sanitized.Z),
		Heading: headingCommand(sanitized.Heading),
	}

	c.lastCmdMu.Lock()
	c.lastCmd = &cmd
	c.lastCmdMu.Unlock()

	return cmd, nil
}

func (c *Core) recordConvergence(axis types.Axis, iterations int, converged bool) {
	if converged {
		return
	}
	if c.metrics != nil {
		c.metrics.RecordIterationsOverLimit(axis)
	}
	log.WithField("axis", axis.String()).WithField("iterations", iterations).Warn("axis solve exceeded the iteration limit")
}

func state4(a types.TranslationalState) mpcsolver.State4 {
	return mpcsolver.State4{Position: a.Position, Velocity: a.Velocity, Acceleration: a.Acceleration, Jerk: a.Jerk}
}

func headingState4(h types.HeadingState) mpcsolver.State4 {
	return mpcsolver.State4{Position: h.Heading, Velocity: h.Rate, Acceleration: h.Acceleration, Jerk: h.Jerk}
}

func axisBounds(l types.AxisLimits) mpcsolver.Bounds {
	maxV, minV := l.SpeedBounds()
	maxA, minA := l.AccelBounds()
	return mpcsolver.Bounds{MaxVel: maxV, MinVel: minV, MaxAcc: maxA, MinAcc: minA, MaxJerk: l.MaxJerk, MaxSnap: l.MaxSnap}
}

func headingBounds(l types.HeadingLimits) mpcsolver.Bounds {
	return mpcsolver.Bounds{MaxVel: l.MaxSpeed, MinVel: -l.MaxSpeed, MaxAcc: l.MaxAcceleration, MinAcc: -l.MaxAcceleration, MaxJerk: l.MaxJerk, MaxSnap: l.MaxSnap}
}

func axisCommand(s types.TranslationalState) types.AxisCommand {
	return types.AxisCommand{
		Position: s.Position, Velocity: s.Velocity, Acceleration: s.Acceleration, Jerk: s.Jerk,
		UsePosition: true, UseVelocity: true, UseAcceleration: true, UseJerk: true,
	}
}

func headingCommand(h types.HeadingState) types.HeadingCommand {
	return types.HeadingCommand{
		Heading: h.Heading, Rate: h.Rate, Acceleration: h.Acceleration, Jerk: h.Jerk,
		UseHeading: true, UseRate: true, UseAcceleration: true, UseJerk: true,
	}
}
