// Package frameswitch implements the frame-change handler (C9):
// reconciles stored references, the whole trajectory, and the plant
// state when the upstream estimator switches its reference frame.
package frameswitch

import (
	"math"

	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

var log = obslog.For("frameswitch")

// Delta is the rigid transform between the old and new frames. The
// rotation pivots around the old position, not the world origin:
// OldX/OldY/OldZ are subtracted before rotating, and NewX/NewY/NewZ
// are added back afterward. DX/DY/DZ are the net translation
// (New - Old), kept for logging.
type Delta struct {
	OldX, OldY, OldZ float64
	NewX, NewY, NewZ float64
	DX, DY, DZ       float64
	DHeading         float64
}

// Compute derives the frame delta from the old and new estimator
// samples (spec.md section 4.8).
func Compute(old, next types.VehicleState) Delta {
	return Delta{
		OldX: old.X, OldY: old.Y, OldZ: old.Z,
		NewX: next.X, NewY: next.Y, NewZ: next.Z,
		DX: next.X - old.X, DY: next.Y - old.Y, DZ: next.Z - old.Z,
		DHeading: types.WrapHeading(next.Heading - old.Heading),
	}
}

// TransformPoint rotates (x, y) around the old plant position by
// DHeading and places the result relative to the new plant position;
// z translates linearly since yaw doesn't affect it. Matches
// mpc_tracker.cpp's `new_p = new_uav_state.position + R(dheading) *
// (p - uav_state_.pose.position)`.
func (d Delta) TransformPoint(x, y, z float64) (nx, ny, nz float64) {
	px, py := x-d.OldX, y-d.OldY
	cos, sin := math.Cos(d.DHeading), math.Sin(d.DHeading)
	nx = px*cos - py*sin + d.NewX
	ny = px*sin + py*cos + d.NewY
	nz = z - d.OldZ + d.NewZ
	return
}

// TransformWorldPoint is TransformPoint specialised to types.WorldPoint,
// used by the avoidance coordinator's peer-frame transform.
func (d Delta) TransformWorldPoint(p types.WorldPoint) (types.WorldPoint, error) {
	nx, ny, nz := d.TransformPoint(p.X, p.Y, p.Z)
	out := types.WorldPoint{X: nx, Y: ny, Z: nz}
	if !isFinite(out.X) || !isFinite(out.Y) || !isFinite(out.Z) {
		return types.WorldPoint{}, types.ErrTransformFailed
	}
	return out, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// TransformHeading applies the heading delta and rewraps.
func (d Delta) TransformHeading(h float64) float64 {
	return types.WrapHeading(h + d.DHeading)
}

// ApplyToHorizon rewrites every sample of a horizon reference in place.
func (d Delta) ApplyToHorizon(ref *types.HorizonReference) {
	if ref == nil {
		return
	}
	for i := range ref.X {
		nx, ny, nz := d.TransformPoint(ref.X[i], ref.Y[i], ref.Z[i])
		ref.X[i], ref.Y[i], ref.Z[i] = nx, ny, nz
		ref.Heading[i] = d.TransformHeading(ref.Heading[i])
	}
}

// ApplyToTrajectory rewrites every sample of a whole trajectory in place.
func (d Delta) ApplyToTrajectory(points []types.TrajectorySample) {
	for i := range points {
		nx, ny, nz := d.TransformPoint(points[i].X, points[i].Y, points[i].Z)
		points[i].X, points[i].Y, points[i].Z = nx, ny, nz
		points[i].Heading = d.TransformHeading(points[i].Heading)
	}
}

// ApplyToSetpoint rewrites a single setpoint reference.
func (d Delta) ApplyToSetpoint(sp types.SetpointReference) types.SetpointReference {
	sp.X, sp.Y, sp.Z = d.TransformPoint(sp.X, sp.Y, sp.Z)
	sp.Heading = d.TransformHeading(sp.Heading)
	return sp
}

// ApplyToPlant reconciles the plant state across the frame switch:
// position/heading are transformed, translational velocity is
// reinitialised from the new estimator sample (except vertical, which is
// left as-is), and accelerations are zeroed (spec.md section 4.8).
//
// The source this was distilled from seeds the post-switch heading-rate
// state from `peer.angular.x`, which looks like a transcription bug —
// angular.z is the yaw rate. This implementation uses AngularZ and
// documents the deviation (spec.md section 9, Open Questions).
func (d Delta) ApplyToPlant(state types.PlantState, next types.VehicleState) types.PlantState {
	nx, ny, nz := d.TransformPoint(state.X.Position, state.Y.Position, state.Z.Position)
	state.X.Position, state.Y.Position, state.Z.Position = nx, ny, nz
	state.Heading.Heading = d.TransformHeading(state.Heading.Heading)

	state.X.Velocity = next.VelX
	state.Y.Velocity = next.VelY
	// Vertical velocity is left as-is per spec.md section 4.8.

	state.X.Acceleration, state.X.Jerk = 0, 0
	state.Y.Acceleration, state.Y.Jerk = 0, 0
	state.Z.Acceleration, state.Z.Jerk = 0, 0

	state.Heading.Rate = next.AngularZ
	state.Heading.Acceleration, state.Heading.Jerk = 0, 0

	log.WithField("dx", d.DX).WithField("dy", d.DY).WithField("dheading", d.DHeading).Info("frame switch reconciled")
	return state
}
