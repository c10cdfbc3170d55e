// Package tracker defines the capability-set interface shared by every
// tracker implementation (the MPC tracker, the constant-acceleration
// line tracker, and the passthrough tracker) — spec.md section 9's
// "polymorphism over tracker kinds" design note, made concrete.
package tracker

import (
	"context"
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

// Tracker is the capability set a host selects between: initialize,
// activate, deactivate, update, status, set_reference, set_trajectory,
// hover, set_constraints, switch_odometry, enable_callbacks.
type Tracker interface {
	// Initialize prepares the tracker for activation; safe to call once
	// before any other method.
	Initialize() error

	// Activate transitions the tracker into its active state, seeding
	// from lastCmd (if usable) and the current estimator sample.
	Activate(lastCmd *types.PositionCommand, estimator types.VehicleState) types.ServiceResult

	// Deactivate returns the tracker to its inactive state.
	Deactivate() types.ServiceResult

	// Update consumes one estimator sample and produces the next
	// position command; it is the per-tick entry point, and the caller
	// decides the rate at which it is called.
	Update(ctx context.Context, estimator types.VehicleState, now time.Time) (types.PositionCommand, error)

	// Status reports the tracker's current high-level state.
	Status() types.TrackerStatus

	// SetReference installs a new single-point goal.
	SetReference(ref types.SetpointReference) types.ServiceResult

	// SetTrajectory loads a new time-sampled trajectory.
	SetTrajectory(ref types.TrajectoryReference) types.ServiceResult

	// Hover holds the current position as the tracker's goal.
	Hover() types.ServiceResult

	// SetConstraints installs a new dynamic kinematic envelope.
	SetConstraints(c types.DynamicConstraints) types.ServiceResult

	// SwitchOdometrySource reconciles tracker-held state across an
	// upstream reference-frame change.
	SwitchOdometrySource(old, next types.VehicleState) types.ServiceResult

	// EnableCallbacks toggles whether inbound callbacks are processed.
	EnableCallbacks(enabled bool) types.ServiceResult
}
