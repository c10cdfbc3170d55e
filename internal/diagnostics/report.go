package diagnostics

import (
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

// Inputs bundles what the owning tracker snapshots once per publish
// tick to build a diagnostics report, without diagnostics holding any
// of the tracker's own locks.
type Inputs struct {
	AvoidanceActive     bool
	PeersInRadius       []string
	Setpoint            types.SetpointReference
	IterationsOverLimit map[types.Axis]uint64
}

// BuildReport assembles the periodic diagnostics message of spec.md
// section 6, folding in the drift tracker's current ratio.
func BuildReport(now time.Time, in Inputs, drift *DriftTracker) types.DiagnosticsReport {
	return types.DiagnosticsReport{
		Stamp:               now,
		AvoidanceActive:     in.AvoidanceActive,
		PeersInRadius:       append([]string(nil), in.PeersInRadius...),
		Setpoint:            in.Setpoint,
		IterationsOverLimit: in.IterationsOverLimit,
		TickDriftRatio:      drift.Ratio(),
	}
}

// StatusInputs bundles what's needed for the tracker-status message.
type StatusInputs struct {
	Active             bool
	HasGoal            bool
	TrackingTrajectory bool
	TrajectoryLength   int
	TrajectoryIndex    int
	CurrentReference   types.SetpointReference
}

// BuildStatus assembles the periodic tracker-status message of spec.md
// section 6.
func BuildStatus(in StatusInputs) types.TrackerStatus {
	return types.TrackerStatus{
		Active:             in.Active,
		HasGoal:            in.HasGoal,
		TrackingTrajectory: in.TrackingTrajectory,
		TrajectoryLength:   in.TrajectoryLength,
		TrajectoryIndex:    in.TrajectoryIndex,
		CurrentReference:   in.CurrentReference,
	}
}

// HasGoal reports whether the current position/heading error versus the
// setpoint falls outside the configured tracking thresholds (spec.md
// section 6's "position/heading tracking thresholds used only to set
// the have-goal diagnostic flag").
func HasGoal(current types.WorldPoint, currentHeading float64, goal types.SetpointReference, posThreshold, headingThreshold float64) bool {
	dx, dy, dz := current.X-goal.X, current.Y-goal.Y, current.Z-goal.Z
	posErr := dx*dx + dy*dy + dz*dz
	if posErr > posThreshold*posThreshold {
		return true
	}
	if goal.UseHeading {
		diff := types.WrapHeading(goal.Heading - currentHeading)
		if diff < 0 {
			diff = -diff
		}
		if diff > headingThreshold {
			return true
		}
	}
	return false
}
