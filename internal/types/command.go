package types

import "time"

// AxisCommand carries one translational axis' command fields plus the
// "use" flag the downstream controller checks before trusting a field.
type AxisCommand struct {
	Position     float64
	Velocity     float64
	Acceleration float64
	Jerk         float64

	UsePosition     bool
	UseVelocity     bool
	UseAcceleration bool
	UseJerk         bool
}

// HeadingCommand mirrors AxisCommand for the heading degree of freedom.
type HeadingCommand struct {
	Heading      float64
	Rate         float64
	Acceleration float64
	Jerk         float64

	UseHeading      bool
	UseRate         bool
	UseAcceleration bool
	UseJerk         bool
}

// PositionCommand is the core's output at the MPC rate (spec.md section 6).
type PositionCommand struct {
	FrameID string
	Stamp   time.Time

	X, Y, Z AxisCommand
	Heading HeadingCommand
}

// PredictedHorizon is this vehicle's future, transformed into the shared
// world frame, published to peers by the avoidance coordinator (C5).
type PredictedHorizon struct {
	FrameID string
	Stamp   time.Time
	Points  []WorldPoint
}

// TrackerStatus is the periodic summary described in spec.md section 6.
type TrackerStatus struct {
	Active              bool
	HasGoal             bool
	TrackingTrajectory  bool
	TrajectoryLength    int
	TrajectoryIndex     int
	CurrentReference    SetpointReference
}

// DiagnosticsReport is the periodic health/avoidance summary of spec.md
// section 6.
type DiagnosticsReport struct {
	Stamp               time.Time
	AvoidanceActive     bool
	PeersInRadius       []string
	Setpoint            SetpointReference
	IterationsOverLimit map[Axis]uint64
	TickDriftRatio      float64
}

// ServiceResult is the uniform return contract for every service-like
// request in spec.md section 6.
type ServiceResult struct {
	Success bool
	Message string
}

func Ok(message string) ServiceResult  { return ServiceResult{Success: true, Message: message} }
func Fail(message string) ServiceResult { return ServiceResult{Success: false, Message: message} }
