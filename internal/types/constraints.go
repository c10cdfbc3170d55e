package types

import "math"

// AxisLimits bounds speed/acceleration/jerk/snap on a single translational
// axis. Vertical uses Ascending/Descending asymmetric fields instead of
// the symmetric Max* fields; x, y and heading use the symmetric ones.
type AxisLimits struct {
	MaxSpeed        float64
	MaxAcceleration float64
	MaxJerk         float64
	MaxSnap         float64

	// Vertical-only asymmetric bounds. Zero value means "use MaxSpeed /
	// MaxAcceleration symmetrically" for axes that don't set them.
	AscendingSpeed   float64
	DescendingSpeed  float64
	AscendingAccel   float64
	DescendingAccel  float64
}

// SpeedBounds returns the (max, min) velocity bound to saturate against,
// honouring the asymmetric vertical envelope when configured.
func (l AxisLimits) SpeedBounds() (max, min float64) {
	if l.AscendingSpeed > 0 || l.DescendingSpeed > 0 {
		return l.AscendingSpeed, -l.DescendingSpeed
	}
	return l.MaxSpeed, -l.MaxSpeed
}

// AccelBounds returns the (max, min) acceleration bound.
func (l AxisLimits) AccelBounds() (max, min float64) {
	if l.AscendingAccel > 0 || l.DescendingAccel > 0 {
		return l.AscendingAccel, -l.DescendingAccel
	}
	return l.MaxAcceleration, -l.MaxAcceleration
}

// WithinEnvelope reports whether a (vel, acc, jerk) triple already lies
// inside this axis' limits — used by the constraint manager to decide
// whether a pending higher-derivative envelope can be committed.
func (l AxisLimits) WithinEnvelope(vel, acc, jerk float64) bool {
	maxV, minV := l.SpeedBounds()
	maxA, minA := l.AccelBounds()
	if vel > maxV || vel < minV {
		return false
	}
	if acc > maxA || acc < minA {
		return false
	}
	if math.Abs(jerk) > l.MaxJerk {
		return false
	}
	return true
}

// HeadingLimits bounds heading speed/acceleration/jerk/snap.
type HeadingLimits struct {
	MaxSpeed        float64
	MaxAcceleration float64
	MaxJerk         float64
	MaxSnap         float64
}

// WithinEnvelope mirrors AxisLimits.WithinEnvelope for the heading axis.
func (l HeadingLimits) WithinEnvelope(rate, acc, jerk float64) bool {
	return math.Abs(rate) <= l.MaxSpeed && math.Abs(acc) <= l.MaxAcceleration && math.Abs(jerk) <= l.MaxJerk
}

// DynamicConstraints is the full per-axis kinematic envelope of spec.md
// section 3. A tracker keeps a Requested copy (what the supervisor was
// last asked for) and an Effective copy (what the MPC currently enforces);
// see ConstraintManager (C7).
type DynamicConstraints struct {
	X, Y, Z AxisLimits
	Heading HeadingLimits
}

// Valid reports whether every numeric field is finite and non-negative
// where required. Invalid constraint sets are rejected by the caller
// rather than applied partially.
func (c DynamicConstraints) Valid() bool {
	axes := []AxisLimits{c.X, c.Y, c.Z}
	for _, a := range axes {
		for _, v := range []float64{a.MaxSpeed, a.MaxAcceleration, a.MaxJerk, a.MaxSnap,
			a.AscendingSpeed, a.DescendingSpeed, a.AscendingAccel, a.DescendingAccel} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return false
			}
		}
	}
	for _, v := range []float64{c.Heading.MaxSpeed, c.Heading.MaxAcceleration, c.Heading.MaxJerk, c.Heading.MaxSnap} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}
