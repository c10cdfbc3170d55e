// Package refpipeline implements the reference-reshaping pipeline (C3):
// vertical saturation, the safety-altitude floor, horizontal saturation,
// the optional excitation "wiggle", and heading unwrap.
package refpipeline

import (
	"math"

	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

var log = obslog.For("refpipeline")

// WiggleConfig configures the persistent-excitation perturbation.
type WiggleConfig struct {
	Enabled   bool
	Amplitude float64
	Frequency float64 // Hz
}

// Config bundles the pipeline's tunables for one control tick.
type Config struct {
	Horizon int
	Dt1     float64 // seconds
	Dt2     float64 // seconds

	MaxAscendingSpeed  float64
	MaxDescendingSpeed float64
	MaxHorizontalSpeed float64

	SafetyAreaMinHeight float64

	Wiggle WiggleConfig
}

// Pipeline holds the mutable wiggle phase across ticks; everything else
// is supplied per call so the pipeline itself carries minimal state.
type Pipeline struct {
	wigglePhase float64
}

// New creates a reference pipeline with a zeroed wiggle phase.
func New() *Pipeline {
	return &Pipeline{}
}

// Reshape turns a desired horizon-length position reference (from the
// trajectory interpolator or a held setpoint) into a feasible reference
// for the axis solvers. avoidanceFloor and horizontalSpeedCap come from
// the avoidance coordinator (C5); currentHeading and currentPos anchor
// the vertical/horizontal saturation and the heading unwrap.
func (p *Pipeline) Reshape(cfg Config, desired *types.HorizonReference, currentPos types.WorldPoint, currentHeading float64, avoidanceFloor, horizontalSpeedCap float64) *types.HorizonReference {
	out := desired.Clone()
	h := out.Len()
	if h == 0 {
		return out
	}

	p.saturateVertical(cfg, out, currentPos.Z)
	p.applyAltitudeFloor(out, avoidanceFloor, cfg.SafetyAreaMinHeight)
	p.saturateHorizontal(cfg, out, currentPos, horizontalSpeedCap)
	if cfg.Wiggle.Enabled {
		p.applyWiggle(cfg, out)
	}
	p.unwrapHeading(out, currentHeading)

	return out
}

// saturateVertical clamps sample-to-sample z differences to
// (maxAscendingSpeed*dt, -maxDescendingSpeed*dt); dt is Dt1 for the
// first step and Dt2 thereafter (spec.md section 4.3 step 1).
func (p *Pipeline) saturateVertical(cfg Config, ref *types.HorizonReference, startZ float64) {
	prev := startZ
	for i := 0; i < ref.Len(); i++ {
		dt := cfg.Dt2
		if i == 0 {
			dt = cfg.Dt1
		}
		up := cfg.MaxAscendingSpeed * dt
		down := -cfg.MaxDescendingSpeed * dt

		delta := ref.Z[i] - prev
		if delta > up {
			delta = up
		} else if delta < down {
			delta = down
		}
		ref.Z[i] = prev + delta
		prev = ref.Z[i]
	}
}

// applyAltitudeFloor replaces any vertical reference below the avoidance
// floor (itself bounded below by the safety-area minimum height) with
// the floor value (spec.md section 4.3 step 2).
func (p *Pipeline) applyAltitudeFloor(ref *types.HorizonReference, avoidanceFloor, safetyMin float64) {
	floor := avoidanceFloor
	if floor < safetyMin {
		floor = safetyMin
	}
	for i := range ref.Z {
		if ref.Z[i] < floor {
			ref.Z[i] = floor
		}
	}
}

// saturateHorizontal computes the desired heading-of-motion and
// saturates per-sample motion to speed*dt projected onto it (spec.md
// section 4.3 step 3).
func (p *Pipeline) saturateHorizontal(cfg Config, ref *types.HorizonReference, start types.WorldPoint, speedCap float64) {
	maxSpeed := cfg.MaxHorizontalSpeed
	if speedCap > 0 && speedCap < maxSpeed {
		maxSpeed = speedCap
	}

	prevX, prevY := start.X, start.Y
	for i := 0; i < ref.Len(); i++ {
		dt := cfg.Dt2
		if i == 0 {
			dt = cfg.Dt1
		}
		limit := maxSpeed * dt

		dx := ref.X[i] - prevX
		dy := ref.Y[i] - prevY
		dist := math.Hypot(dx, dy)

		if dist > limit && dist > 1e-9 {
			heading := math.Atan2(dy, dx)
			dx = limit * math.Cos(heading)
			dy = limit * math.Sin(heading)
		}

		ref.X[i] = prevX + dx
		ref.Y[i] = prevY + dy
		prevX, prevY = ref.X[i], ref.Y[i]
	}
}

// applyWiggle adds a persistent-excitation perturbation to x and y,
// advancing the shared phase by f*Dt1*2*pi per tick (spec.md section
// 4.3 step 4).
func (p *Pipeline) applyWiggle(cfg Config, ref *types.HorizonReference) {
	w := cfg.Wiggle
	for i := range ref.X {
		t := float64(i) * cfg.Dt2
		ref.X[i] += w.Amplitude * math.Cos(2*math.Pi*w.Frequency*t+p.wigglePhase)
		ref.Y[i] += w.Amplitude * math.Sin(2*math.Pi*w.Frequency*t+p.wigglePhase)
	}
	p.wigglePhase += w.Frequency * cfg.Dt1 * 2 * math.Pi
	p.wigglePhase = types.WrapHeading(p.wigglePhase)
}

// unwrapHeading unwraps the reference heading relative to the current
// plant heading so the MPC sees a continuous signal across +-pi
// (spec.md section 4.3 step 5).
func (p *Pipeline) unwrapHeading(ref *types.HorizonReference, currentHeading float64) {
	prev := currentHeading
	for i := range ref.Heading {
		ref.Heading[i] = types.UnwrapRelative(ref.Heading[i], prev)
		prev = ref.Heading[i]
	}
}

// IsStationary reports whether the reference is effectively unmoving
// across the horizon, which selects the braking Q-velocity weight
// (spec.md section 4.2).
func IsStationary(ref *types.HorizonReference, tol float64) bool {
	if ref.Len() == 0 {
		return true
	}
	x0, y0, z0 := ref.X[0], ref.Y[0], ref.Z[0]
	for i := 1; i < ref.Len(); i++ {
		if math.Hypot(ref.X[i]-x0, ref.Y[i]-y0) > tol || math.Abs(ref.Z[i]-z0) > tol {
			return false
		}
	}
	return true
}
