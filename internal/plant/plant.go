// Package plant implements the fourth-order integrator chain (C1):
// pos <- vel <- acc <- jerk <- snap, discretised at the actual elapsed
// wall time since the previous step, with a nominal-dt fallback when
// the measured step is implausible (clock glitch guard).
package plant

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

var log = obslog.For("plant")

// Config holds the nominal timing used to discretise the chain when the
// measured inter-step time is implausible.
type Config struct {
	ControlPeriod time.Duration // Delta1
	SampleSpacing time.Duration // Delta2, unused by the plant itself but kept for symmetry with the rest of the config set
}

// Input is the snap command produced by the four axis solvers for one
// control tick.
type Input struct {
	SnapX, SnapY, SnapZ, SnapHeading float64
}

// Model advances a types.PlantState one control tick at a time. It is not
// safe for concurrent use; the owning tracker serialises access under its
// plant-state mutex.
type Model struct {
	cfg Config

	nominalA *mat.Dense
	nominalB *mat.VecDense
}

// NewModel builds a plant model for the given control timing.
func NewModel(cfg Config) *Model {
	m := &Model{cfg: cfg}
	m.nominalA, m.nominalB = chainMatrices(cfg.ControlPeriod.Seconds())
	return m
}

// chainMatrices returns the exact zero-order-hold transition matrices for
// a four-integrator chain {pos, vel, acc, jerk} with input `snap`,
// discretised at step dt.
func chainMatrices(dt float64) (*mat.Dense, *mat.VecDense) {
	dt2 := dt * dt
	dt3 := dt2 * dt
	dt4 := dt3 * dt

	a := mat.NewDense(4, 4, []float64{
		1, dt, dt2 / 2, dt3 / 6,
		0, 1, dt, dt2 / 2,
		0, 0, 1, dt,
		0, 0, 0, 1,
	})
	b := mat.NewVecDense(4, []float64{dt4 / 24, dt3 / 6, dt2 / 2, dt})
	return a, b
}

// minStep/maxStep bound the plausible measured inter-step time; outside
// this window the nominal matrices are substituted (spec.md section 4.1).
const (
	minStep = 1 * time.Millisecond
	maxStep = 2 * time.Second
)

// Step advances state by one control tick. now is the wall-clock time of
// this step; on the first step after activation the state's LastStepTime
// is seeded and the nominal matrices are used.
func (m *Model) Step(state types.PlantState, in Input, now time.Time) types.PlantState {
	if !state.Initialized {
		state.LastStepTime = now
		state.Initialized = true
		return m.advance(state, in, m.nominalA, m.nominalB)
	}

	dt := now.Sub(state.LastStepTime)
	a, b := m.nominalA, m.nominalB
	if dt >= minStep && dt <= maxStep {
		a, b = chainMatrices(dt.Seconds())
	} else {
		log.WithField("dt_ms", dt.Milliseconds()).Warn("implausible step interval, substituting nominal matrices")
	}

	next := m.advance(state, in, a, b)
	next.LastStepTime = now
	return next
}

// advance applies x' = A*x + B*u independently to x, y, z and heading.
func (m *Model) advance(state types.PlantState, in Input, a *mat.Dense, b *mat.VecDense) types.PlantState {
	xs := stepAxis(a, b, []float64{state.X.Position, state.X.Velocity, state.X.Acceleration, state.X.Jerk}, in.SnapX)
	ys := stepAxis(a, b, []float64{state.Y.Position, state.Y.Velocity, state.Y.Acceleration, state.Y.Jerk}, in.SnapY)
	zs := stepAxis(a, b, []float64{state.Z.Position, state.Z.Velocity, state.Z.Acceleration, state.Z.Jerk}, in.SnapZ)
	hs := stepAxis(a, b, []float64{state.Heading.Heading, state.Heading.Rate, state.Heading.Acceleration, state.Heading.Jerk}, in.SnapHeading)

	state.X = types.TranslationalState{Position: xs[0], Velocity: xs[1], Acceleration: xs[2], Jerk: xs[3]}
	state.Y = types.TranslationalState{Position: ys[0], Velocity: ys[1], Acceleration: ys[2], Jerk: ys[3]}
	state.Z = types.TranslationalState{Position: zs[0], Velocity: zs[1], Acceleration: zs[2], Jerk: zs[3]}
	state.Heading = types.HeadingState{Heading: types.WrapHeading(hs[0]), Rate: hs[1], Acceleration: hs[2], Jerk: hs[3]}

	return state
}

func stepAxis(a *mat.Dense, b *mat.VecDense, x []float64, u float64) []float64 {
	xv := mat.NewVecDense(4, x)

	var ax mat.VecDense
	ax.MulVec(a, xv)

	var bu mat.VecDense
	bu.ScaleVec(u, b)

	var next mat.VecDense
	next.AddVec(&ax, &bu)

	return []float64{next.AtVec(0), next.AtVec(1), next.AtVec(2), next.AtVec(3)}
}

// SanitizeOrHold implements the "non-finite plant output" error kind: if
// the state has gone non-finite, the returned command zeroes the velocity,
// acceleration and jerk fields and holds position at `lastGood`.
func SanitizeOrHold(state types.PlantState, lastGood types.PlantState) (types.PlantState, bool) {
	if state.Finite() {
		return state, true
	}
	log.Error("non-finite plant state detected, holding last good position")
	held := lastGood
	held.X.Velocity, held.X.Acceleration, held.X.Jerk = 0, 0, 0
	held.Y.Velocity, held.Y.Acceleration, held.Y.Jerk = 0, 0, 0
	held.Z.Velocity, held.Z.Acceleration, held.Z.Jerk = 0, 0, 0
	held.Heading.Rate, held.Heading.Acceleration, held.Heading.Jerk = 0, 0, 0
	return held, false
}
