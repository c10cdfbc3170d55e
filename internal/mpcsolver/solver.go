// Package mpcsolver implements the per-axis MPC quadratic program (C2):
// one independent solve per axis (x, y, z, heading), fixed horizon H,
// decision variables are the horizon's snap inputs, objective is a
// quadratic penalty on state error plus input effort, subject to box
// constraints on velocity/acceleration/jerk/snap at every stage.
//
// There is no generated QP code here (the teacher's source used a
// CVXGEN-generated solver); instead each tick solves the unconstrained
// batch least-squares problem in closed form (gonum) and then projects
// the input sequence onto the stage box constraints with a bounded
// number of clamp-and-resimulate passes — a real-time-iteration style
// approximation that always returns within MaxIterations.
package mpcsolver

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
)

var log = obslog.For("mpcsolver")

// State4 is one stage's (position, velocity, acceleration, jerk) tuple.
type State4 struct {
	Position     float64
	Velocity     float64
	Acceleration float64
	Jerk         float64
}

// QWeights are the diagonal state-cost weights per derivative. VelBraking
// and VelNoBraking are swapped by the supervisor depending on whether the
// reference is stationary across the horizon (spec.md section 4.2).
type QWeights struct {
	Position     float64
	VelBraking   float64
	VelNoBraking float64
	Acceleration float64
	Jerk         float64
}

// Bounds are the resolved stage constraints for one axis; the caller has
// already picked the asymmetric ascending/descending pair where relevant.
type Bounds struct {
	MaxVel, MinVel float64
	MaxAcc, MinAcc float64
	MaxJerk        float64
	MaxSnap        float64
}

// Config parameterises one axis solver instance.
type Config struct {
	Horizon       int
	Dt1           float64 // control period, seconds
	Dt2           float64 // inter-sample spacing within the horizon, seconds
	R             float64 // input-effort weight
	MaxIterations int
}

// Solver is one axis' independent QP instance. It owns no shared state
// with any other axis (design note in spec.md section 9: "no hidden
// global between them").
type Solver struct {
	cfg Config

	sx *mat.Dense // (4H)x4:  stacked free-response blocks
	su *mat.Dense // (4H)xH: stacked input-response blocks
}

// New builds a solver for one axis given its fixed horizon timing.
func New(cfg Config) *Solver {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 20
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 40
	}
	s := &Solver{cfg: cfg}
	s.sx, s.su = buildPrediction(cfg.Horizon, cfg.Dt1, cfg.Dt2)
	return s
}

// chainAB returns the 4x4 transition matrix and 4x1 input vector for one
// step of dt seconds through the {pos,vel,acc,jerk}<-snap integrator chain.
func chainAB(dt float64) (*mat.Dense, [4]float64) {
	dt2, dt3, dt4 := dt*dt, dt*dt*dt, dt*dt*dt*dt
	a := mat.NewDense(4, 4, []float64{
		1, dt, dt2 / 2, dt3 / 6,
		0, 1, dt, dt2 / 2,
		0, 0, 1, dt,
		0, 0, 0, 1,
	})
	b := [4]float64{dt4 / 24, dt3 / 6, dt2 / 2, dt}
	return a, b
}

func mulVec4(a *mat.Dense, v [4]float64) [4]float64 {
	in := mat.NewVecDense(4, v[:])
	var out mat.VecDense
	out.MulVec(a, in)
	return [4]float64{out.AtVec(0), out.AtVec(1), out.AtVec(2), out.AtVec(3)}
}

func mulMat4(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// buildPrediction forms the batch matrices over the horizon: stage 0 is
// Dt1 away from now (the plant's next control step); stages 1..H-1 are
// each a further Dt2 apart. Because stages 1..H-1 share the same step
// size, their transition is time-invariant and the whole prediction has
// a closed form in powers of A(Dt2).
func buildPrediction(h int, dt1, dt2 float64) (*mat.Dense, *mat.Dense) {
	a0, b0 := chainAB(dt1)
	a2, b2 := chainAB(dt2)

	// a2pow[m] = A(dt2)^m
	a2pow := make([]*mat.Dense, h)
	a2pow[0] = mat.NewDense(4, 4, []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1})
	for m := 1; m < h; m++ {
		a2pow[m] = mulMat4(a2pow[m-1], a2)
	}

	sx := mat.NewDense(4*h, 4, nil)
	su := mat.NewDense(4*h, h, nil)

	for k := 0; k < h; k++ {
		block := mulMat4(a2pow[k], a0)
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				sx.Set(4*k+r, c, block.At(r, c))
			}
		}

		// Column 0: contribution of u0 to state k is A(dt2)^k * B0.
		col0 := mulVec4(a2pow[k], b0)
		for r := 0; r < 4; r++ {
			su.Set(4*k+r, 0, col0[r])
		}

		// Column j (1<=j<=k): contribution of u_j to state k is
		// A(dt2)^(k-j) * B2.
		for j := 1; j <= k; j++ {
			colJ := mulVec4(a2pow[k-j], b2)
			for r := 0; r < 4; r++ {
				su.Set(4*k+r, j, colJ[r])
			}
		}
	}

	return sx, su
}

// Solve runs one MPC tick for this axis. initial is the current plant
// state (pos,vel,acc,jerk); reference is the horizon-length desired
// position (higher derivatives are implicitly zero-referenced so the
// MPC drives them to rest once position is tracked). brake selects which
// velocity weight applies.
//
// Returns the first input (snap) to apply this tick, the predicted
// horizon of states, the iteration count used, and whether the stage
// box constraints were satisfied within MaxIterations.
func (s *Solver) Solve(initial State4, reference []float64, weights QWeights, bounds Bounds, brake bool) (float64, []State4, int, bool) {
	h := s.cfg.Horizon
	reference = padOrTruncate(reference, h)

	x0 := [4]float64{initial.Position, initial.Velocity, initial.Acceleration, initial.Jerk}
	x0vec := mat.NewVecDense(4, x0[:])

	velWeight := weights.VelNoBraking
	if brake {
		velWeight = weights.VelBraking
	}
	qdiag := [4]float64{weights.Position, velWeight, weights.Acceleration, weights.Jerk}

	yref := mat.NewVecDense(4*h, nil)
	for k := 0; k < h; k++ {
		yref.SetVec(4*k, reference[k])
	}

	var free mat.VecDense
	free.MulVec(s.sx, x0vec)

	var stageErr mat.VecDense
	stageErr.SubVec(yref, &free)

	qScaledErr := mat.NewVecDense(4*h, nil)
	suScaled := mat.NewDense(4*h, h, nil)
	for k := 0; k < h; k++ {
		for d := 0; d < 4; d++ {
			row := 4*k + d
			qScaledErr.SetVec(row, qdiag[d]*stageErr.AtVec(row))
			for j := 0; j < h; j++ {
				suScaled.Set(row, j, qdiag[d]*s.su.At(row, j))
			}
		}
	}

	var suT mat.Dense
	suT.CloneFrom(s.su.T())

	lhs := mat.NewDense(h, h, nil)
	lhs.Mul(&suT, suScaled)
	for i := 0; i < h; i++ {
		lhs.Set(i, i, lhs.At(i, i)+s.cfg.R)
	}

	rhs := mat.NewVecDense(h, nil)
	rhs.MulVec(&suT, qScaledErr)

	u := mat.NewVecDense(h, nil)
	if err := u.SolveVec(lhs, rhs); err != nil {
		log.WithError(err).Warn("normal equations singular, falling back to zero input")
		u.Zero()
	}

	predicted, iterations, converged := s.projectOntoBounds(u, x0vec, bounds)

	firstInput := u.AtVec(0)
	if !converged {
		log.WithField("iterations", iterations).Warn("solver iteration limit exceeded")
	}

	return firstInput, predicted, iterations, converged
}

// projectOntoBounds clamps the snap sequence to MaxSnap and, if the
// resulting forward simulation still violates a velocity/acceleration/
// jerk bound anywhere in the horizon, uniformly shrinks the sequence and
// retries. This always terminates within MaxIterations (spec.md section
// 5's bounded-work guarantee).
func (s *Solver) projectOntoBounds(u, x0 *mat.VecDense, bounds Bounds) ([]State4, int, bool) {
	h := s.cfg.Horizon
	working := mat.VecDenseCopyOf(u)

	var predicted []State4
	converged := false
	iterations := 0

	for iterations = 1; iterations <= s.cfg.MaxIterations; iterations++ {
		for i := 0; i < h; i++ {
			v := working.AtVec(i)
			if v > bounds.MaxSnap {
				working.SetVec(i, bounds.MaxSnap)
			} else if v < -bounds.MaxSnap {
				working.SetVec(i, -bounds.MaxSnap)
			}
		}

		var stacked mat.VecDense
		stacked.MulVec(s.su, working)
		stacked.AddVec(&stacked, mustFree(s.sx, x0))

		predicted = make([]State4, h)
		violated := false
		for k := 0; k < h; k++ {
			st := State4{
				Position:     stacked.AtVec(4*k + 0),
				Velocity:     stacked.AtVec(4*k + 1),
				Acceleration: stacked.AtVec(4*k + 2),
				Jerk:         stacked.AtVec(4*k + 3),
			}
			predicted[k] = st
			if st.Velocity > bounds.MaxVel || st.Velocity < bounds.MinVel ||
				st.Acceleration > bounds.MaxAcc || st.Acceleration < bounds.MinAcc ||
				math.Abs(st.Jerk) > bounds.MaxJerk {
				violated = true
			}
		}

		if !violated {
			converged = true
			break
		}
		working.ScaleVec(0.8, working)
	}
	if !converged {
		iterations = s.cfg.MaxIterations
	}

	return predicted, iterations, converged
}

func mustFree(sx *mat.Dense, x0 *mat.VecDense) *mat.VecDense {
	var free mat.VecDense
	free.MulVec(sx, x0)
	return &free
}

func padOrTruncate(ref []float64, h int) []float64 {
	out := make([]float64, h)
	for i := 0; i < h; i++ {
		switch {
		case i < len(ref):
			out[i] = ref[i]
		case len(ref) > 0:
			out[i] = ref[len(ref)-1]
		}
	}
	return out
}
