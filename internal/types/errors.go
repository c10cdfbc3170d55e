package types

import "errors"

// The six error kinds of spec.md section 7. Components wrap these with
// fmt.Errorf("...: %w", ErrX) to add context; callers can still
// errors.Is against the sentinel.
var (
	// ErrPrecondition: activation without constraints or without state.
	ErrPrecondition = errors.New("precondition failure")

	// ErrTrajectoryRejected: dt < control period, stale sample offset, or
	// loop endpoints too far apart.
	ErrTrajectoryRejected = errors.New("trajectory rejected")

	// ErrSolverNonConvergence: per-tick iteration limit exceeded.
	ErrSolverNonConvergence = errors.New("solver iteration limit exceeded")

	// ErrNonFinitePlant: NaN/Inf appeared in the plant state after integration.
	ErrNonFinitePlant = errors.New("non-finite plant state")

	// ErrTransformFailed: a peer trajectory could not be transformed into
	// the local frame.
	ErrTransformFailed = errors.New("frame transform failed")

	// ErrStaleMPCResult: the MPC has not yet produced a finite result
	// since activation.
	ErrStaleMPCResult = errors.New("stale mpc result")
)
