// Package constraints implements the constraint manager (C7): speed
// caps take effect immediately, but higher-derivative limits (tighter
// acceleration/jerk/snap bounds) are only committed once the plant
// state already satisfies them on every axis.
package constraints

import (
	"sync"

	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

var log = obslog.For("constraints")

// Manager holds the requested and effective constraint sets plus the
// pending higher-derivative commit, guarded by a single lock (spec.md
// section 5 lists "constraints" as one of the mutex domains).
type Manager struct {
	mu sync.RWMutex

	requested types.DynamicConstraints
	effective types.DynamicConstraints

	pending     types.DynamicConstraints
	havePending bool
}

// New creates a constraint manager with a zeroed (maximally restrictive)
// effective envelope; the supervisor must not activate until a first
// SetRequested call succeeds (spec.md section 4.6 precondition).
func New() *Manager {
	return &Manager{}
}

// Effective returns a copy of the constraints currently enforced by the
// MPC solvers.
func (m *Manager) Effective() types.DynamicConstraints {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.effective
}

// Requested returns a copy of the most recently received constraint set.
func (m *Manager) Requested() types.DynamicConstraints {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requested
}

// SetRequested installs a new requested envelope: speed components copy
// into effective immediately; everything else becomes pending until the
// plant state already satisfies it (spec.md section 4.7).
func (m *Manager) SetRequested(next types.DynamicConstraints) types.ServiceResult {
	if !next.Valid() {
		return types.Fail("constraints contain a non-finite or negative value")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requested = next

	m.effective.X.MaxSpeed = next.X.MaxSpeed
	m.effective.X.AscendingSpeed = next.X.AscendingSpeed
	m.effective.X.DescendingSpeed = next.X.DescendingSpeed
	m.effective.Y.MaxSpeed = next.Y.MaxSpeed
	m.effective.Y.AscendingSpeed = next.Y.AscendingSpeed
	m.effective.Y.DescendingSpeed = next.Y.DescendingSpeed
	m.effective.Z.MaxSpeed = next.Z.MaxSpeed
	m.effective.Z.AscendingSpeed = next.Z.AscendingSpeed
	m.effective.Z.DescendingSpeed = next.Z.DescendingSpeed
	m.effective.Heading.MaxSpeed = next.Heading.MaxSpeed

	m.pending = next
	m.havePending = true

	log.Info("new constraints received, speed caps applied immediately, higher derivatives pending")
	return types.Ok("constraints updated")
}

// TryCommitPending checks whether the plant state's velocity,
// acceleration and jerk on every axis already lie inside the pending
// envelope; if so, the pending higher-derivative limits (and any
// residual speed fields) are committed into effective and it returns
// true. Called once per control tick by the owning tracker.
func (m *Manager) TryCommitPending(state types.PlantState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.havePending {
		return false
	}

	if !m.pending.X.WithinEnvelope(state.X.Velocity, state.X.Acceleration, state.X.Jerk) {
		return false
	}
	if !m.pending.Y.WithinEnvelope(state.Y.Velocity, state.Y.Acceleration, state.Y.Jerk) {
		return false
	}
	if !m.pending.Z.WithinEnvelope(state.Z.Velocity, state.Z.Acceleration, state.Z.Jerk) {
		return false
	}
	if !m.pending.Heading.WithinEnvelope(state.Heading.Rate, state.Heading.Acceleration, state.Heading.Jerk) {
		return false
	}

	m.effective = m.pending
	m.havePending = false
	log.Info("pending higher-derivative constraints committed")
	return true
}

// HasPending reports whether a commit is still outstanding, for status
// reporting.
func (m *Manager) HasPending() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.havePending
}
