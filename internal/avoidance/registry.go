package avoidance

import (
	"sync"
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

// Registry is the peer trajectory/diagnostics key-value store of
// spec.md section 9's "peer registry" design note: external iteration
// over a snapshot, never a held lock across the caller's own work.
type Registry struct {
	mu sync.RWMutex

	futures     map[string]types.PeerFuture
	diagnostics map[string]types.PeerDiagnostics
}

// NewRegistry creates an empty peer registry.
func NewRegistry() *Registry {
	return &Registry{
		futures:     make(map[string]types.PeerFuture),
		diagnostics: make(map[string]types.PeerDiagnostics),
	}
}

// UpsertFuture installs or replaces a peer's most recent published
// future, stamping it with local receive time.
func (r *Registry) UpsertFuture(f types.PeerFuture, receivedAt time.Time) {
	f.ReceivedAt = receivedAt
	r.mu.Lock()
	defer r.mu.Unlock()
	r.futures[f.UAVName] = f
}

// UpsertDiagnostics installs or replaces a peer's liveness message.
func (r *Registry) UpsertDiagnostics(d types.PeerDiagnostics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics[d.UAVName] = d
}

// SnapshotFutures returns the non-expired peer futures as of now, sorted
// by nothing in particular — callers iterate the slice, never the map.
func (r *Registry) SnapshotFutures(now time.Time, timeout time.Duration) []types.PeerFuture {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.PeerFuture, 0, len(r.futures))
	for _, f := range r.futures {
		if f.Expired(now, timeout) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// SnapshotDiagnostics returns a copy of the current peer diagnostics map.
func (r *Registry) SnapshotDiagnostics() map[string]types.PeerDiagnostics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]types.PeerDiagnostics, len(r.diagnostics))
	for k, v := range r.diagnostics {
		out[k] = v
	}
	return out
}

// Prune removes peer futures and diagnostics older than timeout, for
// periodic housekeeping rather than an ever-growing map.
func (r *Registry) Prune(now time.Time, timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, f := range r.futures {
		if f.Expired(now, timeout) {
			delete(r.futures, name)
		}
	}
	for name, d := range r.diagnostics {
		if now.Sub(d.Stamp) > timeout {
			delete(r.diagnostics, name)
		}
	}
}
