package types

import "time"

// WorldPoint is a bare 3D point in the shared world frame used by the
// avoidance protocol.
type WorldPoint struct {
	X, Y, Z float64
}

// PeerFuture is another vehicle's most recently published predicted
// horizon, in the shared world frame, as consumed by the avoidance
// coordinator (C5).
type PeerFuture struct {
	UAVName           string
	Priority          int
	CollisionAvoidance bool
	Stamp             time.Time
	ReceivedAt        time.Time
	Points            []WorldPoint
}

// Expired reports whether this peer entry is older than the configured
// trajectory timeout, measured from local receive time.
func (p PeerFuture) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(p.ReceivedAt) > timeout
}

// PeerDiagnostics is the lightweight liveness/avoidance-participation
// message peers exchange independently of their predicted horizon.
type PeerDiagnostics struct {
	UAVName                  string
	CollisionAvoidanceActive bool
	Stamp                    time.Time
}
