// Package avoidance implements the distributed collision-avoidance
// coordinator (C5): publishes this vehicle's predicted horizon, consumes
// peers' horizons, runs the priority-arbitrated collision test, and
// derives the altitude floor and horizontal-speed cap the reference
// pipeline applies on the next tick.
package avoidance

import (
	"math"
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

var log = obslog.For("avoidance")

// Transform converts a world-frame point into the vehicle's current
// local frame; it is supplied by the frame-change handler (C9) rather
// than owned here. A failing transform drops the peer message (error
// kind 5 of spec.md section 7).
type Transform func(types.WorldPoint) (types.WorldPoint, error)

// Result is what the reference pipeline needs out of one avoidance
// evaluation.
type Result struct {
	AltitudeFloor        float64
	HorizontalSpeedScale float64
	PeersInRadius        []string
	Active               bool
}

// Coordinator owns the peer registry and the mutable floor/speed-scale
// state; it is invoked once per control tick.
type Coordinator struct {
	cfg Config
	reg *Registry

	floor             float64
	speedScale        float64
	speedScaleSetAt   time.Time
}

// New creates a coordinator seeded at the safety-area minimum height and
// an unrestricted speed scale.
func New(cfg Config, reg *Registry) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		reg:        reg,
		floor:      cfg.SafetyAreaMinHeight,
		speedScale: 1.0,
	}
}

// Evaluate runs one avoidance tick: ownHorizon is this vehicle's
// predicted horizon, already in the local frame; xf converts inbound
// peer world-frame points into that same local frame.
func (c *Coordinator) Evaluate(ownHorizon []types.WorldPoint, now time.Time, xf Transform) Result {
	if !c.cfg.Enabled {
		return Result{AltitudeFloor: c.cfg.SafetyAreaMinHeight, HorizontalSpeedScale: 1.0}
	}

	peers := c.reg.SnapshotFutures(now, c.cfg.TrajectoryTimeout)

	weAvoidAny := false
	floorCandidate := c.cfg.SafetyAreaMinHeight
	firstInflatedIndex := -1
	var peersInRadius []string

	for _, peer := range peers {
		local, err := c.transformPeer(peer, xf)
		if err != nil {
			log.WithError(err).WithField("peer", peer.UAVName).Warn("dropping peer future, frame transform failed")
			continue
		}

		weAvoid := !peer.CollisionAvoidance || peer.Priority < c.cfg.OwnPriority
		if !weAvoid {
			continue
		}

		firstCollision := -1
		firstInflated := -1
		n := min(len(local), len(ownHorizon))
		for v := 0; v < n; v++ {
			dist := horizontalDistance(local[v], ownHorizon[v])
			dz := math.Abs(local[v].Z - ownHorizon[v].Z)

			if dist <= c.cfg.HorizontalRadius && dz <= c.cfg.VerticalThreshold {
				peersInRadius = append(peersInRadius, peer.UAVName)
				if firstCollision < 0 {
					firstCollision = v
				}
			}
			if dist <= c.cfg.HorizontalRadius+1 && dz <= c.cfg.VerticalThreshold+1 {
				if firstInflated < 0 {
					firstInflated = v
				}
			}
		}

		if firstCollision >= 0 && firstCollision <= c.cfg.StartClimbingSamples {
			weAvoidAny = true
			candidate := local[firstCollision].Z + c.cfg.HeightCorrection
			if candidate > floorCandidate {
				floorCandidate = candidate
			}
		}

		if firstInflated >= 0 && (firstInflatedIndex < 0 || firstInflated < firstInflatedIndex) {
			firstInflatedIndex = firstInflated
		}
	}

	if floorCandidate > c.floor {
		c.floor = floorCandidate
	} else if !weAvoidAny {
		c.floor -= c.cfg.FloorDecayPerTick
		if c.floor < c.cfg.SafetyAreaMinHeight {
			c.floor = c.cfg.SafetyAreaMinHeight
		}
	}

	newScale := c.resolveSpeedScale(firstInflatedIndex)
	c.applySpeedScaleHold(newScale, now)

	return Result{
		AltitudeFloor:        c.floor,
		HorizontalSpeedScale: c.speedScale,
		PeersInRadius:        peersInRadius,
		Active:               weAvoidAny,
	}
}

func (c *Coordinator) transformPeer(peer types.PeerFuture, xf Transform) ([]types.WorldPoint, error) {
	if xf == nil {
		return peer.Points, nil
	}
	out := make([]types.WorldPoint, len(peer.Points))
	for i, p := range peer.Points {
		local, err := xf(p)
		if err != nil {
			return nil, err
		}
		out[i] = local
	}
	return out, nil
}

// resolveSpeedScale implements spec.md section 4.5's piecewise speed cap.
func (c *Coordinator) resolveSpeedScale(firstInflatedIndex int) float64 {
	if firstInflatedIndex < 0 {
		return 1.0
	}
	v := firstInflatedIndex
	switch {
	case v <= c.cfg.SlowDownFully:
		return c.cfg.HorizontalSpeedCoef
	case v <= c.cfg.SlowDownStart:
		span := float64(c.cfg.SlowDownStart - c.cfg.SlowDownFully)
		if span <= 0 {
			return 1.0
		}
		t := float64(v-c.cfg.SlowDownFully) / span
		return c.cfg.HorizontalSpeedCoef + (1.0-c.cfg.HorizontalSpeedCoef)*t*t
	default:
		return 1.0
	}
}

// applySpeedScaleHold implements the low-pass hold: a larger factor
// replaces the held one immediately; a smaller-or-equal one only takes
// effect once the hold time has elapsed (spec.md section 4.5).
func (c *Coordinator) applySpeedScaleHold(newScale float64, now time.Time) {
	if c.speedScaleSetAt.IsZero() {
		c.speedScale = newScale
		c.speedScaleSetAt = now
		return
	}
	if newScale > c.speedScale {
		c.speedScale = newScale
		c.speedScaleSetAt = now
		return
	}
	if now.Sub(c.speedScaleSetAt) >= c.cfg.SpeedScaleHoldTime {
		c.speedScale = newScale
		c.speedScaleSetAt = now
	}
}

func horizontalDistance(a, b types.WorldPoint) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
