package avoidance

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/nats-io/nats.go"

	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

// wireFuture and wireDiagnostics are the CBOR-encoded payloads exchanged
// over NATS; they mirror types.PeerFuture/types.PeerDiagnostics but drop
// the locally-computed ReceivedAt field.
type wireFuture struct {
	UAVName            string
	Priority           int
	CollisionAvoidance bool
	Stamp              time.Time
	Points             []types.WorldPoint
}

type wireDiagnostics struct {
	UAVName                  string
	CollisionAvoidanceActive bool
	Stamp                    time.Time
}

// Bus publishes this vehicle's predicted horizon and diagnostics, and
// feeds inbound peer messages into a Registry, over NATS subjects
// `avoidance.<uav>.future` and `avoidance.<uav>.diagnostics`.
type Bus struct {
	nc  *nats.Conn
	reg *Registry

	ownUAVName string
	subs       []*nats.Subscription
}

// NewBus wraps an already-connected NATS connection.
func NewBus(nc *nats.Conn, reg *Registry, ownUAVName string) *Bus {
	return &Bus{nc: nc, reg: reg, ownUAVName: ownUAVName}
}

// PublishFuture encodes and publishes this vehicle's predicted horizon.
func (b *Bus) PublishFuture(priority int, collisionAvoidance bool, stamp time.Time, points []types.WorldPoint) error {
	payload, err := cbor.Marshal(wireFuture{
		UAVName:            b.ownUAVName,
		Priority:           priority,
		CollisionAvoidance: collisionAvoidance,
		Stamp:              stamp,
		Points:             points,
	})
	if err != nil {
		return fmt.Errorf("encode peer future: %w", err)
	}
	return b.nc.Publish(futureSubject(b.ownUAVName), payload)
}

// PublishDiagnostics encodes and publishes this vehicle's liveness message.
func (b *Bus) PublishDiagnostics(collisionAvoidanceActive bool, stamp time.Time) error {
	payload, err := cbor.Marshal(wireDiagnostics{
		UAVName:                  b.ownUAVName,
		CollisionAvoidanceActive: collisionAvoidanceActive,
		Stamp:                    stamp,
	})
	if err != nil {
		return fmt.Errorf("encode peer diagnostics: %w", err)
	}
	return b.nc.Publish(diagnosticsSubject(b.ownUAVName), payload)
}

// Subscribe starts listening on every peer's future/diagnostics subjects
// and feeds them into the registry as they arrive. peerNames is the
// configured peer list (spec.md section 6's "avoidance {..., peer_list}").
func (b *Bus) Subscribe(peerNames []string) error {
	for _, name := range peerNames {
		if name == b.ownUAVName {
			continue
		}

		fsub, err := b.nc.Subscribe(futureSubject(name), b.handleFuture)
		if err != nil {
			return fmt.Errorf("subscribe to %s future: %w", name, err)
		}
		b.subs = append(b.subs, fsub)

		dsub, err := b.nc.Subscribe(diagnosticsSubject(name), b.handleDiagnostics)
		if err != nil {
			return fmt.Errorf("subscribe to %s diagnostics: %w", name, err)
		}
		b.subs = append(b.subs, dsub)
	}
	return nil
}

// Close unsubscribes from every peer subject; it does not close the
// underlying connection, which is owned by the transport shell.
func (b *Bus) Close() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
}

func (b *Bus) handleFuture(msg *nats.Msg) {
	var w wireFuture
	if err := cbor.Unmarshal(msg.Data, &w); err != nil {
		log.WithError(err).Warn("dropping malformed peer future")
		return
	}
	b.reg.UpsertFuture(types.PeerFuture{
		UAVName:            w.UAVName,
		Priority:           w.Priority,
		CollisionAvoidance: w.CollisionAvoidance,
		Stamp:              w.Stamp,
		Points:             w.Points,
	}, time.Now())
}

func (b *Bus) handleDiagnostics(msg *nats.Msg) {
	var w wireDiagnostics
	if err := cbor.Unmarshal(msg.Data, &w); err != nil {
		log.WithError(err).Warn("dropping malformed peer diagnostics")
		return
	}
	b.reg.UpsertDiagnostics(types.PeerDiagnostics{
		UAVName:                  w.UAVName,
		CollisionAvoidanceActive: w.CollisionAvoidanceActive,
		Stamp:                    w.Stamp,
	})
}

func futureSubject(uav string) string      { return "avoidance." + uav + ".future" }
func diagnosticsSubject(uav string) string { return "avoidance." + uav + ".diagnostics" }
