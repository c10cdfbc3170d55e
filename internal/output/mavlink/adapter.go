package mavlink

import (
	"context"
	"sync"
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

var log = obslog.For("mavlink")

// Config configures the serial link and addressing for the adapter.
type Config struct {
	Port            string
	BaudRate        int
	SystemID        uint8
	ComponentID     uint8
	TargetSystem    uint8
	TargetComponent uint8
	HeartbeatPeriod time.Duration
	SimulationMode  bool
}

// Adapter relays PositionCommand output onto a MAVLink serial link. It
// holds no tracking state of its own; armed status is tracked only for
// the heartbeat's safety-armed bit.
type Adapter struct {
	cfg      Config
	protocol *Protocol

	mu    sync.Mutex
	armed bool
}

// New creates an adapter; call Open before Send.
func New(cfg Config) *Adapter {
	if cfg.HeartbeatPeriod <= 0 {
		cfg.HeartbeatPeriod = time.Second
	}
	if cfg.TargetSystem == 0 {
		cfg.TargetSystem = 1
	}
	if cfg.TargetComponent == 0 {
		cfg.TargetComponent = 1
	}
	return &Adapter{cfg: cfg, protocol: NewProtocol(cfg.SystemID, cfg.ComponentID)}
}

// Open opens the serial port, unless running in simulation mode.
func (a *Adapter) Open() error {
	if a.cfg.SimulationMode {
		log.Info("mavlink adapter running in simulation mode, not opening a serial port")
		return nil
	}
	return a.protocol.Open(a.cfg.Port, a.cfg.BaudRate)
}

// Close closes the serial port.
func (a *Adapter) Close() error {
	if a.cfg.SimulationMode {
		return nil
	}
	return a.protocol.Close()
}

// SetArmed updates the armed bit reported in subsequent heartbeats.
func (a *Adapter) SetArmed(armed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed = armed
}

// RunHeartbeat emits a heartbeat at the configured period until ctx is done.
func (a *Adapter) RunHeartbeat(ctx context.Context) {
	if a.cfg.SimulationMode {
		return
	}
	ticker := time.NewTicker(a.cfg.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			armed := a.armed
			a.mu.Unlock()
			if err := a.protocol.SendHeartbeat(armed); err != nil {
				log.WithError(err).Warn("failed to send heartbeat")
			}
		}
	}
}

// Send translates one position command into a SET_POSITION_TARGET_LOCAL_NED
// message and writes it to the link. In simulation mode it is a no-op.
func (a *Adapter) Send(cmd types.PositionCommand) error {
	if a.cfg.SimulationMode {
		log.WithFields(map[string]interface{}{
			"x": cmd.X.Position, "y": cmd.Y.Position, "z": cmd.Z.Position,
		}).Debug("simulated mavlink setpoint")
		return nil
	}

	f := SetpointFields{
		X: cmd.X.Position, Y: cmd.Y.Position, Z: cmd.Z.Position,
		Vx: cmd.X.Velocity, Vy: cmd.Y.Velocity, Vz: cmd.Z.Velocity,
		Afx: cmd.X.Acceleration, Afy: cmd.Y.Acceleration, Afz: cmd.Z.Acceleration,
		Yaw: cmd.Heading.Heading, YawRate: cmd.Heading.Rate,
		UsePosition:     cmd.X.UsePosition && cmd.Y.UsePosition && cmd.Z.UsePosition,
		UseVelocity:     cmd.X.UseVelocity && cmd.Y.UseVelocity && cmd.Z.UseVelocity,
		UseAcceleration: cmd.X.UseAcceleration && cmd.Y.UseAcceleration && cmd.Z.UseAcceleration,
		UseYaw:          cmd.Heading.UseHeading,
		UseYawRate:      cmd.Heading.UseRate,
		TimeBootMs:      uint32(cmd.Stamp.UnixMilli()),
	}

	return a.protocol.SendSetpoint(a.cfg.TargetSystem, a.cfg.TargetComponent, f)
}
