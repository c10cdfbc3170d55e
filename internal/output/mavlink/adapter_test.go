package mavlink

import (
	"testing"
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

func TestNew_AppliesDefaults(t *testing.T) {
	a := New(Config{})
	if a.cfg.HeartbeatPeriod != time.Second {
		t.Fatalf("expected default heartbeat period of 1s, got %v", a.cfg.HeartbeatPeriod)
	}
	if a.cfg.TargetSystem != 1 || a.cfg.TargetComponent != 1 {
		t.Fatalf("expected default target system/component of 1, got %d/%d", a.cfg.TargetSystem, a.cfg.TargetComponent)
	}
}

func TestOpenClose_SimulationModeIsANoOp(t *testing.T) {
	a := New(Config{SimulationMode: true})
	if err := a.Open(); err != nil {
		t.Fatalf("unexpected error opening in simulation mode: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error closing in simulation mode: %v", err)
	}
}

func TestSend_SimulationModeSucceedsWithoutAnOpenPort(t *testing.T) {
	a := New(Config{SimulationMode: true})
	cmd := types.PositionCommand{
		X: types.AxisCommand{Position: 1, UsePosition: true},
		Y: types.AxisCommand{Position: 2, UsePosition: true},
		Z: types.AxisCommand{Position: 3, UsePosition: true},
		Stamp: time.Now(),
	}
	if err := a.Send(cmd); err != nil {
		t.Fatalf("expected simulated send to succeed, got %v", err)
	}
}

func TestSend_NonSimulationFailsWithoutAnOpenPort(t *testing.T) {
	a := New(Config{})
	cmd := types.PositionCommand{Stamp: time.Now()}
	if err := a.Send(cmd); err == nil {
		t.Fatalf("expected send to fail when the serial port was never opened")
	}
}

func TestSetArmed_UpdatesState(t *testing.T) {
	a := New(Config{SimulationMode: true})
	a.SetArmed(true)
	a.mu.Lock()
	armed := a.armed
	a.mu.Unlock()
	if !armed {
		t.Fatalf("expected SetArmed(true) to update the internal armed flag")
	}
}
