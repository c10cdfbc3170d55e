package mavlink

import "testing"

func TestTypeMask_AllFieldsUsedClearsAllIgnoreBits(t *testing.T) {
	f := SetpointFields{UsePosition: true, UseVelocity: true, UseAcceleration: true, UseYaw: true, UseYawRate: true}
	if mask := typeMask(f); mask != 0 {
		t.Fatalf("expected a zero type mask when every field group is populated, got %#x", mask)
	}
}

func TestTypeMask_UnusedFieldsSetIgnoreBits(t *testing.T) {
	mask := typeMask(SetpointFields{})
	want := uint16(0b0000110111111111)
	if mask != want {
		t.Fatalf("expected all ignore bits set for an empty field set, got %#x want %#x", mask, want)
	}
}

func TestTypeMask_PositionOnlyIgnoresEverythingElse(t *testing.T) {
	mask := typeMask(SetpointFields{UsePosition: true})
	if mask&0b111 != 0 {
		t.Fatalf("expected the position ignore bits to be clear, got %#x", mask)
	}
	if mask&0b111000 == 0 {
		t.Fatalf("expected the velocity ignore bits to be set, got %#x", mask)
	}
}

func TestCrcAccumulate_IsDeterministic(t *testing.T) {
	a := crcAccumulate(0xFFFF, []byte{1, 2, 3, 4})
	b := crcAccumulate(0xFFFF, []byte{1, 2, 3, 4})
	if a != b {
		t.Fatalf("expected identical input to produce identical CRC, got %#x vs %#x", a, b)
	}
	c := crcAccumulate(0xFFFF, []byte{1, 2, 3, 5})
	if a == c {
		t.Fatalf("expected differing input to change the CRC")
	}
}

func TestCrcExtra_KnownMessages(t *testing.T) {
	if crcExtra(msgIDHeartbeat) != 50 {
		t.Fatalf("unexpected heartbeat crc extra byte")
	}
	if crcExtra(msgIDSetPositionTargetLocalNED) != 143 {
		t.Fatalf("unexpected setpoint crc extra byte")
	}
	if crcExtra(9999) != 0 {
		t.Fatalf("expected unknown message IDs to default to a zero crc extra byte")
	}
}

func TestSend_FailsWithoutAnOpenPort(t *testing.T) {
	p := NewProtocol(1, 1)
	if err := p.SendHeartbeat(false); err == nil {
		t.Fatalf("expected sending without an open port to fail")
	}
}

func TestClose_WithoutOpenPortIsANoOp(t *testing.T) {
	p := NewProtocol(1, 1)
	if err := p.Close(); err != nil {
		t.Fatalf("expected closing an unopened protocol to be a no-op, got %v", err)
	}
}
