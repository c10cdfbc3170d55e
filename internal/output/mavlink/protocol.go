// Package mavlink is a thin MAVLink v2 serial adapter that turns the
// core's per-tick PositionCommand into SET_POSITION_TARGET_LOCAL_NED
// messages for a downstream flight controller (SPEC_FULL.md's optional
// output adapter).
package mavlink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"go.bug.st/serial"
)

// Protocol implements just enough of MAVLink v2 framing to push setpoints
// and a heartbeat; it does not attempt to parse inbound telemetry.
type Protocol struct {
	port     serial.Port
	mu       sync.Mutex
	sequence uint8
	systemID uint8
	compID   uint8
}

const v2Magic = 0xFD

const (
	msgIDHeartbeat                 = 0
	msgIDSetPositionTargetLocalNED = 84
)

const (
	frameLocalNED = 1
)

// NewProtocol creates a protocol handler addressed as (systemID, compID).
func NewProtocol(systemID, compID uint8) *Protocol {
	return &Protocol{systemID: systemID, compID: compID}
}

// Open opens the serial port the flight controller is attached to.
func (p *Protocol) Open(portName string, baudRate int) error {
	mode := &serial.Mode{BaudRate: baudRate, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", portName, err)
	}
	p.mu.Lock()
	p.port = port
	p.mu.Unlock()
	return nil
}

// Close closes the serial port, if open.
func (p *Protocol) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil
	}
	return p.port.Close()
}

// SendHeartbeat emits a MAV_STATE_ACTIVE heartbeat for a component that is
// not an autopilot (MAV_AUTOPILOT_INVALID).
func (p *Protocol) SendHeartbeat(armed bool) error {
	payload := make([]byte, 9)
	payload[0] = 8 // MAV_AUTOPILOT_INVALID
	if armed {
		payload[1] = 0x80 // MAV_MODE_FLAG_SAFETY_ARMED
	}
	binary.LittleEndian.PutUint32(payload[2:6], 0)
	payload[6] = 4 // MAV_STATE_ACTIVE
	payload[7] = 3
	payload[8] = 0
	return p.send(msgIDHeartbeat, payload)
}

// SetpointFields carries the subset of SET_POSITION_TARGET_LOCAL_NED the
// tracker actually populates; fields not "use"-flagged are sent as zero
// with the corresponding type-mask bit set so the autopilot ignores them.
type SetpointFields struct {
	X, Y, Z         float64
	Vx, Vy, Vz      float64
	Afx, Afy, Afz   float64
	Yaw, YawRate    float64
	UsePosition     bool
	UseVelocity     bool
	UseAcceleration bool
	UseYaw          bool
	UseYawRate      bool
	TimeBootMs      uint32
}

// SendSetpoint emits one SET_POSITION_TARGET_LOCAL_NED message.
func (p *Protocol) SendSetpoint(targetSystem, targetComponent uint8, f SetpointFields) error {
	payload := make([]byte, 51)
	binary.LittleEndian.PutUint32(payload[0:4], f.TimeBootMs)
	payload[4] = targetSystem
	payload[5] = targetComponent
	payload[6] = frameLocalNED
	binary.LittleEndian.PutUint16(payload[7:9], typeMask(f))

	values := []float64{f.X, f.Y, f.Z, f.Vx, f.Vy, f.Vz, f.Afx, f.Afy, f.Afz, f.Yaw, f.YawRate}
	offset := 9
	for _, v := range values {
		binary.LittleEndian.PutUint32(payload[offset:offset+4], math.Float32bits(float32(v)))
		offset += 4
	}

	return p.send(msgIDSetPositionTargetLocalNED, payload)
}

// typeMask sets an "ignore" bit for every field group the caller did not
// populate, per the PX4/ArduPilot SET_POSITION_TARGET_LOCAL_NED convention
// (bit 0-2 position, 3-5 velocity, 6-8 acceleration, 9 force, 10 yaw, 11 yaw rate).
func typeMask(f SetpointFields) uint16 {
	var mask uint16
	if !f.UsePosition {
		mask |= 0b0000000000000111
	}
	if !f.UseVelocity {
		mask |= 0b0000000000111000
	}
	if !f.UseAcceleration {
		mask |= 0b0000000111000000
	}
	if !f.UseYaw {
		mask |= 0b0000010000000000
	}
	if !f.UseYawRate {
		mask |= 0b0000100000000000
	}
	return mask
}

func (p *Protocol) send(messageID uint32, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return fmt.Errorf("serial port not open")
	}

	seq := p.sequence
	p.sequence++

	buf := new(bytes.Buffer)
	buf.WriteByte(v2Magic)
	buf.WriteByte(uint8(len(payload)))
	buf.WriteByte(0) // incompat flags
	buf.WriteByte(0) // compat flags
	buf.WriteByte(seq)
	buf.WriteByte(p.systemID)
	buf.WriteByte(p.compID)

	idBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(idBytes, messageID)
	buf.Write(idBytes[:3])
	buf.Write(payload)

	crc := crcAccumulate(0xFFFF, []byte{uint8(len(payload)), 0, 0, seq, p.systemID, p.compID})
	crc = crcAccumulate(crc, idBytes[:3])
	crc = crcAccumulate(crc, payload)
	crc = crcAccumulate(crc, []byte{crcExtra(messageID)})
	buf.WriteByte(uint8(crc & 0xFF))
	buf.WriteByte(uint8((crc >> 8) & 0xFF))

	_, err := p.port.Write(buf.Bytes())
	return err
}

func crcExtra(messageID uint32) uint8 {
	switch messageID {
	case msgIDHeartbeat:
		return 50
	case msgIDSetPositionTargetLocalNED:
		return 143
	default:
		return 0
	}
}

func crcAccumulate(crc uint16, data []byte) uint16 {
	for _, b := range data {
		tmp := uint8(crc) ^ b
		crc = (crc >> 8) ^ crcTable[tmp]
	}
	return crc
}

var crcTable = [256]uint16{
	0x0000, 0x1021, 0x2042, 0x3063, 0x4084, 0x50a5, 0x60c6, 0x70e7,
	0x8108, 0x9129, 0xa14a, 0xb16b, 0xc18c, 0xd1ad, 0xe1ce, 0xf1ef,
	0x1231, 0x0210, 0x3273, 0x2252, 0x52b5, 0x4294, 0x72f7, 0x62d6,
	0x9339, 0x8318, 0xb37b, 0xa35a, 0xd3bd, 0xc39c, 0xf3ff, 0xe3de,
	0x2462, 0x3443, 0x0420, 0x1401, 0x64e6, 0x74c7, 0x44a4, 0x5485,
	0xa56a, 0xb54b, 0x8528, 0x9509, 0xe5ee, 0xf5cf, 0xc5ac, 0xd58d,
	0x3653, 0x2672, 0x1611, 0x0630, 0x76d7, 0x66f6, 0x5695, 0x46b4,
	0xb75b, 0xa77a, 0x9719, 0x8738, 0xf7df, 0xe7fe, 0xd79d, 0xc7bc,
	0x48c4, 0x58e5, 0x6886, 0x78a7, 0x0840, 0x1861, 0x2802, 0x3823,
	0xc9cc, 0xd9ed, 0xe98e, 0xf9af, 0x8948, 0x9969, 0xa90a, 0xb92b,
	0x5af5, 0x4ad4, 0x7ab7, 0x6a96, 0x1a71, 0x0a50, 0x3a33, 0x2a12,
	0xdbfd, 0xcbdc, 0xfbbf, 0xeb9e, 0x9b79, 0x8b58, 0xbb3b, 0xab1a,
	0x6ca6, 0x7c87, 0x4ce4, 0x5cc5, 0x2c22, 0x3c03, 0x0c60, 0x1c41,
	0xedae, 0xfd8f, 0xcdec, 0xddcd, 0xad2a, 0xbd0b, 0x8d68, 0x9d49,
	0x7e97, 0x6eb6, 0x5ed5, 0x4ef4, 0x3e13, 0x2e32, 0x1e51, 0x0e70,
	0xff9f, 0xefbe, 0xdfdd, 0xcffc, 0xbf1b, 0xaf3a, 0x9f59, 0x8f78,
	0x9188, 0x81a9, 0xb1ca, 0xa1eb, 0xd10c, 0xc12d, 0xf14e, 0xe16f,
	0x1080, 0x00a1, 0x30c2, 0x20e3, 0x5004, 0x4025, 0x7046, 0x6067,
	0x83b9, 0x9398, 0xa3fb, 0xb3da, 0xc33d, 0xd31c, 0xe37f, 0xf35e,
	0x02b1, 0x1290, 0x22f3, 0x32d2, 0x4235, 0x5214, 0x6277, 0x7256,
	0xb5ea, 0xa5cb, 0x95a8, 0x8589, 0xf56e, 0xe54f, 0xd52c, 0xc50d,
	0x34e2, 0x24c3, 0x14a0, 0x0481, 0x7466, 0x6447, 0x5424, 0x4405,
	0xa7db, 0xb7fa, 0x8799, 0x97b8, 0xe75f, 0xf77e, 0xc71d, 0xd73c,
	0x26d3, 0x36f2, 0x0691, 0x16b0, 0x6657, 0x7676, 0x4615, 0x5634,
	0xd94c, 0xc96d, 0xf90e, 0xe92f, 0x99c8, 0x89e9, 0xb98a, 0xa9ab,
	0x5844, 0x4865, 0x7806, 0x6827, 0x18c0, 0x08e1, 0x3882, 0x28a3,
	0xcb7d, 0xdb5c, 0xeb3f, 0xfb1e, 0x8bf9, 0x9bd8, 0xabbb, 0xbb9a,
	0x4a75, 0x5a54, 0x6a37, 0x7a16, 0x0af1, 0x1ad0, 0x2ab3, 0x3a92,
	0xfd2e, 0xed0f, 0xdd6c, 0xcd4d, 0xbdaa, 0xad8b, 0x9de8, 0x8dc9,
	0x7c26, 0x6c07, 0x5c64, 0x4c45, 0x3ca2, 0x2c83, 0x1ce0, 0x0cc1,
	0xef1f, 0xff3e, 0xcf5d, 0xdf7c, 0xaf9b, 0xbfba, 0x8fd9, 0x9ff8,
	0x6e17, 0x7e36, 0x4e55, 0x5e74, 0x2e93, 0x3eb2, 0x0ed1, 0x1ef0,
}
