// Package message defines the wire-level message envelope spec.md's
// broker and QoS layers exchange, ported from the original emCore
// messaging/message_types.hpp: a fixed header plus one of three payload
// size classes, priority levels, and flag bits.
package message

// Priority mirrors message_priority: low, normal, high, critical.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Flags mirrors message_flags as an OR-able bitmask.
type Flags uint8

const (
	FlagNone        Flags = 0
	FlagRequiresAck Flags = 1 << iota
	FlagBroadcast
	FlagUrgent
	FlagPersistent
)

// Has reports whether flags contains check.
func (f Flags) Has(check Flags) bool { return f&check == check }

// InvalidTaskID mirrors the original's invalid_task_id sentinel and
// 0xFFFF broadcast receiver convention.
const (
	InvalidTaskID  uint16 = 0xFFFF
	BroadcastTopic uint16 = 0xFFFF
)

// Header is the fixed-size message header, always present ahead of the
// variable-size-class payload.
type Header struct {
	Type           uint16
	SenderID       uint16
	ReceiverID     uint16
	Priority       Priority
	Flags          Flags
	TimestampUS    uint64
	PayloadSize    uint16
	SequenceNumber uint16
}

// Payload size classes, ported from small/medium/large_payload_size.
const (
	SmallPayloadSize  = 16
	MediumPayloadSize = 64
	LargePayloadSize  = 256
)

// Envelope is a message_envelope<MaxPayloadSize>: a header plus a
// fixed-capacity payload buffer. Go has no template non-type parameter,
// so capacity is carried as a runtime cap via NewEnvelope instead of a
// compile-time size; Payload is always pre-allocated to that cap.
type Envelope struct {
	Header  Header
	Payload []byte // len == capacity; valid bytes are Payload[:Header.PayloadSize]
}

// NewEnvelope allocates an Envelope with a payload buffer of capacity
// bytes.
func NewEnvelope(capacity int) *Envelope {
	return &Envelope{Payload: make([]byte, capacity)}
}

// HasFlag reports whether the envelope's header flags contain flag.
func (e *Envelope) HasFlag(flag Flags) bool { return e.Header.Flags.Has(flag) }

// Data returns the valid payload slice.
func (e *Envelope) Data() []byte { return e.Payload[:e.Header.PayloadSize] }

// SetData copies src into Payload and updates PayloadSize. Returns
// false if src does not fit in the envelope's capacity.
func (e *Envelope) SetData(src []byte) bool {
	if len(src) > len(e.Payload) {
		return false
	}
	copy(e.Payload, src)
	e.Header.PayloadSize = uint16(len(src))
	return true
}

// Ack mirrors message_ack: the small fixed-size acknowledgment body QoS
// carries inside a small Envelope's payload.
type Ack struct {
	SequenceNumber uint16
	SenderID       uint16
	Success        bool
	ErrorCode      uint8
}

// EncodeAck serializes ack into a fixed 6-byte little-endian wire form
// matching the original's raw byte-for-byte struct copy into a
// small_message payload.
func EncodeAck(ack Ack) []byte {
	b := make([]byte, 6)
	b[0] = byte(ack.SequenceNumber & 0xFF)
	b[1] = byte(ack.SequenceNumber >> 8)
	b[2] = byte(ack.SenderID & 0xFF)
	b[3] = byte(ack.SenderID >> 8)
	if ack.Success {
		b[4] = 1
	}
	b[5] = ack.ErrorCode
	return b
}

// DecodeAck parses the wire form EncodeAck produces.
func DecodeAck(b []byte) (Ack, bool) {
	if len(b) < 6 {
		return Ack{}, false
	}
	return Ack{
		SequenceNumber: uint16(b[0]) | uint16(b[1])<<8,
		SenderID:       uint16(b[2]) | uint16(b[3])<<8,
		Success:        b[4] != 0,
		ErrorCode:      b[5],
	}, true
}
