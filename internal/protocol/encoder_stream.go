package protocol

import "github.com/firmcore/runtime/internal/checksum"

// encodeState mirrors encode_state: ENCODE_SYNC .. ENCODE_COMPLETE.
type encodeState uint8

const (
	encodeSync encodeState = iota
	encodeOpcode
	encodeLengthHigh
	encodeLengthLow
	encodePayload
	encodeChecksumHigh
	encodeChecksumLow
	encodeComplete
)

// StreamEncoder emits one packet byte at a time via Step, the Go port
// of encoder.hpp's start_encode/encode_step pair, for callers that want
// to pace output (e.g. a slow UART). It wraps a payload (such as one
// built by EncodeCommand, which adds no framing) in the full
// sync/opcode/length/checksum frame.
type StreamEncoder struct {
	cfg ParserConfig

	state     encodeState
	opcode    uint8
	payload   []byte
	syncIdx   int
	byteIdx   int
	acc       checksum.Accumulator
}

// NewStreamEncoder constructs a StreamEncoder with the given framing
// config.
func NewStreamEncoder(cfg ParserConfig) *StreamEncoder {
	return &StreamEncoder{cfg: cfg}
}

// Start begins encoding a packet with the given opcode and pre-built
// payload bytes (the caller uses LayoutTable.EncodeCommand or its own
// serialization to build payload).
func (e *StreamEncoder) Start(opcode uint8, payload []byte) {
	e.opcode = opcode
	e.payload = payload
	e.state = encodeSync
	e.syncIdx = 0
	e.byteIdx = 0
	e.acc.Reset()
}

// Step emits the next byte. Returns false once the frame is complete.
func (e *StreamEncoder) Step() (b byte, ok bool) {
	switch e.state {
	case encodeSync:
		if e.syncIdx < len(e.cfg.Sync) {
			b = e.cfg.Sync[e.syncIdx]
			e.syncIdx++
			return b, true
		}
		e.state = encodeOpcode
		fallthrough
	case encodeOpcode:
		b = e.opcode
		e.acc.Add(b)
		if e.cfg.Length16Bit {
			e.state = encodeLengthHigh
		} else {
			e.state = encodeLengthLow
		}
		return b, true
	case encodeLengthHigh:
		b = byte(len(e.payload) >> 8)
		e.acc.Add(b)
		e.state = encodeLengthLow
		return b, true
	case encodeLengthLow:
		b = byte(len(e.payload) & 0xFF)
		e.acc.Add(b)
		e.state = encodePayload
		e.byteIdx = 0
		return b, true
	case encodePayload:
		if e.byteIdx < len(e.payload) {
			b = e.payload[e.byteIdx]
			e.acc.Add(b)
			e.byteIdx++
			return b, true
		}
		e.state = encodeChecksumHigh
		fallthrough
	case encodeChecksumHigh:
		b = byte(e.acc.Value() >> 8)
		e.state = encodeChecksumLow
		return b, true
	case encodeChecksumLow:
		b = byte(e.acc.Value() & 0xFF)
		e.state = encodeComplete
		return b, true
	default:
		return 0, false
	}
}

// Done reports whether the frame has been fully emitted.
func (e *StreamEncoder) Done() bool { return e.state == encodeComplete }
