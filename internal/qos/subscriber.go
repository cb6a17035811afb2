package qos

import (
	"sync"

	"github.com/firmcore/runtime/internal/broker"
	"github.com/firmcore/runtime/internal/corerr"
	"github.com/firmcore/runtime/internal/message"
)

// Subscriber wraps a broker receive loop with monotonic per-(sender,
// topic) sequence enforcement and automatic ACK replies, ported from
// qos_subscriber.
type Subscriber struct {
	mu sync.Mutex

	br      *broker.Broker
	selfID  uint16
	ackTopic uint16

	lastSeq map[uint32]uint16
}

// NewSubscriber constructs a Subscriber receiving as selfID, sending
// ACKs on ackTopic.
func NewSubscriber(br *broker.Broker, selfID, ackTopic uint16) *Subscriber {
	return &Subscriber{br: br, selfID: selfID, ackTopic: ackTopic, lastSeq: make(map[uint32]uint16)}
}

func trackingKey(senderID, topic uint16) uint32 {
	return uint32(senderID)<<16 | uint32(topic)
}

// seqIsStaleOrDuplicate reports whether seq is not strictly newer than
// the last sequence seen for key, using signed-wraparound-safe
// comparison exactly as the original's
// `static_cast<i32>(seq) - static_cast<i32>(last) <= 0`.
func seqIsStaleOrDuplicate(seq, last uint16) bool {
	return int32(seq)-int32(last) <= 0
}

// Receive performs a non-blocking receive via the underlying broker,
// suppressing stale/duplicate deliveries (by sequence number) while
// still ACKing them, and auto-ACKing fresh messages carrying
// RequiresAck.
func (s *Subscriber) Receive() (*message.Envelope, error) {
	msg, err := s.br.TryReceive(s.selfID)
	if err != nil {
		return nil, err
	}

	key := trackingKey(msg.Header.SenderID, msg.Header.Type)

	s.mu.Lock()
	last, seen := s.lastSeq[key]
	stale := seen && seqIsStaleOrDuplicate(msg.Header.SequenceNumber, last)
	if !stale {
		s.lastSeq[key] = msg.Header.SequenceNumber
	}
	s.mu.Unlock()

	if msg.Header.Flags.Has(message.FlagRequiresAck) {
		s.sendAck(msg)
	}

	if stale {
		return nil, corerr.New("qos.Subscriber.Receive", corerr.NotFound)
	}
	return msg, nil
}

func (s *Subscriber) sendAck(msg *message.Envelope) {
	ack := message.Ack{SequenceNumber: msg.Header.SequenceNumber, SenderID: s.selfID, Success: true}
	reply := message.NewEnvelope(message.SmallPayloadSize)
	reply.SetData(message.EncodeAck(ack))
	_ = s.br.Publish(s.ackTopic, reply, s.selfID)
}
