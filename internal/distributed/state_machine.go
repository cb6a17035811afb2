// Package distributed implements a propose/ack/commit majority-commit
// state machine over internal/broker, ported from the original emCore
// messaging/distributed_state.hpp's distributed_state template. This
// is single-process coordination over the in-memory broker, never a
// network protocol — see the module's Non-goals.
package distributed

import (
	"sync"

	"github.com/google/uuid"

	"github.com/firmcore/runtime/internal/broker"
	"github.com/firmcore/runtime/internal/corerr"
	"github.com/firmcore/runtime/internal/message"
)

type pendingInfo[StateT any] struct {
	state StateT
	acks  uint16
}

// MessageKind classifies an incoming coordination message, mirroring
// the original's type-tag dispatch in process_message.
type MessageKind uint8

const (
	MessagePropose MessageKind = iota
	MessageAck
	MessageCommit
)

// GuardFunc decides whether this node accepts a proposed state
// transition from current to proposed.
type GuardFunc[StateT any] func(current, proposed StateT) bool

// Codec serializes/deserializes StateT into a message payload. Go has
// no generic reflection-free byte-for-byte struct serialization (the
// original reinterpret_casts StateT's raw bytes); the caller supplies
// this pair instead, the same generalization fields.go makes for the
// protocol layer's offsetof-based field walking.
type Codec[StateT any] struct {
	Encode func(StateT) []byte
	Decode func([]byte) (StateT, bool)
}

// StateMachine is a distributed_state instance: propose a new value,
// collect acks from peers until a majority accepts, then commit.
// InstanceID is new in this port — purely a diagnostics/log
// correlation tag, playing no role in the algorithm.
type StateMachine[StateT any] struct {
	mu sync.Mutex

	InstanceID uuid.UUID

	br         *broker.Broker
	selfTaskID uint16

	proposeTopic, ackTopic, commitTopic uint16
	maxPeers                            uint32
	maxOutstanding                      uint32

	codec Codec[StateT]

	state    StateT
	pending  map[uint16]*pendingInfo[StateT]
	localSeq uint32
}

// New constructs a StateMachine bound to br, publishing/listening on
// the given topic triple, with capacity for maxOutstanding concurrent
// proposals and requiring a majority of maxPeers acks to commit.
func New[StateT any](br *broker.Broker, selfTaskID uint16, proposeTopic, ackTopic, commitTopic uint16, maxPeers, maxOutstanding uint32, codec Codec[StateT], initial StateT) *StateMachine[StateT] {
	return &StateMachine[StateT]{
		InstanceID:   uuid.New(),
		br:           br,
		selfTaskID:   selfTaskID,
		proposeTopic: proposeTopic,
		ackTopic:     ackTopic,
		commitTopic:  commitTopic,
		maxPeers:       maxPeers,
		maxOutstanding: maxOutstanding,
		codec:          codec,
		state:        initial,
		pending:      make(map[uint16]*pendingInfo[StateT], maxOutstanding),
		localSeq:     1,
	}
}

type wireProposal struct {
	seq  uint16
	from uint16
	body []byte
}

func encodeProposal(seq, from uint16, body []byte) []byte {
	b := make([]byte, 4+len(body))
	b[0] = byte(seq)
	b[1] = byte(seq >> 8)
	b[2] = byte(from)
	b[3] = byte(from >> 8)
	copy(b[4:], body)
	return b
}

func decodeProposal(payload []byte) (wireProposal, bool) {
	if len(payload) < 4 {
		return wireProposal{}, false
	}
	return wireProposal{
		seq:  uint16(payload[0]) | uint16(payload[1])<<8,
		from: uint16(payload[2]) | uint16(payload[3])<<8,
		body: payload[4:],
	}, true
}

func encodeAck(seq, from uint16, accept bool) []byte {
	b := make([]byte, 5)
	b[0] = byte(seq)
	b[1] = byte(seq >> 8)
	b[2] = byte(from)
	b[3] = byte(from >> 8)
	if accept {
		b[4] = 1
	}
	return b
}

type wireAck struct {
	seq    uint16
	from   uint16
	accept bool
}

func decodeAck(payload []byte) (wireAck, bool) {
	if len(payload) < 5 {
		return wireAck{}, false
	}
	return wireAck{
		seq:    uint16(payload[0]) | uint16(payload[1])<<8,
		from:   uint16(payload[2]) | uint16(payload[3])<<8,
		accept: payload[4] != 0,
	}, true
}

func encodeCommit(seq uint16, body []byte) []byte {
	b := make([]byte, 2+len(body))
	b[0] = byte(seq)
	b[1] = byte(seq >> 8)
	copy(b[2:], body)
	return b
}

func decodeCommit(payload []byte) (seq uint16, body []byte, ok bool) {
	if len(payload) < 2 {
		return 0, nil, false
	}
	return uint16(payload[0]) | uint16(payload[1])<<8, payload[2:], true
}

func (s *StateMachine[StateT]) publish(topic uint16, receiver, seq uint16, payload []byte) error {
	msg := message.NewEnvelope(message.SmallPayloadSize)
	if !msg.SetData(payload) {
		return corerr.New("distributed.StateMachine.publish", corerr.InvalidParameter)
	}
	msg.Header.ReceiverID = receiver
	msg.Header.SequenceNumber = seq
	return s.br.Publish(topic, msg, s.selfTaskID)
}

// Propose starts a new proposal for newState, returning its sequence
// number. Returns corerr.OutOfMemory if the pending table is full,
// mirroring the original returning sequence 0.
func (s *StateMachine[StateT]) Propose(newState StateT) (uint16, error) {
	s.mu.Lock()
	if s.maxOutstanding > 0 && uint32(len(s.pending)) >= s.maxOutstanding {
		s.mu.Unlock()
		return 0, corerr.New("distributed.StateMachine.Propose", corerr.OutOfMemory)
	}
	seq := uint16(s.localSeq)
	s.localSeq++
	s.pending[seq] = &pendingInfo[StateT]{state: newState, acks: 1}
	s.mu.Unlock()

	payload := encodeProposal(seq, s.selfTaskID, s.codec.Encode(newState))
	if err := s.publish(s.proposeTopic, message.BroadcastTopic, seq, payload); err != nil {
		return 0, err
	}
	return seq, nil
}

// ProcessMessage routes an incoming coordination message to the
// appropriate internal handler based on its topic (Header.Type).
func (s *StateMachine[StateT]) ProcessMessage(msg *message.Envelope, guard GuardFunc[StateT]) {
	switch msg.Header.Type {
	case s.proposeTopic:
		s.onPropose(msg, guard)
	case s.ackTopic:
		s.onAck(msg)
	case s.commitTopic:
		s.onCommit(msg)
	}
}

func (s *StateMachine[StateT]) onPropose(msg *message.Envelope, guard GuardFunc[StateT]) {
	wp, ok := decodeProposal(msg.Data())
	if !ok || wp.from == s.selfTaskID {
		return
	}
	proposed, ok := s.codec.Decode(wp.body)
	if !ok {
		return
	}

	s.mu.Lock()
	current := s.state
	s.mu.Unlock()

	if !guard(current, proposed) {
		return
	}
	payload := encodeAck(wp.seq, s.selfTaskID, true)
	_ = s.publish(s.ackTopic, wp.from, wp.seq, payload)
}

func (s *StateMachine[StateT]) onAck(msg *message.Envelope) {
	wa, ok := decodeAck(msg.Data())
	if !ok || !wa.accept {
		return
	}

	s.mu.Lock()
	info, exists := s.pending[wa.seq]
	if !exists {
		s.mu.Unlock()
		return
	}
	info.acks++
	majority := uint16(s.maxPeers/2 + 1)
	if info.acks < majority {
		s.mu.Unlock()
		return
	}
	s.state = info.state
	delete(s.pending, wa.seq)
	committed := info.state
	s.mu.Unlock()

	payload := encodeCommit(wa.seq, s.codec.Encode(committed))
	_ = s.publish(s.commitTopic, message.BroadcastTopic, wa.seq, payload)
}

func (s *StateMachine[StateT]) onCommit(msg *message.Envelope) {
	_, body, ok := decodeCommit(msg.Data())
	if !ok {
		return
	}
	committed, ok := s.codec.Decode(body)
	if !ok {
		return
	}
	s.mu.Lock()
	s.state = committed
	s.mu.Unlock()
}

// Current returns the state machine's locally committed state.
func (s *StateMachine[StateT]) Current() StateT {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
