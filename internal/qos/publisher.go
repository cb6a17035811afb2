// Package qos layers ACK-based retransmission and monotonic ordering
// on top of internal/broker, ported from the original emCore
// messaging/qos_pubsub.hpp's qos_publisher and qos_subscriber.
package qos

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/firmcore/runtime/internal/broker"
	"github.com/firmcore/runtime/internal/config"
	"github.com/firmcore/runtime/internal/corerr"
	"github.com/firmcore/runtime/internal/message"
	"github.com/firmcore/runtime/internal/platform"
)

type pendingEntry struct {
	msg      *message.Envelope
	lastSend uint64
	attempts uint32
}

// Publisher wraps a broker topic with ACK-tracked retransmission,
// ported from qos_publisher.
type Publisher struct {
	mu sync.Mutex

	br      *broker.Broker
	clock   platform.Clock
	topic   uint16
	selfID  uint16
	limit   uint32
	timeout uint64

	sequence uint16
	pending  map[uint16]*pendingEntry

	limiter *rate.Limiter
}

// NewPublisher constructs a Publisher bound to topic, publishing as
// selfID, pacing PumpRetransmit per b.QoSAckTimeoutUS.
func NewPublisher(br *broker.Broker, clock platform.Clock, b config.Budget, topic, selfID uint16) *Publisher {
	interval := time.Duration(b.QoSAckTimeoutUS) * time.Microsecond
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Publisher{
		br:      br,
		clock:   clock,
		topic:   topic,
		selfID:  selfID,
		limit:   b.QoSPendingLimit,
		timeout: b.QoSAckTimeoutUS,
		pending: make(map[uint16]*pendingEntry, b.QoSPendingLimit),
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (p *Publisher) nextSeq() uint16 {
	p.sequence++
	return p.sequence
}

// Publish stamps msg with requires-ack, a sequence number if unset,
// inserts a pending entry, then publishes through the broker.
func (p *Publisher) Publish(msg *message.Envelope) error {
	p.mu.Lock()
	msg.Header.Flags |= message.FlagRequiresAck
	if msg.Header.SequenceNumber == 0 {
		msg.Header.SequenceNumber = p.nextSeq()
	}
	if uint32(len(p.pending)) >= p.limit {
		p.mu.Unlock()
		return corerr.New("qos.Publisher.Publish", corerr.OutOfMemory)
	}
	now := uint64(0)
	if p.clock != nil {
		now = p.clock.NowMicros()
	}
	p.pending[msg.Header.SequenceNumber] = &pendingEntry{msg: msg, lastSend: now, attempts: 1}
	p.mu.Unlock()

	return p.br.Publish(p.topic, msg, p.selfID)
}

// PumpRetransmit resends any pending entry whose last send exceeds the
// configured ACK timeout, paced by an internal rate limiter so a
// caller invoking it from a tight loop cannot spin the CPU.
func (p *Publisher) PumpRetransmit() {
	if !p.limiter.Allow() {
		return
	}

	now := uint64(0)
	if p.clock != nil {
		now = p.clock.NowMicros()
	}

	p.mu.Lock()
	due := make([]*pendingEntry, 0, len(p.pending))
	for _, e := range p.pending {
		if now-e.lastSend >= p.timeout {
			due = append(due, e)
		}
	}
	p.mu.Unlock()

	for _, e := range due {
		_ = p.br.Publish(p.topic, e.msg, p.selfID)
		p.mu.Lock()
		e.lastSend = now
		e.attempts++
		p.mu.Unlock()
	}
}

// OnAck removes the pending entry matching ack's sequence number.
func (p *Publisher) OnAck(ack message.Ack) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, ack.SequenceNumber)
}

// TryHandleAckMessage decodes an Ack payload off msg (when it matches
// the configured ack topic/size) and applies it via OnAck.
func (p *Publisher) TryHandleAckMessage(msg *message.Envelope) bool {
	ack, ok := message.DecodeAck(msg.Data())
	if !ok {
		return false
	}
	p.OnAck(ack)
	return true
}

// PendingCount reports the number of unacknowledged in-flight
// messages.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// RunPump blocks, invoking PumpRetransmit on the limiter's cadence
// until ctx is cancelled. Not present in the original (which pumps
// once per scheduler tick); offered as a convenience for a hosted Go
// caller that wants a background goroutine instead of driving the
// pump itself.
func (p *Publisher) RunPump(ctx context.Context) {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		p.PumpRetransmit()
	}
}
