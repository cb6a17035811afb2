// Package broker implements the per-task mailbox / per-topic pub-sub
// message broker, ported field-for-field from the original emCore
// messaging/message_broker.hpp: each task_mailbox shards its queued
// messages per topic into a high-priority and normal-priority ring,
// urgent/high-priority sends prefer the high shard, overflow first
// tries drop-oldest across every topic's normal-then-high queues
// before rejecting, and notification only fires on the
// empty-to-nonempty transition when notify_on_empty_only is set.
package broker

import (
	"sync"

	"github.com/firmcore/runtime/internal/config"
	"github.com/firmcore/runtime/internal/corerr"
	"github.com/firmcore/runtime/internal/message"
	"github.com/firmcore/runtime/internal/platform"
)

type topicQueueEntry struct {
	topicID uint16
	high    []*message.Envelope
	normal  []*message.Envelope
}

func newTopicQueueEntry(topicID uint16, highCap, normalCap uint32) *topicQueueEntry {
	return &topicQueueEntry{
		topicID: topicID,
		high:    make([]*message.Envelope, 0, highCap),
		normal:  make([]*message.Envelope, 0, normalCap),
	}
}

func (t *topicQueueEntry) highFull(cap uint32) bool   { return uint32(len(t.high)) >= cap }
func (t *topicQueueEntry) normalFull(cap uint32) bool { return uint32(len(t.normal)) >= cap }

func popFront(q []*message.Envelope) ([]*message.Envelope, *message.Envelope, bool) {
	if len(q) == 0 {
		return q, nil, false
	}
	msg := q[0]
	return q[1:], msg, true
}

// Mailbox is one task's message queue, sharded per topic and per
// priority, ported from task_mailbox.
type Mailbox struct {
	mu sync.Mutex

	taskID  uint16
	handle  platform.TaskHandle
	tasks   platform.Tasks
	budget  config.Budget
	highCap uint32
	normCap uint32

	depthLimit         uint32
	droppedOverflow    uint32
	receivedCount      uint32
	overflowDropOldest bool
	notifyOnEmptyOnly  bool

	topics []*topicQueueEntry
}

func newMailbox(taskID uint16, handle platform.TaskHandle, tasks platform.Tasks, b config.Budget) *Mailbox {
	return &Mailbox{
		taskID:             taskID,
		handle:             handle,
		tasks:              tasks,
		budget:             b,
		highCap:            b.HighShardCapacity(),
		normCap:            b.NormalShardCapacity(),
		depthLimit:         b.MsgQueueCapacity,
		overflowDropOldest: true,
		notifyOnEmptyOnly:  true,
	}
}

func (m *Mailbox) totalSize() int {
	total := 0
	for _, tq := range m.topics {
		total += len(tq.high) + len(tq.normal)
	}
	return total
}

func (m *Mailbox) isEmptyLocked() bool {
	for _, tq := range m.topics {
		if len(tq.high) > 0 || len(tq.normal) > 0 {
			return false
		}
	}
	return true
}

func (m *Mailbox) findTopic(topicID uint16) *topicQueueEntry {
	for _, tq := range m.topics {
		if tq.topicID == topicID {
			return tq
		}
	}
	return nil
}

func (m *Mailbox) getOrCreateTopic(topicID uint16) (*topicQueueEntry, bool) {
	if tq := m.findTopic(topicID); tq != nil {
		return tq, true
	}
	if uint32(len(m.topics)) >= m.budget.MsgTopicQueuesPerMailbox {
		return nil, false
	}
	tq := newTopicQueueEntry(topicID, m.highCap, m.normCap)
	m.topics = append(m.topics, tq)
	return tq, true
}

// dropOneAny drops one message, preferring normal queues over high
// queues, across every topic — matching drop_one_any exactly.
func (m *Mailbox) dropOneAny() bool {
	for _, tq := range m.topics {
		if len(tq.normal) > 0 {
			tq.normal, _, _ = popFront(tq.normal)
			return true
		}
	}
	for _, tq := range m.topics {
		if len(tq.high) > 0 {
			tq.high, _, _ = popFront(tq.high)
			return true
		}
	}
	return false
}

// Send enqueues msg, applying urgency routing and overflow policy, then
// notifies the mailbox's task outside the critical section.
func (m *Mailbox) Send(msg *message.Envelope) error {
	isUrgent := msg.Header.Flags.Has(message.FlagUrgent) || msg.Header.Priority >= message.PriorityHigh

	m.mu.Lock()

	wasEmpty := m.isEmptyLocked()
	depthReached := uint32(m.totalSize()) >= m.depthLimit

	tq, ok := m.getOrCreateTopic(msg.Header.Type)
	if !ok {
		m.mu.Unlock()
		return corerr.New("broker.Mailbox.Send", corerr.OutOfMemory)
	}

	targetFull := tq.highFull(m.highCap)
	if !isUrgent {
		targetFull = tq.normalFull(m.normCap)
	}
	if targetFull || depthReached {
		isPersistent := msg.Header.Flags.Has(message.FlagPersistent)
		if !isPersistent && m.overflowDropOldest && m.dropOneAny() {
			m.droppedOverflow++
		} else {
			m.mu.Unlock()
			return corerr.New("broker.Mailbox.Send", corerr.OutOfMemory)
		}
	}

	switch {
	case isUrgent && !tq.highFull(m.highCap):
		tq.high = append(tq.high, msg)
	case isUrgent && !tq.normalFull(m.normCap):
		tq.normal = append(tq.normal, msg)
	case !isUrgent && !tq.normalFull(m.normCap):
		tq.normal = append(tq.normal, msg)
	case !isUrgent && !tq.highFull(m.highCap):
		tq.high = append(tq.high, msg)
	default:
		m.mu.Unlock()
		return corerr.New("broker.Mailbox.Send", corerr.OutOfMemory)
	}

	shouldNotify := wasEmpty
	if !m.notifyOnEmptyOnly {
		shouldNotify = true
	}
	m.mu.Unlock()

	if shouldNotify && m.handle != nil && m.tasks != nil {
		m.tasks.Notify(m.handle, 0x01)
	}
	return nil
}

// Receive drains high-priority queues across every topic first, then
// normal, returning corerr.NotFound if the mailbox is empty.
func (m *Mailbox) Receive() (*message.Envelope, error) {
	m.mu.Lock()
	if m.isEmptyLocked() {
		m.mu.Unlock()
		return nil, corerr.New("broker.Mailbox.Receive", corerr.NotFound)
	}
	for _, tq := range m.topics {
		if len(tq.high) > 0 {
			var msg *message.Envelope
			tq.high, msg, _ = popFront(tq.high)
			m.receivedCount++
			nowEmpty := m.isEmptyLocked()
			m.mu.Unlock()
			if nowEmpty && m.handle != nil && m.tasks != nil {
				m.tasks.Clear(m.handle)
			}
			return msg, nil
		}
	}
	for _, tq := range m.topics {
		if len(tq.normal) > 0 {
			var msg *message.Envelope
			tq.normal, msg, _ = popFront(tq.normal)
			m.receivedCount++
			nowEmpty := m.isEmptyLocked()
			m.mu.Unlock()
			if nowEmpty && m.handle != nil && m.tasks != nil {
				m.tasks.Clear(m.handle)
			}
			return msg, nil
		}
	}
	m.mu.Unlock()
	return nil, corerr.New("broker.Mailbox.Receive", corerr.NotFound)
}

func (m *Mailbox) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isEmptyLocked()
}
