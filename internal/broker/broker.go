package broker

import (
	"sort"
	"sync"

	"github.com/firmcore/runtime/internal/config"
	"github.com/firmcore/runtime/internal/corerr"
	"github.com/firmcore/runtime/internal/message"
	"github.com/firmcore/runtime/internal/platform"
)

type topicSubscription struct {
	topicID       uint16
	capacityLimit uint32
	subscribers   []uint16
}

// Broker is the pub/sub message router, ported from message_broker:
// mailboxes indexed directly by task ID for O(1) lookup, topics kept
// sorted by ID for binary-search lookup, matching find_mailbox/
// find_topic exactly.
type Broker struct {
	mu sync.Mutex

	budget config.Budget
	tasks  platform.Tasks
	clock  platform.Clock

	mailboxes []*Mailbox // index == task ID
	topics    []*topicSubscription

	sentCount, receivedCount, droppedCount uint32
	sequence                               uint16
	notifyOnEmptyOnly                      bool
}

// New constructs an empty Broker bound to the given budget and
// platform collaborators.
func New(b config.Budget, tasks platform.Tasks, clock platform.Clock) *Broker {
	return &Broker{budget: b, tasks: tasks, clock: clock, notifyOnEmptyOnly: true}
}

func (br *Broker) findMailbox(taskID uint16) *Mailbox {
	idx := int(taskID)
	if idx < 0 || idx >= len(br.mailboxes) {
		return nil
	}
	mb := br.mailboxes[idx]
	if mb == nil || mb.taskID != taskID {
		return nil
	}
	return mb
}

func (br *Broker) findTopic(topicID uint16) *topicSubscription {
	i := sort.Search(len(br.topics), func(i int) bool { return br.topics[i].topicID >= topicID })
	if i < len(br.topics) && br.topics[i].topicID == topicID {
		return br.topics[i]
	}
	return nil
}

// RegisterTask ensures a mailbox exists at index == taskID, growing the
// backing slice as needed, mirroring register_task's vector-resize
// invariant (vector index equals task_id) and its MaxTasks bound.
func (br *Broker) RegisterTask(taskID uint16, handle platform.TaskHandle) error {
	br.mu.Lock()
	defer br.mu.Unlock()

	idx := int(taskID)
	if uint32(idx) >= br.budget.MaxTasks {
		return corerr.New("broker.Broker.RegisterTask", corerr.InvalidParameter)
	}
	if idx >= len(br.mailboxes) {
		grown := make([]*Mailbox, idx+1)
		copy(grown, br.mailboxes)
		br.mailboxes = grown
	}
	if br.mailboxes[idx] != nil && br.mailboxes[idx].taskID == taskID {
		br.mailboxes[idx].handle = handle
		return nil
	}
	br.mailboxes[idx] = newMailbox(taskID, handle, br.tasks, br.budget)
	return nil
}

// SetOverflowPolicy configures whether taskID's mailbox drops the
// oldest message on overflow (true) or rejects the new one (false).
func (br *Broker) SetOverflowPolicy(taskID uint16, dropOldest bool) error {
	br.mu.Lock()
	defer br.mu.Unlock()
	mb := br.findMailbox(taskID)
	if mb == nil {
		return corerr.New("broker.Broker.SetOverflowPolicy", corerr.NotFound)
	}
	mb.overflowDropOldest = dropOldest
	return nil
}

// SetNotifyOnEmptyOnly configures every registered mailbox's notify
// policy.
func (br *Broker) SetNotifyOnEmptyOnly(enabled bool) {
	br.mu.Lock()
	defer br.mu.Unlock()
	for _, mb := range br.mailboxes {
		if mb != nil {
			mb.notifyOnEmptyOnly = enabled
		}
	}
}

// SetMailboxDepth clamps taskID's mailbox's soft depth limit to at most
// the configured queue capacity.
func (br *Broker) SetMailboxDepth(taskID uint16, depth uint32) error {
	br.mu.Lock()
	defer br.mu.Unlock()
	mb := br.findMailbox(taskID)
	if mb == nil {
		return corerr.New("broker.Broker.SetMailboxDepth", corerr.NotFound)
	}
	if depth > br.budget.MsgQueueCapacity {
		depth = br.budget.MsgQueueCapacity
	}
	mb.depthLimit = depth
	return nil
}

// Subscribe adds subscriberTaskID as a listener on topicID, creating
// the topic (in sorted position) if it does not exist yet.
func (br *Broker) Subscribe(topicID, subscriberTaskID uint16) error {
	br.mu.Lock()
	defer br.mu.Unlock()

	topic := br.findTopic(topicID)
	if topic == nil {
		if uint32(len(br.topics)) >= br.budget.MsgMaxTopics {
			return corerr.New("broker.Broker.Subscribe", corerr.OutOfMemory)
		}
		topic = &topicSubscription{topicID: topicID, capacityLimit: br.budget.MsgMaxSubsPerTopic}
		insertAt := sort.Search(len(br.topics), func(i int) bool { return br.topics[i].topicID >= topicID })
		br.topics = append(br.topics, nil)
		copy(br.topics[insertAt+1:], br.topics[insertAt:])
		br.topics[insertAt] = topic
	}

	if uint32(len(topic.subscribers)) >= topic.capacityLimit {
		return corerr.New("broker.Broker.Subscribe", corerr.OutOfMemory)
	}
	for _, s := range topic.subscribers {
		if s == subscriberTaskID {
			return nil
		}
	}
	topic.subscribers = append(topic.subscribers, subscriberTaskID)
	return nil
}

// SetTopicCapacity clamps topicID's subscriber capacity, creating the
// topic if necessary.
func (br *Broker) SetTopicCapacity(topicID uint16, maxSubs uint32) error {
	br.mu.Lock()
	defer br.mu.Unlock()

	topic := br.findTopic(topicID)
	if topic == nil {
		if uint32(len(br.topics)) >= br.budget.MsgMaxTopics {
			return corerr.New("broker.Broker.SetTopicCapacity", corerr.OutOfMemory)
		}
		topic = &topicSubscription{topicID: topicID}
		insertAt := sort.Search(len(br.topics), func(i int) bool { return br.topics[i].topicID >= topicID })
		br.topics = append(br.topics, nil)
		copy(br.topics[insertAt+1:], br.topics[insertAt:])
		br.topics[insertAt] = topic
	}
	if maxSubs > br.budget.MsgMaxSubsPerTopic {
		maxSubs = br.budget.MsgMaxSubsPerTopic
	}
	topic.capacityLimit = maxSubs
	return nil
}

// Publish stamps msg's routing fields and fans it out to topicID's
// subscribers.
func (br *Broker) Publish(topicID uint16, msg *message.Envelope, fromTaskID uint16) error {
	br.mu.Lock()
	msg.Header.SenderID = fromTaskID
	if msg.Header.TimestampUS == 0 && br.clock != nil {
		msg.Header.TimestampUS = br.clock.NowMicros()
	}
	if msg.Header.SequenceNumber == 0 {
		br.sequence++
		msg.Header.SequenceNumber = br.sequence
	}
	msg.Header.Type = topicID

	topic := br.findTopic(topicID)
	if topic == nil || len(topic.subscribers) == 0 {
		br.mu.Unlock()
		return corerr.New("broker.Broker.Publish", corerr.NotFound)
	}
	subscribers := append([]uint16(nil), topic.subscribers...)
	br.mu.Unlock()

	sentAny := false
	for _, sub := range subscribers {
		br.mu.Lock()
		mb := br.findMailbox(sub)
		br.mu.Unlock()
		if mb == nil {
			continue
		}
		if err := mb.Send(msg); err == nil {
			br.mu.Lock()
			br.sentCount++
			br.mu.Unlock()
			sentAny = true
		} else {
			br.mu.Lock()
			br.droppedCount++
			br.mu.Unlock()
		}
	}
	if !sentAny {
		return corerr.New("broker.Broker.Publish", corerr.OutOfMemory)
	}
	return nil
}

// Broadcast sends msg to every registered task's mailbox.
func (br *Broker) Broadcast(msg *message.Envelope) error {
	br.mu.Lock()
	mailboxes := append([]*Mailbox(nil), br.mailboxes...)
	br.mu.Unlock()

	sentAny := false
	for _, mb := range mailboxes {
		if mb == nil {
			continue
		}
		if err := mb.Send(msg); err == nil {
			br.mu.Lock()
			br.sentCount++
			br.mu.Unlock()
			sentAny = true
		} else {
			br.mu.Lock()
			br.droppedCount++
			br.mu.Unlock()
		}
	}
	if !sentAny {
		return corerr.New("broker.Broker.Broadcast", corerr.NotFound)
	}
	return nil
}

// TryReceive performs a non-blocking receive for taskID.
func (br *Broker) TryReceive(taskID uint16) (*message.Envelope, error) {
	br.mu.Lock()
	mb := br.findMailbox(taskID)
	br.mu.Unlock()
	if mb == nil {
		return nil, corerr.New("broker.Broker.TryReceive", corerr.NotFound)
	}
	msg, err := mb.Receive()
	if err == nil {
		br.mu.Lock()
		br.receivedCount++
		br.mu.Unlock()
	}
	return msg, err
}

// Receive performs a blocking receive for taskID, waiting up to
// timeoutMs on the task's platform notification if nothing is queued
// immediately.
func (br *Broker) Receive(taskID uint16, timeoutMs uint32) (*message.Envelope, error) {
	br.mu.Lock()
	mb := br.findMailbox(taskID)
	br.mu.Unlock()
	if mb == nil {
		return nil, corerr.New("broker.Broker.Receive", corerr.NotFound)
	}

	if msg, err := mb.Receive(); err == nil {
		br.mu.Lock()
		br.receivedCount++
		br.mu.Unlock()
		return msg, nil
	}

	if mb.handle != nil && br.tasks != nil {
		notification, ok := br.tasks.Wait(mb.handle, timeoutMs)
		if ok && notification&0x01 != 0 {
			if msg, err := mb.Receive(); err == nil {
				br.mu.Lock()
				br.receivedCount++
				br.mu.Unlock()
				return msg, nil
			}
		}
	}
	return nil, corerr.New("broker.Broker.Receive", corerr.Timeout)
}

// Stats.
func (br *Broker) TotalSent() uint32 {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.sentCount
}
func (br *Broker) TotalReceived() uint32 {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.receivedCount
}
func (br *Broker) TotalDropped() uint32 {
	br.mu.Lock()
	total := br.droppedCount
	mailboxes := append([]*Mailbox(nil), br.mailboxes...)
	br.mu.Unlock()
	for _, mb := range mailboxes {
		if mb == nil {
			continue
		}
		mb.mu.Lock()
		total += mb.droppedOverflow
		mb.mu.Unlock()
	}
	return total
}
func (br *Broker) MailboxCount() int {
	br.mu.Lock()
	defer br.mu.Unlock()
	return len(br.mailboxes)
}
