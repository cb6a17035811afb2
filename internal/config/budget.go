// Package config declares the integrator-supplied capacity budget from
// which the arena's region layout is derived, grounded on the memory
// region catalog in the teacher's kernel/threads/sab/layout.go
// (GetAllRegions), generalized from that package's fixed SAB offsets to a
// budget-driven layout computed once at construction time.
package config

// Feature toggles matching spec.md's ENABLE_* configuration inputs. A
// disabled subsystem's region has size 0.
type Features struct {
	Messaging bool
	Events    bool
	Protocol  bool
	ZeroCopy  bool
	EventLogs bool
	Pools     bool
}

// Budget is the full set of capacity inputs spec.md §6 enumerates. Every
// field maps 1:1 to a row of that table.
type Budget struct {
	Features Features

	MaxTasks  uint32
	MaxEvents uint32

	MsgQueueCapacity         uint32
	MsgMaxTopics             uint32
	MsgMaxSubsPerTopic       uint32
	MsgTopicQueuesPerMailbox uint32
	MsgTopicHighRatioNum     uint32
	MsgTopicHighRatioDen     uint32

	QoSPendingLimit  uint32
	QoSAckTimeoutUS  uint64
	ZCBlockSize      uint32
	ZCBlockCount     uint32
	ProtocolPacketSize  uint32
	ProtocolMaxHandlers uint32
	ProtocolRingSize    uint32

	MemoryBudgetBytes uint32

	SmallEnvelopeSize  uint32
	MediumEnvelopeSize uint32
	LargeEnvelopeSize  uint32

	SmallPoolBlocks  uint32
	MediumPoolBlocks uint32
	LargePoolBlocks  uint32
}

// DefaultBudget returns a conservative budget suitable for the demo binary
// and unit tests: small enough to exercise overflow/boundary behaviors
// quickly, large enough that no legitimate scenario in spec.md §8 hits a
// spurious capacity limit.
func DefaultBudget() Budget {
	return Budget{
		Features: Features{
			Messaging: true,
			Events:    true,
			Protocol:  true,
			ZeroCopy:  true,
			EventLogs: true,
			Pools:     true,
		},
		MaxTasks:  32,
		MaxEvents: 64,

		MsgQueueCapacity:         64,
		MsgMaxTopics:             32,
		MsgMaxSubsPerTopic:       8,
		MsgTopicQueuesPerMailbox: 8,
		MsgTopicHighRatioNum:     1,
		MsgTopicHighRatioDen:     3,

		QoSPendingLimit:  32,
		QoSAckTimeoutUS:  50_000,
		ZCBlockSize:      64,
		ZCBlockCount:     64,
		ProtocolPacketSize:  128,
		ProtocolMaxHandlers: 32,
		ProtocolRingSize:    256,

		MemoryBudgetBytes: 1 << 20,

		SmallEnvelopeSize:  16,
		MediumEnvelopeSize: 64,
		LargeEnvelopeSize:  256,

		SmallPoolBlocks:  64,
		MediumPoolBlocks: 32,
		LargePoolBlocks:  16,
	}
}

// PerTopicDepth computes PER_TOPIC = max(2, QUEUE_CAP/TOPIC_SLOTS) per
// spec.md §3.
func (b Budget) PerTopicDepth() uint32 {
	d := b.MsgQueueCapacity / b.MsgTopicQueuesPerMailbox
	if d < 2 {
		d = 2
	}
	return d
}

// HighShardCapacity computes HIGH_CAP = max(1, (PER_TOPIC*NUM)/DEN).
func (b Budget) HighShardCapacity() uint32 {
	perTopic := b.PerTopicDepth()
	c := (perTopic * b.MsgTopicHighRatioNum) / b.MsgTopicHighRatioDen
	if c < 1 {
		c = 1
	}
	return c
}

// NormalShardCapacity computes NORMAL_CAP = max(1, PER_TOPIC - HIGH_CAP).
func (b Budget) NormalShardCapacity() uint32 {
	perTopic := b.PerTopicDepth()
	high := b.HighShardCapacity()
	if perTopic <= high {
		return 1
	}
	c := perTopic - high
	if c < 1 {
		c = 1
	}
	return c
}
