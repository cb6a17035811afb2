package message

import "github.com/firmcore/runtime/internal/corerr"

// Manager owns one ZeroCopyPool per size class and hands out Handles
// to a block from whichever pool's block size is the smallest fit,
// the message-layer analog of the original's small/medium/large_message
// aliases combined with a routing allocator.
type Manager struct {
	small, medium, large *ZeroCopyPool
}

// NewManager constructs a Manager with the standard three size
// classes.
func NewManager(smallBlocks, mediumBlocks, largeBlocks uint32) *Manager {
	return &Manager{
		small:  NewZeroCopyPool(SmallPayloadSize, smallBlocks),
		medium: NewZeroCopyPool(MediumPayloadSize, mediumBlocks),
		large:  NewZeroCopyPool(LargePayloadSize, largeBlocks),
	}
}

// Acquire returns a Handle to a block that fits size, from the smallest
// class that can hold it.
func (m *Manager) Acquire(size uint16) (Handle, error) {
	switch {
	case size <= SmallPayloadSize:
		return m.small.Acquire(size)
	case size <= MediumPayloadSize:
		return m.medium.Acquire(size)
	case size <= LargePayloadSize:
		return m.large.Acquire(size)
	default:
		return Handle{}, corerr.New("message.Manager.Acquire", corerr.InvalidParameter)
	}
}
