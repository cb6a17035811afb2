package pool

import "github.com/firmcore/runtime/internal/corerr"

// Class names the three envelope size classes spec.md §6 budgets
// independently, mirroring the teacher's SlabAllocator size-class
// routing generalized from ten bitmap classes down to the three the
// message envelope format actually needs.
type Class int

const (
	Small Class = iota
	Medium
	Large
)

// Manager routes a byte-size request to the smallest pool that fits it,
// the same "find size class, allocate from its cache" dispatch as
// SlabAllocator.Allocate, minus the bitmap page management this port's
// fixed three-class layout makes unnecessary.
type Manager struct {
	small, medium, large *Pool[[]byte]
	smallSize            uint32
	mediumSize           uint32
	largeSize            uint32
}

// NewManager constructs a Manager with one Pool per class, each slot
// pre-sized to hold up to its class's envelope size.
func NewManager(smallSize, smallBlocks, mediumSize, mediumBlocks, largeSize, largeBlocks uint32) *Manager {
	m := &Manager{
		smallSize:  smallSize,
		mediumSize: mediumSize,
		largeSize:  largeSize,
		small:      New[[]byte](smallBlocks),
		medium:     New[[]byte](mediumBlocks),
		large:      New[[]byte](largeBlocks),
	}
	return m
}

// Acquire returns a byte buffer of at least size bytes from the
// smallest class that fits, plus the class it came from so the caller
// can Release correctly.
func (m *Manager) Acquire(size uint32) (Class, uint32, []byte, error) {
	switch {
	case size <= m.smallSize:
		idx, err := m.small.Alloc()
		if err != nil {
			return Small, 0, nil, err
		}
		slot, _ := m.small.Slot(idx)
		if uint32(cap(*slot)) < m.smallSize {
			*slot = make([]byte, m.smallSize)
		}
		return Small, idx, (*slot)[:size], nil
	case size <= m.mediumSize:
		idx, err := m.medium.Alloc()
		if err != nil {
			return Medium, 0, nil, err
		}
		slot, _ := m.medium.Slot(idx)
		if uint32(cap(*slot)) < m.mediumSize {
			*slot = make([]byte, m.mediumSize)
		}
		return Medium, idx, (*slot)[:size], nil
	case size <= m.largeSize:
		idx, err := m.large.Alloc()
		if err != nil {
			return Large, 0, nil, err
		}
		slot, _ := m.large.Slot(idx)
		if uint32(cap(*slot)) < m.largeSize {
			*slot = make([]byte, m.largeSize)
		}
		return Large, idx, (*slot)[:size], nil
	default:
		return 0, 0, nil, corerr.New("pool.Manager.Acquire", corerr.InvalidParameter)
	}
}

// Release returns idx in class back to its pool.
func (m *Manager) Release(class Class, idx uint32) error {
	switch class {
	case Small:
		return m.small.Release(idx)
	case Medium:
		return m.medium.Release(idx)
	case Large:
		return m.large.Release(idx)
	default:
		return corerr.New("pool.Manager.Release", corerr.InvalidParameter)
	}
}

// Stats reports in-use/capacity per class.
type Stats struct {
	SmallInUse, SmallCap   uint32
	MediumInUse, MediumCap uint32
	LargeInUse, LargeCap   uint32
}

func (m *Manager) Stats() Stats {
	return Stats{
		SmallInUse: m.small.InUse(), SmallCap: m.small.Cap(),
		MediumInUse: m.medium.InUse(), MediumCap: m.medium.Cap(),
		LargeInUse: m.large.InUse(), LargeCap: m.large.Cap(),
	}
}
