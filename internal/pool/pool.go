// Package pool implements fixed-capacity, free-list block pools, the
// generic Go analog of the teacher's kernel/threads/arena SlabAllocator
// size-class caches: instead of one allocator routing arbitrary sizes
// across ten bitmap-tracked size classes, spec.md's three named size
// classes (small/medium/large envelopes) are each backed by their own
// Pool[T] here, and free tracking uses a threaded singly-linked free
// list over slot indices instead of a per-page bitmap, since each pool
// serves exactly one object size and never needs SlabAllocator's
// variable-size-class routing.
package pool

import (
	"sync"

	"github.com/firmcore/runtime/internal/corerr"
)

const noNext int32 = -1

// Guard is the critical-section lock a Pool uses to guard its free
// list. *sync.Mutex and platform.CriticalSection both satisfy it.
type Guard interface {
	Lock()
	Unlock()
}

// noopGuard is a Guard that enforces no mutual exclusion, for pools only
// ever touched from one goroutine (e.g. a driver/ISR-only pool) where the
// real mutex's overhead buys nothing.
type noopGuard struct{}

func (noopGuard) Lock()   {}
func (noopGuard) Unlock() {}

// NoGuard is the Guard to pass to WithGuard for a pool only ever
// accessed from a single goroutine.
var NoGuard Guard = noopGuard{}

// Option configures a Pool at construction.
type Option func(*poolConfig)

type poolConfig struct {
	guard Guard
}

// WithGuard selects the critical-section guard a Pool uses instead of
// the default *sync.Mutex, mirroring spec.md §4.2's "optional
// critical-section guard selected at construction." Pass a no-op guard
// for a pool known to be single-goroutine, or a platform.CriticalSection
// shared with other subsystems.
func WithGuard(g Guard) Option {
	return func(c *poolConfig) { c.guard = g }
}

// Pool is a fixed-capacity free-list allocator for values of type T.
// Alloc/Release are O(1); the backing array is allocated once at
// construction and never grows, mirroring spec.md §4.2's static
// allocation invariant.
type Pool[T any] struct {
	mu        Guard
	slots     []T
	next      []int32
	allocated []bool
	freeHead  int32
	inUse     uint32
}

// New constructs a Pool with capacity slots, all initially free. With no
// options, the free list is guarded by a private *sync.Mutex; pass
// WithGuard to select a different guard.
func New[T any](capacity uint32, opts ...Option) *Pool[T] {
	cfg := poolConfig{guard: &sync.Mutex{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	p := &Pool[T]{
		mu:        cfg.guard,
		slots:     make([]T, capacity),
		next:      make([]int32, capacity),
		allocated: make([]bool, capacity),
	}
	for i := uint32(0); i < capacity; i++ {
		if i == capacity-1 {
			p.next[i] = noNext
		} else {
			p.next[i] = int32(i + 1)
		}
	}
	if capacity == 0 {
		p.freeHead = noNext
	}
	return p
}

func (p *Pool[T]) Cap() uint32       { return uint32(len(p.slots)) }
func (p *Pool[T]) InUse() uint32     { return p.inUse }
func (p *Pool[T]) FreeCount() uint32 { return p.Cap() - p.inUse }

// Alloc removes a slot from the free list and returns its index. The
// caller writes into Slot(idx) to initialize the value.
func (p *Pool[T]) Alloc() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.freeHead == noNext {
		return 0, corerr.New("pool.Pool.Alloc", corerr.OutOfMemory)
	}
	idx := p.freeHead
	p.freeHead = p.next[idx]
	p.allocated[idx] = true
	p.inUse++
	return uint32(idx), nil
}

// Release returns idx to the free list, zeroing the slot's value so a
// stale reference cannot observe freed data. Releasing an index that is
// not currently allocated — never allocated, or already released — is
// rejected rather than re-threading the free list or underflowing inUse,
// matching spec.md §4.2's "double-free fails" invariant.
func (p *Pool[T]) Release(idx uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx >= uint32(len(p.slots)) {
		return corerr.New("pool.Pool.Release", corerr.InvalidParameter)
	}
	if !p.allocated[idx] {
		return corerr.New("pool.Pool.Release", corerr.InvalidParameter)
	}
	var zero T
	p.slots[idx] = zero
	p.allocated[idx] = false
	p.next[idx] = p.freeHead
	p.freeHead = int32(idx)
	p.inUse--
	return nil
}

// Slot returns a pointer to the value at idx for in-place read/write.
// The pointer is valid only while idx remains allocated; using it after
// Release is a caller error, exactly the borrow-duration contract
// spec.md §9 documents for decoded U8Array fields.
func (p *Pool[T]) Slot(idx uint32) (*T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx >= uint32(len(p.slots)) {
		return nil, corerr.New("pool.Pool.Slot", corerr.InvalidParameter)
	}
	return &p.slots[idx], nil
}
