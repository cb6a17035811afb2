// Package container implements the fixed-capacity generic containers
// spec.md §2 builds everything else on top of: a ring buffer, a small
// vector, a small map, an optional, and a fixed string. Every type here
// is capacity-parameterized at construction (the const-generic analog
// Go lacks), not resizable, and never allocates past its initial
// backing array.
//
// The free-running head/tail-with-mask ring math is grounded on the
// teacher's foundation.MessageQueue (EnqueueZeroCopy/DequeueZeroCopy:
// "nextTail := (tail + 1) & (mq.capacity - 1)") and on the
// free-running-counter ring buffer pattern from the retrieved
// bus.RingBuffer reference, generalized here from power-of-2 masking to
// plain modulo so capacities need not be powers of two.
package container

import "github.com/firmcore/runtime/internal/corerr"

// Ring is a fixed-capacity, single-producer/single-consumer FIFO of T.
// Head and tail are free-running counts (never masked themselves); only
// indexing into buf applies the modulo, so Len is always
// tail-head regardless of wraparound.
type Ring[T any] struct {
	buf  []T
	head uint32
	tail uint32
}

// NewRing constructs a Ring with the given fixed capacity.
func NewRing[T any](capacity uint32) *Ring[T] {
	return &Ring[T]{buf: make([]T, capacity)}
}

func (r *Ring[T]) Cap() uint32 { return uint32(len(r.buf)) }
func (r *Ring[T]) Len() uint32 { return r.tail - r.head }
func (r *Ring[T]) Empty() bool { return r.head == r.tail }
func (r *Ring[T]) Full() bool  { return r.Len() == r.Cap() }

// PushBack appends v, returning corerr.OutOfMemory if the ring is full.
func (r *Ring[T]) PushBack(v T) error {
	if r.Full() {
		return corerr.New("container.Ring.PushBack", corerr.OutOfMemory)
	}
	r.buf[r.tail%uint32(len(r.buf))] = v
	r.tail++
	return nil
}

// PopFront removes and returns the oldest element, or ok=false if empty.
func (r *Ring[T]) PopFront() (v T, ok bool) {
	if r.Empty() {
		return v, false
	}
	idx := r.head % uint32(len(r.buf))
	v = r.buf[idx]
	var zero T
	r.buf[idx] = zero
	r.head++
	return v, true
}

// PeekFront returns the oldest element without removing it.
func (r *Ring[T]) PeekFront() (v T, ok bool) {
	if r.Empty() {
		return v, false
	}
	return r.buf[r.head%uint32(len(r.buf))], true
}

// DropOldest discards the oldest element, used by overflow policies that
// must make room before a PushBack (spec.md §4.7's drop_oldest policy).
func (r *Ring[T]) DropOldest() (v T, ok bool) {
	return r.PopFront()
}

// Clear resets the ring to empty without reallocating.
func (r *Ring[T]) Clear() {
	for i := range r.buf {
		var zero T
		r.buf[i] = zero
	}
	r.head, r.tail = 0, 0
}
