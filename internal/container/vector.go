package container

import "github.com/firmcore/runtime/internal/corerr"

// Vector is a fixed-capacity, contiguous collection (SwapRemove moves
// the last element into the removed slot, so indices are not stable
// across removals), the generic analog of the teacher's fixed-size C-style
// arrays (e.g. registry.ModuleRegistry's modules [MaxModules]*Module)
// used wherever spec.md calls for a bounded table rather than an
// unbounded Go slice.
type Vector[T any] struct {
	items []T
	cap   uint32
}

// NewVector constructs an empty Vector with the given fixed capacity.
func NewVector[T any](capacity uint32) *Vector[T] {
	return &Vector[T]{items: make([]T, 0, capacity), cap: capacity}
}

func (v *Vector[T]) Len() int   { return len(v.items) }
func (v *Vector[T]) Cap() uint32 { return v.cap }
func (v *Vector[T]) Full() bool { return uint32(len(v.items)) >= v.cap }

// PushBack appends v, returning corerr.OutOfMemory if at capacity.
func (v *Vector[T]) PushBack(item T) error {
	if v.Full() {
		return corerr.New("container.Vector.PushBack", corerr.OutOfMemory)
	}
	v.items = append(v.items, item)
	return nil
}

// At returns the element at idx.
func (v *Vector[T]) At(idx int) (T, error) {
	var zero T
	if idx < 0 || idx >= len(v.items) {
		return zero, corerr.New("container.Vector.At", corerr.InvalidParameter)
	}
	return v.items[idx], nil
}

// Set overwrites the element at idx.
func (v *Vector[T]) Set(idx int, item T) error {
	if idx < 0 || idx >= len(v.items) {
		return corerr.New("container.Vector.Set", corerr.InvalidParameter)
	}
	v.items[idx] = item
	return nil
}

// SwapRemove removes the element at idx by moving the last element into
// its place, the O(1) deregistration pattern spec.md §4.4 requires for
// the command dispatcher's handler table.
func (v *Vector[T]) SwapRemove(idx int) error {
	n := len(v.items)
	if idx < 0 || idx >= n {
		return corerr.New("container.Vector.SwapRemove", corerr.InvalidParameter)
	}
	v.items[idx] = v.items[n-1]
	var zero T
	v.items[n-1] = zero
	v.items = v.items[:n-1]
	return nil
}

// Each iterates in order, stopping early if fn returns false.
func (v *Vector[T]) Each(fn func(idx int, item T) bool) {
	for i, it := range v.items {
		if !fn(i, it) {
			return
		}
	}
}

// Slice returns the backing slice for read-only bulk access (e.g.
// sort.Search over a sorted Vector).
func (v *Vector[T]) Slice() []T { return v.items }
