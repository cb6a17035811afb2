package container

import "github.com/firmcore/runtime/internal/corerr"

// SmallMap is a fixed-capacity, linear-scan key/value table — the
// generic analog of the teacher's registry.ModuleRegistry opcode-table
// lookups, which scan a small fixed array rather than hash, because at
// the capacities spec.md's budgets allow (tens of entries) a linear
// scan outperforms a hash map's overhead and needs no allocation.
type SmallMap[K comparable, V any] struct {
	keys []K
	vals []V
	cap  uint32
}

// NewSmallMap constructs an empty SmallMap with the given fixed
// capacity.
func NewSmallMap[K comparable, V any](capacity uint32) *SmallMap[K, V] {
	return &SmallMap[K, V]{
		keys: make([]K, 0, capacity),
		vals: make([]V, 0, capacity),
		cap:  capacity,
	}
}

func (m *SmallMap[K, V]) Len() int    { return len(m.keys) }
func (m *SmallMap[K, V]) Cap() uint32 { return m.cap }

func (m *SmallMap[K, V]) indexOf(key K) int {
	for i, k := range m.keys {
		if k == key {
			return i
		}
	}
	return -1
}

// Get returns the value for key, if present.
func (m *SmallMap[K, V]) Get(key K) (V, bool) {
	if i := m.indexOf(key); i >= 0 {
		return m.vals[i], true
	}
	var zero V
	return zero, false
}

// Set inserts or replaces the entry for key. Returns corerr.OutOfMemory
// if key is new and the map is already at capacity.
func (m *SmallMap[K, V]) Set(key K, val V) error {
	if i := m.indexOf(key); i >= 0 {
		m.vals[i] = val
		return nil
	}
	if uint32(len(m.keys)) >= m.cap {
		return corerr.New("container.SmallMap.Set", corerr.OutOfMemory)
	}
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, val)
	return nil
}

// Delete removes key via swap-remove, matching Vector's O(1)
// deregistration semantics.
func (m *SmallMap[K, V]) Delete(key K) bool {
	i := m.indexOf(key)
	if i < 0 {
		return false
	}
	last := len(m.keys) - 1
	m.keys[i] = m.keys[last]
	m.vals[i] = m.vals[last]
	m.keys = m.keys[:last]
	m.vals = m.vals[:last]
	return true
}

// Each iterates key/value pairs in no particular order, stopping early
// if fn returns false.
func (m *SmallMap[K, V]) Each(fn func(key K, val V) bool) {
	for i, k := range m.keys {
		if !fn(k, m.vals[i]) {
			return
		}
	}
}
