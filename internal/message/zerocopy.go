package message

import (
	"sync"

	"github.com/firmcore/runtime/internal/corerr"
)

const invalidIndex = 0xFFFF

type zcNode struct {
	payload []byte
	size    uint16
	refs    uint16
	next    uint16
	inUse   bool
}

// ZeroCopyPool is a fixed-block-size, reference-counted pool, ported
// from the original zero_copy.hpp's zero_copy_pool: Acquire returns a
// Handle whose underlying buffer is shared (not copied) across every
// clone of that Handle, and is only returned to the free list once the
// last clone releases it.
type ZeroCopyPool struct {
	mu       sync.Mutex
	nodes    []zcNode
	freeHead uint16
}

// NewZeroCopyPool constructs a pool of blockCount blocks, each
// blockSize bytes.
func NewZeroCopyPool(blockSize, blockCount uint32) *ZeroCopyPool {
	p := &ZeroCopyPool{nodes: make([]zcNode, blockCount)}
	for i := range p.nodes {
		p.nodes[i].payload = make([]byte, blockSize)
		if i == len(p.nodes)-1 {
			p.nodes[i].next = invalidIndex
		} else {
			p.nodes[i].next = uint16(i + 1)
		}
	}
	if blockCount == 0 {
		p.freeHead = invalidIndex
	}
	return p
}

func (p *ZeroCopyPool) blockSize() int {
	if len(p.nodes) == 0 {
		return 0
	}
	return len(p.nodes[0].payload)
}

// Acquire takes a free block for a size-byte payload and returns a
// Handle with refcount 1. A size larger than the pool's block size is
// rejected with InvalidParameter.
func (p *ZeroCopyPool) Acquire(size uint16) (Handle, error) {
	if int(size) > p.blockSize() {
		return Handle{}, corerr.New("message.ZeroCopyPool.Acquire", corerr.InvalidParameter)
	}
	p.mu.Lock()
	if p.freeHead == invalidIndex {
		p.mu.Unlock()
		return Handle{}, corerr.New("message.ZeroCopyPool.Acquire", corerr.OutOfMemory)
	}
	idx := p.freeHead
	p.freeHead = p.nodes[idx].next
	p.nodes[idx].size = size
	p.nodes[idx].refs = 1
	p.nodes[idx].inUse = true
	p.nodes[idx].next = invalidIndex
	p.mu.Unlock()
	return Handle{pool: p, index: idx, size: size}, nil
}

func (p *ZeroCopyPool) addRef(index uint16) {
	p.mu.Lock()
	if index < uint16(len(p.nodes)) && p.nodes[index].inUse && p.nodes[index].refs != 0xFFFF {
		p.nodes[index].refs++
	}
	p.mu.Unlock()
}

func (p *ZeroCopyPool) release(index uint16) {
	p.mu.Lock()
	if index < uint16(len(p.nodes)) && p.nodes[index].inUse && p.nodes[index].refs > 0 {
		p.nodes[index].refs--
		if p.nodes[index].refs == 0 {
			p.nodes[index].inUse = false
			p.nodes[index].next = p.freeHead
			p.freeHead = index
		}
	}
	p.mu.Unlock()
}

func (p *ZeroCopyPool) data(index uint16) []byte {
	if index >= uint16(len(p.nodes)) {
		return nil
	}
	return p.nodes[index].payload
}

// Capacity returns the total number of blocks the pool was built with.
func (p *ZeroCopyPool) Capacity() int { return len(p.nodes) }

// Handle is a refcounted reference to a ZeroCopyPool block, the Go
// analog of zc_handle. Clone must be called explicitly (Go has no
// copy-constructor hook) whenever a second owner needs to keep the
// block alive; Release must be called exactly once per Acquire/Clone.
type Handle struct {
	pool  *ZeroCopyPool
	index uint16
	size  uint16
}

func (h Handle) Valid() bool { return h.pool != nil && h.index != invalidIndex }

// Data returns the block's backing buffer, valid only while the handle
// (or a clone of it) has not yet been released.
func (h Handle) Data() []byte {
	if !h.Valid() {
		return nil
	}
	return h.pool.data(h.index)[:h.size]
}

func (h Handle) Size() uint16 { return h.size }

// Clone returns a new Handle sharing the same block, bumping the
// refcount.
func (h Handle) Clone() Handle {
	if h.Valid() {
		h.pool.addRef(h.index)
	}
	return h
}

// Release decrements the refcount, returning the block to the pool's
// free list once it reaches zero.
func (h Handle) Release() {
	if h.Valid() {
		h.pool.release(h.index)
	}
}
