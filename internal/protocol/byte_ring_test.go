package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteRing_PushPop(t *testing.T) {
	r := NewByteRing(4)
	assert.True(t, r.Push(1))
	assert.True(t, r.Push(2))
	v, ok := r.Pop()
	assert.True(t, ok)
	assert.Equal(t, byte(1), v)
}

func TestByteRing_FullReservesOneSlot(t *testing.T) {
	r := NewByteRing(2)
	assert.True(t, r.Push(1))
	assert.True(t, r.Push(2))
	assert.True(t, r.Full())
	assert.False(t, r.Push(3))
}

func TestByteRing_PushNPopN(t *testing.T) {
	r := NewByteRing(8)
	n := r.PushN([]byte{1, 2, 3, 4})
	assert.Equal(t, 4, n)
	dst := make([]byte, 4)
	got := r.PopN(dst)
	assert.Equal(t, 4, got)
	assert.Equal(t, []byte{1, 2, 3, 4}, dst)
}

func TestByteRing_EmptyPop(t *testing.T) {
	r := NewByteRing(4)
	_, ok := r.Pop()
	assert.False(t, ok)
}
