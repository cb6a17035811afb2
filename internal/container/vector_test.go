package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVector_PushAndAt(t *testing.T) {
	v := NewVector[string](3)
	require.NoError(t, v.PushBack("a"))
	require.NoError(t, v.PushBack("b"))
	got, err := v.At(1)
	require.NoError(t, err)
	assert.Equal(t, "b", got)
}

func TestVector_FullReturnsOutOfMemory(t *testing.T) {
	v := NewVector[int](1)
	require.NoError(t, v.PushBack(1))
	assert.Error(t, v.PushBack(2))
}

func TestVector_SwapRemove(t *testing.T) {
	v := NewVector[int](4)
	require.NoError(t, v.PushBack(10))
	require.NoError(t, v.PushBack(20))
	require.NoError(t, v.PushBack(30))

	require.NoError(t, v.SwapRemove(0))
	assert.Equal(t, 2, v.Len())
	got, _ := v.At(0)
	assert.Equal(t, 30, got)
}

func TestVector_SwapRemoveOutOfRange(t *testing.T) {
	v := NewVector[int](2)
	require.NoError(t, v.PushBack(1))
	assert.Error(t, v.SwapRemove(5))
}
