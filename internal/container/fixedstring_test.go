package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedString_SetAndString(t *testing.T) {
	fs := NewFixedString(8)
	require.NoError(t, fs.Set("hello"))
	assert.Equal(t, "hello", fs.String())
	assert.Equal(t, 5, fs.Len())
}

func TestFixedString_OversizeRejected(t *testing.T) {
	fs := NewFixedString(4)
	assert.Error(t, fs.Set("toolong"))
}

func TestOptional_SomeNone(t *testing.T) {
	o := Some(42)
	v, ok := o.Get()
	require.True(t, ok)
	assert.Equal(t, 42, v)

	n := None[int]()
	_, ok = n.Get()
	assert.False(t, ok)
	assert.Equal(t, 7, n.GetOr(7))
}
