package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmallMap_SetGet(t *testing.T) {
	m := NewSmallMap[string, int](4)
	require.NoError(t, m.Set("a", 1))
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestSmallMap_SetReplacesExisting(t *testing.T) {
	m := NewSmallMap[string, int](1)
	require.NoError(t, m.Set("a", 1))
	require.NoError(t, m.Set("a", 2))
	v, _ := m.Get("a")
	assert.Equal(t, 2, v)
}

func TestSmallMap_FullRejectsNewKey(t *testing.T) {
	m := NewSmallMap[string, int](1)
	require.NoError(t, m.Set("a", 1))
	assert.Error(t, m.Set("b", 2))
}

func TestSmallMap_Delete(t *testing.T) {
	m := NewSmallMap[string, int](2)
	require.NoError(t, m.Set("a", 1))
	require.NoError(t, m.Set("b", 2))
	assert.True(t, m.Delete("a"))
	_, ok := m.Get("a")
	assert.False(t, ok)
	v, ok := m.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}
