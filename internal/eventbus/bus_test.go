package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PostAndProcessDispatches(t *testing.T) {
	b := New(8, 8)
	var got []Event
	require.NoError(t, b.RegisterHandler(ID{Category: CategoryTask, Code: 1}, func(evt Event) {
		got = append(got, evt)
	}))

	require.NoError(t, b.PostEvent(CategoryTask, 1, SeverityInfo, FlagNone))
	require.NoError(t, b.PostEvent(CategoryTask, 2, SeverityInfo, FlagNone)) // no match

	n := b.Process(0)
	assert.Equal(t, 2, n)
	assert.Len(t, got, 1)
}

func TestBus_WildcardCategoryAndCode(t *testing.T) {
	b := New(8, 8)
	var count int
	require.NoError(t, b.RegisterHandler(ID{Category: CategoryAny, Code: CodeAny}, func(Event) { count++ }))

	require.NoError(t, b.PostEvent(CategorySensor, 5, SeverityWarn, FlagNone))
	require.NoError(t, b.PostEvent(CategoryNetwork, 9, SeverityError, FlagNone))
	b.Process(0)
	assert.Equal(t, 2, count)
}

func TestBus_UnregisterHandlerStopsDelivery(t *testing.T) {
	b := New(8, 8)
	ident := ID{Category: CategoryIO, Code: 3}
	var count int
	require.NoError(t, b.RegisterHandler(ident, func(Event) { count++ }))
	assert.True(t, b.UnregisterHandler(ident))

	b.Dispatch(Make(CategoryIO, 3, SeverityInfo, FlagNone))
	assert.Equal(t, 0, count)
}

func TestBus_QueueFullRejectsPost(t *testing.T) {
	b := New(8, 1)
	require.NoError(t, b.PostEvent(CategorySystem, 0, SeverityInfo, FlagNone))
	assert.Error(t, b.PostEvent(CategorySystem, 0, SeverityInfo, FlagNone))
}

func TestBus_HandlerTableFullRejectsRegister(t *testing.T) {
	b := New(1, 8)
	require.NoError(t, b.RegisterHandler(ID{Category: CategoryAny}, func(Event) {}))
	assert.Error(t, b.RegisterHandler(ID{Category: CategoryAny}, func(Event) {}))
}

func TestBus_ProcessRespectsMaxEvents(t *testing.T) {
	b := New(8, 8)
	var count int
	require.NoError(t, b.RegisterHandler(ID{Category: CategoryAny, Code: CodeAny}, func(Event) { count++ }))
	for i := 0; i < 5; i++ {
		require.NoError(t, b.PostEvent(CategoryUser, uint16(i), SeverityInfo, FlagNone))
	}
	n := b.Process(2)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, count)
	assert.Equal(t, 3, b.Pending())
}
