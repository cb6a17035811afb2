package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firmcore/runtime/internal/config"
	"github.com/firmcore/runtime/internal/message"
	"github.com/firmcore/runtime/internal/platform"
)

func testBroker(t *testing.T) (*Broker, platform.Tasks) {
	t.Helper()
	b := config.DefaultBudget()
	tasks := platform.NewDefault(nil)
	return New(b, tasks, tasks), tasks
}

func registerTask(t *testing.T, br *Broker, tasks platform.Tasks, taskID uint16) platform.TaskHandle {
	t.Helper()
	h, err := tasks.Create("t", 0, func() {})
	require.NoError(t, err)
	require.NoError(t, br.RegisterTask(taskID, h))
	return h
}

func TestBroker_PublishSubscribeReceive(t *testing.T) {
	br, tasks := testBroker(t)
	registerTask(t, br, tasks, 1)

	require.NoError(t, br.Subscribe(100, 1))

	msg := message.NewEnvelope(message.SmallPayloadSize)
	msg.SetData([]byte("hi"))
	require.NoError(t, br.Publish(100, msg, 9))

	got, err := br.TryReceive(1)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got.Data()))
	assert.Equal(t, uint16(9), got.Header.SenderID)
	assert.Equal(t, uint16(100), got.Header.Type)

	assert.EqualValues(t, 1, br.TotalSent())
	assert.EqualValues(t, 1, br.TotalReceived())
}

func TestBroker_PublishNoSubscribersReturnsNotFound(t *testing.T) {
	br, _ := testBroker(t)
	msg := message.NewEnvelope(message.SmallPayloadSize)
	err := br.Publish(999, msg, 1)
	assert.Error(t, err)
}

func TestBroker_PriorityOrdering(t *testing.T) {
	br, tasks := testBroker(t)
	registerTask(t, br, tasks, 1)
	require.NoError(t, br.Subscribe(5, 1))

	low := message.NewEnvelope(message.SmallPayloadSize)
	low.Header.Priority = message.PriorityLow
	low.SetData([]byte("low"))
	require.NoError(t, br.Publish(5, low, 0))

	high := message.NewEnvelope(message.SmallPayloadSize)
	high.Header.Priority = message.PriorityCritical
	high.SetData([]byte("high"))
	require.NoError(t, br.Publish(5, high, 0))

	first, err := br.TryReceive(1)
	require.NoError(t, err)
	assert.Equal(t, "high", string(first.Data()))

	second, err := br.TryReceive(1)
	require.NoError(t, err)
	assert.Equal(t, "low", string(second.Data()))
}

func TestBroker_OverflowDropsOldest(t *testing.T) {
	b := config.DefaultBudget()
	b.MsgQueueCapacity = 4
	b.MsgTopicQueuesPerMailbox = 1
	b.MsgTopicHighRatioNum = 1
	b.MsgTopicHighRatioDen = 4
	tasks := platform.NewDefault(nil)
	br := New(b, tasks, tasks)
	registerTask(t, br, tasks, 1)
	require.NoError(t, br.Subscribe(1, 1))

	for i := 0; i < 10; i++ {
		msg := message.NewEnvelope(message.SmallPayloadSize)
		msg.SetData([]byte{byte(i)})
		_ = br.Publish(1, msg, 0)
	}

	assert.Greater(t, br.TotalDropped(), uint32(0))

	count := 0
	for {
		if _, err := br.TryReceive(1); err != nil {
			break
		}
		count++
	}
	assert.Greater(t, count, 0)
}

func TestBroker_OverflowRejectsPersistent(t *testing.T) {
	b := config.DefaultBudget()
	b.MsgQueueCapacity = 2
	b.MsgTopicQueuesPerMailbox = 1
	b.MsgTopicHighRatioNum = 1
	b.MsgTopicHighRatioDen = 2
	tasks := platform.NewDefault(nil)
	br := New(b, tasks, tasks)
	registerTask(t, br, tasks, 1)
	require.NoError(t, br.Subscribe(1, 1))
	require.NoError(t, br.SetOverflowPolicy(1, false))

	sentOK := 0
	for i := 0; i < 10; i++ {
		msg := message.NewEnvelope(message.SmallPayloadSize)
		msg.Header.Flags = message.FlagPersistent
		if err := br.Publish(1, msg, 0); err == nil {
			sentOK++
		}
	}
	assert.Less(t, sentOK, 10)
}

func TestBroker_Broadcast(t *testing.T) {
	br, tasks := testBroker(t)
	registerTask(t, br, tasks, 1)
	registerTask(t, br, tasks, 2)

	msg := message.NewEnvelope(message.SmallPayloadSize)
	msg.SetData([]byte("all"))
	require.NoError(t, br.Broadcast(msg))

	m1, err := br.TryReceive(1)
	require.NoError(t, err)
	assert.Equal(t, "all", string(m1.Data()))

	m2, err := br.TryReceive(2)
	require.NoError(t, err)
	assert.Equal(t, "all", string(m2.Data()))
}

func TestBroker_ReceiveBlocksUntilNotified(t *testing.T) {
	br, tasks := testBroker(t)
	registerTask(t, br, tasks, 1)
	require.NoError(t, br.Subscribe(7, 1))

	done := make(chan error, 1)
	go func() {
		_, err := br.Receive(1, 2000)
		done <- err
	}()

	msg := message.NewEnvelope(message.SmallPayloadSize)
	msg.SetData([]byte("async"))
	require.NoError(t, br.Publish(7, msg, 0))

	require.NoError(t, <-done)
}

func TestBroker_ReceiveTimesOut(t *testing.T) {
	br, tasks := testBroker(t)
	registerTask(t, br, tasks, 1)

	_, err := br.Receive(1, 10)
	assert.Error(t, err)
}

func TestBroker_RegisterTaskRejectsOverMax(t *testing.T) {
	b := config.DefaultBudget()
	b.MaxTasks = 2
	tasks := platform.NewDefault(nil)
	br := New(b, tasks, tasks)
	require.NoError(t, br.RegisterTask(0, nil))
	require.NoError(t, br.RegisterTask(1, nil))
	assert.Error(t, br.RegisterTask(2, nil))
}
