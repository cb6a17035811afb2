package qos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firmcore/runtime/internal/broker"
	"github.com/firmcore/runtime/internal/config"
	"github.com/firmcore/runtime/internal/message"
	"github.com/firmcore/runtime/internal/platform"
)

func testSetup(t *testing.T) (*broker.Broker, *platform.Default, config.Budget) {
	t.Helper()
	b := config.DefaultBudget()
	tasks := platform.NewDefault(nil)
	br := broker.New(b, tasks, tasks)
	return br, tasks, b
}

func registerAndSubscribe(t *testing.T, br *broker.Broker, tasks platform.Tasks, taskID, topic uint16) {
	t.Helper()
	h, err := tasks.Create("t", 0, func() {})
	require.NoError(t, err)
	require.NoError(t, br.RegisterTask(taskID, h))
	require.NoError(t, br.Subscribe(topic, taskID))
}

func TestPublisher_PublishTracksPendingUntilAck(t *testing.T) {
	br, tasks, b := testSetup(t)
	registerAndSubscribe(t, br, tasks, 1, 10)

	pub := NewPublisher(br, tasks, b, 10, 0)
	msg := message.NewEnvelope(message.SmallPayloadSize)
	msg.SetData([]byte("x"))
	require.NoError(t, pub.Publish(msg))

	assert.Equal(t, 1, pub.PendingCount())

	pub.OnAck(message.Ack{SequenceNumber: msg.Header.SequenceNumber})
	assert.Equal(t, 0, pub.PendingCount())
}

func TestPublisher_PublishRejectsWhenPendingFull(t *testing.T) {
	br, tasks, b := testSetup(t)
	b.QoSPendingLimit = 1
	registerAndSubscribe(t, br, tasks, 1, 10)

	pub := NewPublisher(br, tasks, b, 10, 0)
	first := message.NewEnvelope(message.SmallPayloadSize)
	require.NoError(t, pub.Publish(first))

	second := message.NewEnvelope(message.SmallPayloadSize)
	assert.Error(t, pub.Publish(second))
}

func TestPublisher_TryHandleAckMessage(t *testing.T) {
	br, tasks, b := testSetup(t)
	registerAndSubscribe(t, br, tasks, 1, 10)

	pub := NewPublisher(br, tasks, b, 10, 0)
	msg := message.NewEnvelope(message.SmallPayloadSize)
	require.NoError(t, pub.Publish(msg))

	ackMsg := message.NewEnvelope(message.SmallPayloadSize)
	ackMsg.SetData(message.EncodeAck(message.Ack{SequenceNumber: msg.Header.SequenceNumber, Success: true}))

	assert.True(t, pub.TryHandleAckMessage(ackMsg))
	assert.Equal(t, 0, pub.PendingCount())
}

func TestSubscriber_SuppressesStaleAndDuplicate(t *testing.T) {
	br, tasks, _ := testSetup(t)
	registerAndSubscribe(t, br, tasks, 1, 10)
	registerAndSubscribe(t, br, tasks, 2, 20) // ack topic receiver

	sub := NewSubscriber(br, 1, 20)

	fresh := message.NewEnvelope(message.SmallPayloadSize)
	fresh.Header.SequenceNumber = 5
	require.NoError(t, br.Publish(10, fresh, 9))

	got, err := sub.Receive()
	require.NoError(t, err)
	assert.Equal(t, uint16(5), got.Header.SequenceNumber)

	stale := message.NewEnvelope(message.SmallPayloadSize)
	stale.Header.SequenceNumber = 5
	require.NoError(t, br.Publish(10, stale, 9))

	_, err = sub.Receive()
	assert.Error(t, err)
}

func TestSubscriber_AutoAcksRequiresAckMessages(t *testing.T) {
	br, tasks, _ := testSetup(t)
	registerAndSubscribe(t, br, tasks, 1, 10)
	registerAndSubscribe(t, br, tasks, 2, 20)

	sub := NewSubscriber(br, 1, 20)

	msg := message.NewEnvelope(message.SmallPayloadSize)
	msg.Header.SequenceNumber = 1
	msg.Header.Flags = message.FlagRequiresAck
	require.NoError(t, br.Publish(10, msg, 9))

	_, err := sub.Receive()
	require.NoError(t, err)

	ackEnvelope, err := br.TryReceive(2)
	require.NoError(t, err)
	ack, ok := message.DecodeAck(ackEnvelope.Data())
	require.True(t, ok)
	assert.Equal(t, uint16(1), ack.SequenceNumber)
}
