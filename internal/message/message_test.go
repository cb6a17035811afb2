package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_SetDataAndFlags(t *testing.T) {
	e := NewEnvelope(MediumPayloadSize)
	require.True(t, e.SetData([]byte("hello")))
	assert.Equal(t, "hello", string(e.Data()))

	e.Header.Flags = FlagUrgent | FlagRequiresAck
	assert.True(t, e.HasFlag(FlagUrgent))
	assert.False(t, e.HasFlag(FlagBroadcast))
}

func TestEnvelope_SetDataTooLarge(t *testing.T) {
	e := NewEnvelope(SmallPayloadSize)
	assert.False(t, e.SetData(make([]byte, SmallPayloadSize+1)))
}

func TestAck_EncodeDecodeRoundTrip(t *testing.T) {
	ack := Ack{SequenceNumber: 42, SenderID: 7, Success: true, ErrorCode: 3}
	b := EncodeAck(ack)
	got, ok := DecodeAck(b)
	require.True(t, ok)
	assert.Equal(t, ack, got)
}
