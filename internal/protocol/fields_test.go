package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutTable_EncodeDecodeRoundTrip(t *testing.T) {
	lt := NewLayoutTable()
	lt.SetFieldLayout(0x10, []FieldDef{
		{Name: "id", Type: FieldU16},
		{Name: "flags", Type: FieldU8},
		{Name: "payload", Type: FieldU8Array},
	})

	values := []FieldValue{
		{Type: FieldU16, U16: 0x1234},
		{Type: FieldU8, U8: 0x07},
		{Type: FieldU8Array, Bytes: []byte("hello")},
	}

	payload, err := lt.EncodeCommand(0x10, values)
	require.NoError(t, err)

	var pkt Packet
	pkt.Opcode = 0x10
	pkt.Length = uint16(copy(pkt.Data[:], payload))

	decoded, err := lt.DecodeFields(&pkt)
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	assert.Equal(t, uint16(0x1234), decoded[0].U16)
	assert.Equal(t, uint8(0x07), decoded[1].U8)
	assert.Equal(t, []byte("hello"), decoded[2].Bytes)
}

func TestLayoutTable_DecodeUnknownOpcode(t *testing.T) {
	lt := NewLayoutTable()
	var pkt Packet
	pkt.Opcode = 0xFF
	_, err := lt.DecodeFields(&pkt)
	assert.Error(t, err)
}

func TestLayoutTable_EncodeWrongArity(t *testing.T) {
	lt := NewLayoutTable()
	lt.SetFieldLayout(0x01, []FieldDef{{Name: "x", Type: FieldU8}})
	_, err := lt.EncodeCommand(0x01, nil)
	assert.Error(t, err)
}

func TestLayoutTable_U8ArrayBorrowsPacketBuffer(t *testing.T) {
	lt := NewLayoutTable()
	lt.SetFieldLayout(0x02, []FieldDef{{Name: "blob", Type: FieldU8Array}})

	var pkt Packet
	pkt.Opcode = 0x02
	pkt.Length = uint16(copy(pkt.Data[:], []byte("abc")))

	decoded, err := lt.DecodeFields(&pkt)
	require.NoError(t, err)
	// mutating the packet's backing array is observed through the
	// borrowed slice, demonstrating it is not a copy.
	pkt.Data[0] = 'z'
	assert.Equal(t, byte('z'), decoded[0].Bytes[0])
}

func TestStreamEncoder_MatchesOneShot(t *testing.T) {
	cfg := DefaultParserConfig()
	lt := NewLayoutTable()
	lt.SetFieldLayout(0x05, []FieldDef{{Name: "v", Type: FieldU32}})
	payload, err := lt.EncodeCommand(0x05, []FieldValue{{Type: FieldU32, U32: 0xDEADBEEF}})
	require.NoError(t, err)

	want := buildFrame(cfg, 0x05, payload)

	enc := NewStreamEncoder(cfg)
	enc.Start(0x05, payload)
	var got []byte
	for {
		b, ok := enc.Step()
		if !ok {
			break
		}
		got = append(got, b)
		if enc.Done() {
			break
		}
	}
	assert.Equal(t, want, got)
}
