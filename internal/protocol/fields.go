package protocol

import "github.com/firmcore/runtime/internal/corerr"

// FieldType enumerates the wire field kinds the original protocol/
// decoder.hpp's FieldType enum names: U8, U16, U32, U8_ARRAY (variable
// length, consumes the rest of the packet).
type FieldType uint8

const (
	FieldU8 FieldType = iota
	FieldU16
	FieldU32
	FieldU8Array
)

// FieldDef names one field of an opcode's wire layout. Go has no
// offsetof, so where the original walked a struct via
// field_def.offset, a layout here is consulted purely to know each
// field's wire type and iteration order; encode/decode work against an
// ordered []FieldValue the caller builds from/into their own struct.
type FieldDef struct {
	Name string
	Type FieldType
}

// FieldValue carries one field's value, tagged by type. Exactly one of
// U8/U16/U32/Bytes is meaningful, matching Type.
type FieldValue struct {
	Type  FieldType
	U8    uint8
	U16   uint16
	U32   uint32
	Bytes []byte
}

// LayoutTable maps opcode to its ordered field layout, the Go analog of
// the original encoder/decoder's per-opcode etl::array<field_layout,
// OpcodeSpace>.
type LayoutTable struct {
	layouts map[uint8][]FieldDef
}

// NewLayoutTable constructs an empty LayoutTable.
func NewLayoutTable() *LayoutTable {
	return &LayoutTable{layouts: make(map[uint8][]FieldDef)}
}

// SetFieldLayout registers the field layout for opcode.
func (t *LayoutTable) SetFieldLayout(opcode uint8, fields []FieldDef) {
	t.layouts[opcode] = fields
}

func (t *LayoutTable) layoutFor(opcode uint8) ([]FieldDef, bool) {
	f, ok := t.layouts[opcode]
	return f, ok
}

func fieldWireLen(fd FieldDef, v FieldValue) uint16 {
	switch fd.Type {
	case FieldU8:
		return 1
	case FieldU16:
		return 2
	case FieldU32:
		return 4
	case FieldU8Array:
		return uint16(len(v.Bytes))
	default:
		return 0
	}
}

// EncodeCommand serializes values (in layout order for opcode) into a
// payload byte slice, the stateless path matching encoder.hpp's
// encode_command: big-endian multi-byte fields, U8_ARRAY inlined
// verbatim. It returns only the payload and adds no sync/opcode/
// length/checksum framing; StreamEncoder is the one encoder in this
// package that emits a framed packet.
func (t *LayoutTable) EncodeCommand(opcode uint8, values []FieldValue) ([]byte, error) {
	layout, ok := t.layoutFor(opcode)
	if !ok || len(layout) == 0 {
		return nil, corerr.New("protocol.LayoutTable.EncodeCommand", corerr.NotFound)
	}
	if len(values) != len(layout) {
		return nil, corerr.New("protocol.LayoutTable.EncodeCommand", corerr.InvalidParameter)
	}

	var out []byte
	for i, fd := range layout {
		v := values[i]
		if v.Type != fd.Type {
			return nil, corerr.New("protocol.LayoutTable.EncodeCommand", corerr.InvalidParameter)
		}
		switch fd.Type {
		case FieldU8:
			out = append(out, v.U8)
		case FieldU16:
			out = append(out, byte(v.U16>>8), byte(v.U16&0xFF))
		case FieldU32:
			out = append(out, byte(v.U32>>24), byte(v.U32>>16), byte(v.U32>>8), byte(v.U32&0xFF))
		case FieldU8Array:
			out = append(out, v.Bytes...)
		}
	}
	return out, nil
}

// DecodeFields parses pkt's payload into []FieldValue per opcode's
// layout, ported from decoder.hpp's decode_fields/decode_single_field.
// A FieldU8Array field's Bytes is a sub-slice of pkt.Data itself (not a
// copy): it is borrowed for as long as pkt is not reused/reset, the same
// borrow-duration contract the original's "store pointer into source
// data" encoding carried over into Go slice semantics.
func (t *LayoutTable) DecodeFields(pkt *Packet) ([]FieldValue, error) {
	layout, ok := t.layoutFor(pkt.Opcode)
	if !ok || len(layout) == 0 {
		return nil, corerr.New("protocol.LayoutTable.DecodeFields", corerr.NotFound)
	}

	values := make([]FieldValue, 0, len(layout))
	offset := uint16(0)
	data := pkt.Data[:pkt.Length]

	for _, fd := range layout {
		switch fd.Type {
		case FieldU8:
			if offset >= pkt.Length {
				return nil, corerr.New("protocol.LayoutTable.DecodeFields", corerr.InvalidParameter)
			}
			values = append(values, FieldValue{Type: FieldU8, U8: data[offset]})
			offset++
		case FieldU16:
			if offset+1 >= pkt.Length {
				return nil, corerr.New("protocol.LayoutTable.DecodeFields", corerr.InvalidParameter)
			}
			v := uint16(data[offset])<<8 | uint16(data[offset+1])
			values = append(values, FieldValue{Type: FieldU16, U16: v})
			offset += 2
		case FieldU32:
			if offset+3 >= pkt.Length {
				return nil, corerr.New("protocol.LayoutTable.DecodeFields", corerr.InvalidParameter)
			}
			v := uint32(data[offset])<<24 | uint32(data[offset+1])<<16 | uint32(data[offset+2])<<8 | uint32(data[offset+3])
			values = append(values, FieldValue{Type: FieldU32, U32: v})
			offset += 4
		case FieldU8Array:
			if offset >= pkt.Length {
				return nil, corerr.New("protocol.LayoutTable.DecodeFields", corerr.InvalidParameter)
			}
			values = append(values, FieldValue{Type: FieldU8Array, Bytes: data[offset:pkt.Length]})
			offset = pkt.Length
		}
	}
	return values, nil
}
