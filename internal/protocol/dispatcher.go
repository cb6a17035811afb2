package protocol

// Handler processes a fully parsed packet.
type Handler func(pkt *Packet)

// RegResult mirrors command_dispatcher's reg_result: ok_new,
// ok_replaced, full.
type RegResult uint8

const (
	RegOKNew RegResult = iota
	RegOKReplaced
	RegFull
)

type dispatchEntry struct {
	opcode uint8
	fn     Handler
	used   bool
}

// Dispatcher is the fixed-capacity opcode-to-handler table, ported from
// protocol/command_dispatcher.hpp: replace-on-register, O(1) swap-
// remove deregistration, and an optional unknown-opcode fallback.
type Dispatcher struct {
	table   []dispatchEntry
	size    int
	unknown Handler
}

// NewDispatcher constructs a Dispatcher with the given fixed handler
// capacity.
func NewDispatcher(capacity uint32) *Dispatcher {
	return &Dispatcher{table: make([]dispatchEntry, capacity)}
}

func (d *Dispatcher) Capacity() int { return len(d.table) }
func (d *Dispatcher) Size() int     { return d.size }

// TryRegisterHandler registers or replaces the handler for opcode.
func (d *Dispatcher) TryRegisterHandler(opcode uint8, fn Handler) RegResult {
	for i := 0; i < d.size; i++ {
		if d.table[i].used && d.table[i].opcode == opcode {
			d.table[i].fn = fn
			return RegOKReplaced
		}
	}
	if d.size >= len(d.table) {
		return RegFull
	}
	d.table[d.size] = dispatchEntry{opcode: opcode, fn: fn, used: true}
	d.size++
	return RegOKNew
}

// RegisterHandler is the legacy bool-returning form: false only on
// RegFull.
func (d *Dispatcher) RegisterHandler(opcode uint8, fn Handler) bool {
	return d.TryRegisterHandler(opcode, fn) != RegFull
}

// DeregisterHandler removes the handler for opcode via swap-remove,
// returning whether one was present.
func (d *Dispatcher) DeregisterHandler(opcode uint8) bool {
	for i := 0; i < d.size; i++ {
		if d.table[i].used && d.table[i].opcode == opcode {
			d.table[i] = d.table[d.size-1]
			d.table[d.size-1] = dispatchEntry{}
			d.size--
			return true
		}
	}
	return false
}

// HasHandler reports whether opcode has a registered handler.
func (d *Dispatcher) HasHandler(opcode uint8) bool {
	for i := 0; i < d.size; i++ {
		if d.table[i].used && d.table[i].opcode == opcode {
			return true
		}
	}
	return false
}

// GetHandler returns the handler for opcode, or nil.
func (d *Dispatcher) GetHandler(opcode uint8) Handler {
	for i := 0; i < d.size; i++ {
		if d.table[i].used && d.table[i].opcode == opcode {
			return d.table[i].fn
		}
	}
	return nil
}

// SetUnknownHandler installs the fallback invoked when no opcode
// matches.
func (d *Dispatcher) SetUnknownHandler(fn Handler) { d.unknown = fn }

// Clear removes every registered handler.
func (d *Dispatcher) Clear() {
	for i := range d.table {
		d.table[i] = dispatchEntry{}
	}
	d.size = 0
	d.unknown = nil
}

// Dispatch routes pkt to its registered handler, or the unknown
// handler if none matches.
func (d *Dispatcher) Dispatch(pkt *Packet) {
	for i := 0; i < d.size; i++ {
		if d.table[i].used && d.table[i].opcode == pkt.Opcode {
			if d.table[i].fn != nil {
				d.table[i].fn(pkt)
			}
			return
		}
	}
	if d.unknown != nil {
		d.unknown(pkt)
	}
}
