package eventbus

import (
	"sync"

	"github.com/firmcore/runtime/internal/corerr"
)

// Handler receives dispatched events, mirroring events::handler_t
// (etl::delegate<void(const Event&)>) as a plain Go function value.
type Handler func(evt Event)

type handlerRegistration struct {
	ident  ID
	fn     Handler
	active bool
}

// Bus is a bounded-queue, wildcard-dispatching event bus, ported from
// events::event_bus.
type Bus struct {
	mu sync.Mutex

	maxHandlers int
	queueCap    int

	handlers []*handlerRegistration
	queue    []Event
}

// New constructs a Bus with the given handler-table and queue
// capacities.
func New(maxHandlers, queueCap int) *Bus {
	return &Bus{maxHandlers: maxHandlers, queueCap: queueCap}
}

// RegisterHandler adds a handler matching ident (use CategoryAny
// and/or CodeAny for wildcard matching), rejecting once the handler
// table is full.
func (b *Bus) RegisterHandler(ident ID, fn Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.handlers) >= b.maxHandlers {
		return corerr.New("eventbus.Bus.RegisterHandler", corerr.OutOfMemory)
	}
	b.handlers = append(b.handlers, &handlerRegistration{ident: ident, fn: fn, active: true})
	return nil
}

// UnregisterHandler deactivates the first active handler matching
// ident exactly.
func (b *Bus) UnregisterHandler(ident ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range b.handlers {
		if h.active && h.ident.Category == ident.Category && h.ident.Code == ident.Code {
			h.active = false
			return true
		}
	}
	return false
}

// Post enqueues evt for later Process, rejecting once the queue is
// full.
func (b *Bus) Post(evt Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) >= b.queueCap {
		return corerr.New("eventbus.Bus.Post", corerr.OutOfMemory)
	}
	b.queue = append(b.queue, evt)
	return nil
}

// PostEvent is the convenience-builder form of Post.
func (b *Bus) PostEvent(cat Category, code uint16, level Severity, flags Flags) error {
	return b.Post(Make(cat, code, level, flags))
}

// Process drains up to maxEvents queued events (all of them if
// maxEvents <= 0), dispatching each synchronously, and returns the
// count processed.
func (b *Bus) Process(maxEvents int) int {
	count := 0
	for {
		if maxEvents > 0 && count >= maxEvents {
			break
		}
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			break
		}
		evt := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.Dispatch(evt)
		count++
	}
	return count
}

// Dispatch delivers evt immediately to every active handler whose
// ident matches (category=CategoryAny or code=CodeAny act as
// wildcards), bypassing the queue entirely.
func (b *Bus) Dispatch(evt Event) {
	b.mu.Lock()
	matching := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		if !h.active {
			continue
		}
		catMatch := h.ident.Category == CategoryAny || h.ident.Category == evt.ID.Category
		codeMatch := h.ident.Code == CodeAny || h.ident.Code == evt.ID.Code
		if catMatch && codeMatch {
			matching = append(matching, h.fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range matching {
		fn(evt)
	}
}

// Pending reports the number of queued, undelivered events.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// ActiveHandlers reports the number of registered handlers that have
// not been unregistered.
func (b *Bus) ActiveHandlers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, h := range b.handlers {
		if h.active {
			n++
		}
	}
	return n
}
