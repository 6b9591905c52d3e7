package conversync

import (
	"log/slog"
	"sync"

	"github.com/consultline/conversync/frame"
)

// EventKind is the closed set of frame kinds the dispatcher routes on.
type EventKind int

const (
	EventMessage EventKind = iota
	EventSystem
	EventConnect
	EventStatus

	// EventAny receives every dispatched frame in addition to the
	// kind-specific handlers.
	EventAny
)

// KindForType maps a wire event_type string onto an EventKind.
func KindForType(eventType string) (EventKind, bool) {
	switch eventType {
	case frame.TypeMessage:
		return EventMessage, true
	case frame.TypeSystem:
		return EventSystem, true
	case frame.TypeConnect:
		return EventConnect, true
	case frame.TypeStatus:
		return EventStatus, true
	}
	return 0, false
}

// Handler consumes one dispatched frame.
type Handler func(frame.Frame)

type registration struct {
	id int
	fn Handler
}

// Dispatcher fans inbound frames out to registered handlers without
// coupling the connection to consumer state. Dispatch is synchronous and
// in registration order; a panicking handler is isolated and logged, and
// the remaining handlers still run. No buffering or replay.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.Mutex
	nextID   int
	handlers map[EventKind][]registration
}

// NewDispatcher creates a dispatcher. A nil logger falls back to
// slog.Default.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger,
		handlers: make(map[EventKind][]registration),
	}
}

// Register adds a handler for one kind (or every kind via EventAny) and
// returns a registration ID for Unregister.
func (d *Dispatcher) Register(kind EventKind, h Handler) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.handlers[kind] = append(d.handlers[kind], registration{id: d.nextID, fn: h})
	return d.nextID
}

// Unregister removes a previously registered handler. Unknown IDs are a
// no-op.
func (d *Dispatcher) Unregister(kind EventKind, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	regs := d.handlers[kind]
	for i, r := range regs {
		if r.id == id {
			d.handlers[kind] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Dispatch routes one frame to its kind-specific handlers, then to the
// wildcard handlers. Frames with an event type outside the closed set
// never reach here (the codec rejects them).
func (d *Dispatcher) Dispatch(f frame.Frame) {
	kind, ok := KindForType(f.EventType)
	if !ok {
		d.logger.Warn("dropping frame with unroutable event type", "event_type", f.EventType)
		return
	}

	d.mu.Lock()
	run := make([]registration, 0, len(d.handlers[kind])+len(d.handlers[EventAny]))
	run = append(run, d.handlers[kind]...)
	run = append(run, d.handlers[EventAny]...)
	d.mu.Unlock()

	for _, r := range run {
		d.invoke(r, f)
	}
}

func (d *Dispatcher) invoke(r registration, f frame.Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("event handler panicked",
				"event_type", f.EventType,
				"conversation_id", f.ConversationID,
				"panic", rec,
			)
		}
	}()
	r.fn(f)
}
