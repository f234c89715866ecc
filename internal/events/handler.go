package events

import (
	"github.com/Arceliar/phony"
	"github.com/sirupsen/logrus"
)

// Handler consumes events. Calls for one Dispatcher never overlap.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event)

func (f HandlerFunc) HandleEvent(e Event) { f(e) }

// Chan returns a Handler that forwards into ch, blocking while ch is full.
func Chan(ch chan<- Event) Handler {
	return HandlerFunc(func(e Event) { ch <- e })
}

// Dispatcher delivers events to a Handler from its own actor queue, in emission order.
// Emitters never wait for the handler.
type Dispatcher struct {
	phony.Inbox
	handler Handler
	logger  *logrus.Logger
}

// NewDispatcher wraps h. A nil handler discards events.
func NewDispatcher(h Handler, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if h == nil {
		h = HandlerFunc(func(Event) {})
	}
	return &Dispatcher{handler: h, logger: logger}
}

// Emit queues e for delivery.
func (d *Dispatcher) Emit(e Event) {
	d.Act(nil, func() {
		d.logger.WithField("event", e.Type.String()).Debug("Dispatching event")
		d.handler.HandleEvent(e)
	})
}

// Flush waits until every event emitted before the call has been handled.
func (d *Dispatcher) Flush() {
	phony.Block(d, func() {})
}
