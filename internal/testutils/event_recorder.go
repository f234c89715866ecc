package testutils

import (
	"sync"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/srg/blegatt/internal/events"
)

// EventRecorder is an events.Handler that keeps everything it receives.
type EventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

func (r *EventRecorder) HandleEvent(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in delivery order.
func (r *EventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Types returns the recorded event types in delivery order.
func (r *EventRecorder) Types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// Of returns the recorded events of type t.
func (r *EventRecorder) Of(t events.Type) []events.Event {
	var out []events.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent event; ok is false when nothing was recorded.
func (r *EventRecorder) Last() (e events.Event, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return events.Event{}, false
	}
	return r.events[len(r.events)-1], true
}

func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// WaitFor polls until an event of type typ has been recorded, failing t after timeout.
func (r *EventRecorder) WaitFor(t assert.TestingT, typ events.Type, timeout time.Duration) bool {
	return assert.Eventually(t, func() bool {
		return len(r.Of(typ)) > 0
	}, timeout, 5*time.Millisecond, "%s MUST be delivered within %s", typ, timeout)
}
