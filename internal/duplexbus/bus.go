// Package duplexbus implements the per-invocation Duplex Event Bus: a pair
// of bounded, per-direction FIFO channels connecting one server-side
// coordinator to one application task.
//
// Grounded on internal/handlers/websocket_enterprise.go's WebSocketHub
// channel topology (register/unregister/broadcast channels feeding a single
// Run() select loop): this generalizes that hub-and-spoke shape from "one
// hub, many broadcast clients" to "one bus, two directions, one
// application."
package duplexbus

import (
	"sync"

	"github.com/streamgate/streamgate/internal/apperr"
	"github.com/streamgate/streamgate/internal/asgievents"
)

// DefaultCapacity is the default per-direction channel capacity (spec.md
// §4.1 allows 32-64; SPEC_FULL.md Open Question 1 fixes 64 as the default).
const DefaultCapacity = 64

// Bus is a per-invocation pair of bounded FIFOs. toApp carries
// ApplicationReceiveEvents from the server to the application; fromApp
// carries ApplicationSendEvents from the application to the server.
type Bus struct {
	toApp   chan asgievents.ApplicationReceiveEvent
	fromApp chan asgievents.ApplicationSendEvent

	doneOnce sync.Once
	done     chan struct{}
}

// New creates a Bus with the given per-direction capacity. Capacity <= 0
// falls back to DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		toApp:   make(chan asgievents.ApplicationReceiveEvent, capacity),
		fromApp: make(chan asgievents.ApplicationSendEvent, capacity),
		done:    make(chan struct{}),
	}
}

// SendToApp enqueues e onto the server→app FIFO. It blocks on backpressure
// and fails with DisconnectedClient if ServerDone has already been called.
func (b *Bus) SendToApp(e asgievents.ApplicationReceiveEvent) error {
	select {
	case <-b.done:
		return apperr.NewDisconnectedClient()
	default:
	}

	select {
	case b.toApp <- e:
		return nil
	case <-b.done:
		return apperr.NewDisconnectedClient()
	}
}

// ReceiveFromApp awaits and returns the next event the application sends.
// It returns (nil, false) once the application side has closed fromApp and
// the channel is drained.
func (b *Bus) ReceiveFromApp() (asgievents.ApplicationSendEvent, bool) {
	e, ok := <-b.fromApp
	return e, ok
}

// AppEndpoints returns the application-facing pair spec.md §3 describes as
// "two closures that wrap the other ends": receive awaits the next event
// the server sent; send enqueues an event for the server to consume and
// fails with DisconnectedClient once ServerDone has been called, per
// spec.md §6 and the glossary's "Server-done" entry; close closes the
// app→server FIFO and must be called exactly once, after the application
// task returns (apphandle is the sole caller).
func (b *Bus) AppEndpoints() (receive func() (asgievents.ApplicationReceiveEvent, bool), send func(asgievents.ApplicationSendEvent) error, closeSend func()) {
	receive = func() (asgievents.ApplicationReceiveEvent, bool) {
		select {
		case e, ok := <-b.toApp:
			return e, ok
		case <-b.done:
			return nil, false
		}
	}
	send = func(e asgievents.ApplicationSendEvent) error {
		select {
		case <-b.done:
			return apperr.NewDisconnectedClient()
		default:
		}

		select {
		case b.fromApp <- e:
			return nil
		case <-b.done:
			return apperr.NewDisconnectedClient()
		}
	}
	closeSend = func() {
		close(b.fromApp)
	}
	return receive, send, closeSend
}

// ServerDone closes the server→app FIFO so any further SendToApp call (and
// any application receive() already blocked on it) fails/unblocks with
// DisconnectedClient / a closed channel. Idempotent.
func (b *Bus) ServerDone() {
	b.doneOnce.Do(func() {
		close(b.done)
	})
}
