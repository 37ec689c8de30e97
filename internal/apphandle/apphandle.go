// Package apphandle implements the Application Handle: it owns the
// cloneable application callable, the bus endpoints, and (after Call) the
// spawned application task's completion.
//
// The Application interface fills the role the teacher's PluginHandler
// interface fills in internal/plugins/base_plugin.go: a single polymorphic
// capability with multiple implementations — "the real embedded coroutine"
// here plays the part BasePlugin's concrete plugins play there, and a
// scripted test double plays the part a no-op plugin override plays.
package apphandle

import (
	"context"

	"github.com/streamgate/streamgate/internal/asgievents"
	"github.com/streamgate/streamgate/internal/duplexbus"
)

// Receive is the function type handed to the application for pulling the
// next ApplicationReceiveEvent. Safe to call repeatedly; each call returns a
// fresh result tied to the bus's current state.
type Receive func() (asgievents.ApplicationReceiveEvent, bool)

// Send is the function type handed to the application for emitting an
// ApplicationSendEvent. Safe to call repeatedly; returns once the event is
// enqueued, or fails with apperr.DisconnectedClient once the server side
// has called ServerDone (spec.md §6, glossary "Server-done").
type Send func(asgievents.ApplicationSendEvent) error

// Application is the polymorphic capability the core invokes once per
// scope: a three-argument callable returning an error. Implementations must
// be safe to invoke on a fresh goroutine and must be cloneable (a zero-cost
// operation for a stateless struct, or an explicit Clone for one that
// isn't).
type Application interface {
	Call(ctx context.Context, scope any, receive Receive, send Send) error
}

// Handle wraps one invocation of an Application: its bus, the spawned
// task's completion signal, and the error (if any) it returned.
type Handle struct {
	app  Application
	bus  *duplexbus.Bus
	done chan struct{}
	err  error
}

// New builds a Handle around app and a fresh bus of the given per-direction
// capacity.
func New(app Application, busCapacity int) *Handle {
	return &Handle{
		app:  app,
		bus:  duplexbus.New(busCapacity),
		done: make(chan struct{}),
	}
}

// Bus returns the server-side bus endpoints (SendToApp / ReceiveFromApp /
// ServerDone).
func (h *Handle) Bus() *duplexbus.Bus { return h.bus }

// Call spawns the application coroutine as a goroutine and returns
// immediately. The task invokes app.Call with fresh receive/send closures
// bound to h's bus. On return, the Application Handle injects the sentinel
// events spec.md §4.2 requires:
//
//   - application returned an error: inject ErrorEvent(message), then close
//     the app→server FIFO.
//   - application returned nil and the FIFO is still writable: inject
//     AppReturnedEvent, then close the app→server FIFO.
//
// Either way, h.Done() closes once the task and its sentinel injection have
// completed.
func (h *Handle) Call(ctx context.Context, sc any) {
	receive, send, closeSend := h.bus.AppEndpoints()

	go func() {
		defer close(h.done)
		defer closeSend()

		err := h.app.Call(ctx, sc, receive, Send(send))
		h.err = err

		// Best-effort: if the server side has already torn the bus down,
		// these sentinel sends fail with DisconnectedClient and are
		// dropped, which is fine — there is no coordinator left to observe
		// them.
		if err != nil {
			_ = send(asgievents.ErrorEvent{Message: err.Error()})
			return
		}
		_ = send(asgievents.AppReturnedEvent{})
	}()
}

// Done returns a channel that closes once the spawned application task (and
// its sentinel injection) has completed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the error the application task returned, valid only after
// Done() has closed.
func (h *Handle) Err() error { return h.err }

// ServerDone closes the server→app FIFO. Idempotent; safe to call from any
// coordinator teardown path, repeatedly.
func (h *Handle) ServerDone() { h.bus.ServerDone() }
