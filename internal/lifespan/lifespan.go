// Package lifespan implements the Lifespan Coordinator: the process-lifetime
// state machine that drives the startup and shutdown handshakes and
// disables itself when the application does not speak lifespan.
//
// Grounded on internal/events/subscriber.go's Start(ctx)/Close() pair (a
// cancellable blocking phase bracketing the process) and, as a pattern
// reference only, tomtom215-cartographus/cmd/server/main.go's ordered
// staged startup.
package lifespan

import (
	"context"

	"github.com/streamgate/streamgate/internal/apperr"
	"github.com/streamgate/streamgate/internal/apphandle"
	"github.com/streamgate/streamgate/internal/asgievents"
	"github.com/streamgate/streamgate/internal/logging"
	"github.com/streamgate/streamgate/internal/scope"
)

// Phase names the coordinator's current machine state.
type Phase int

const (
	Created Phase = iota
	Startup
	Enabled
	Disabled
	ShuttingDown
	Terminal
)

// PhaseObserver is notified of lifespan phase transitions; the optional
// NATS relay implements this to publish lifespan.startup.complete /
// lifespan.shutdown.complete onto a subject.
type PhaseObserver interface {
	ObservePhase(phase string)
}

type noopObserver struct{}

func (noopObserver) ObservePhase(string) {}

// Coordinator runs the Created→Startup→{Enabled,Disabled}→Shutdown→Terminal
// machine around one Application Handle.
type Coordinator struct {
	handle   *apphandle.Handle
	observer PhaseObserver
	phase    Phase
}

// New builds a Coordinator around handle. observer may be nil.
func New(handle *apphandle.Handle, observer PhaseObserver) *Coordinator {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Coordinator{handle: handle, observer: observer, phase: Created}
}

// Phase returns the coordinator's current phase.
func (c *Coordinator) Phase() Phase { return c.phase }

// Startup spawns the application on sc and races sending lifespan.startup
// (then awaiting one event) against the application task's completion, per
// spec.md §4.3.
func (c *Coordinator) Startup(ctx context.Context, sc *scope.LifespanScope) error {
	c.phase = Startup
	c.handle.Call(ctx, sc)

	if err := c.handle.Bus().SendToApp(asgievents.LifespanStartup{}); err != nil {
		c.phase = Terminal
		return apperr.Wrap(apperr.UnexpectedShutdown, err, "failed to send lifespan.startup")
	}

	type result struct {
		evt asgievents.ApplicationSendEvent
		ok  bool
	}
	evtCh := make(chan result, 1)
	go func() {
		e, ok := c.handle.Bus().ReceiveFromApp()
		evtCh <- result{e, ok}
	}()

	select {
	case r := <-evtCh:
		return c.dispositionStartup(r.evt, r.ok)
	case <-c.handle.Done():
		// Application task completed. Its sentinel (if any) is already
		// queued and the app→server FIFO is closed, so this receive returns
		// at once: the sentinel, or !ok when nothing was emitted.
		r := <-evtCh
		return c.dispositionStartup(r.evt, r.ok)
	}
}

func (c *Coordinator) dispositionStartup(evt asgievents.ApplicationSendEvent, ok bool) error {
	log := logging.Lifespan()
	if !ok {
		c.phase = Terminal
		return apperr.NewUnexpectedShutdown("application", "stopped during startup")
	}

	switch e := evt.(type) {
	case asgievents.LifespanStartupComplete:
		c.phase = Enabled
		c.observer.ObservePhase("startup.complete")
		return nil
	case asgievents.LifespanStartupFailed:
		c.phase = Terminal
		return apperr.New(apperr.UnexpectedShutdown, e.Message)
	case asgievents.ErrorEvent:
		c.phase = Terminal
		return apperr.NewApplicationError(e.Message)
	default:
		// Any other event (including AppReturned): the application does not
		// speak lifespan. This is not an error.
		c.phase = Disabled
		log.Warn().Str("event", string(evt.SendKind())).Msg("application did not reply to lifespan.startup; disabling lifespan")
		return nil
	}
}

// Shutdown runs only when Enabled: sends lifespan.shutdown, awaits one
// event, and joins the application task.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if c.phase != Enabled {
		c.phase = Terminal
		return nil
	}
	c.phase = ShuttingDown

	if err := c.handle.Bus().SendToApp(asgievents.LifespanShutdown{}); err != nil {
		c.phase = Terminal
		return apperr.Wrap(apperr.UnexpectedShutdown, err, "failed to send lifespan.shutdown")
	}

	evt, ok := c.handle.Bus().ReceiveFromApp()
	c.phase = Terminal
	if !ok {
		return apperr.NewUnexpectedShutdown("application", "app→server channel closed during shutdown")
	}

	switch e := evt.(type) {
	case asgievents.LifespanShutdownComplete:
		c.observer.ObservePhase("shutdown.complete")
		<-c.handle.Done()
		return nil
	case asgievents.LifespanShutdownFailed:
		<-c.handle.Done()
		return apperr.New(apperr.UnexpectedShutdown, e.Message)
	case asgievents.ErrorEvent, asgievents.AppReturnedEvent:
		return apperr.NewUnexpectedShutdown("application", "unexpected shutdown")
	default:
		return apperr.New(apperr.InvalidAsgiMessage, "invalid event during lifespan shutdown")
	}
}
