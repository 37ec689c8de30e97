// Package wscoordinator implements the WebSocket Coordinator: the
// accept/deny handshake followed by the Connected loop's inbound/outbound
// pumps.
//
// Grounded on internal/handlers/websocket_enterprise.go's readPump/writePump
// (ping/pong keep-alive, single-writer discipline) and
// internal/websocket/notifier.go.
package wscoordinator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/streamgate/streamgate/internal/apperr"
	"github.com/streamgate/streamgate/internal/apphandle"
	"github.com/streamgate/streamgate/internal/asgievents"
	"github.com/streamgate/streamgate/internal/logging"
	"github.com/streamgate/streamgate/internal/wsconn"
)

// synthesizedDisconnectCode is the application-facing code used when the
// peer closed without sending one (spec.md §4.5: "1005 = no status
// received, per standard conventions").
const synthesizedDisconnectCode uint16 = 1005

// Coordinator drives one WebSocket connection's handshake and connected
// loop for an already spawned Application Handle.
type Coordinator struct {
	handle *apphandle.Handle
}

// New builds a Coordinator around handle.
func New(handle *apphandle.Handle) *Coordinator {
	return &Coordinator{handle: handle}
}

// Run performs the accept/deny handshake and, if accepted, the Connected
// loop. It always performs teardown (websocket.disconnect with code 1005,
// then ServerDone) exactly once before returning, whether the connection
// was ever upgraded or not: a deny, which never reaches Connected, also
// delivers websocket.disconnect, and ServerDone releases the application's
// send() calls.
func (c *Coordinator) Run(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	log := logging.WS()

	var serverDoneOnce sync.Once
	serverDone := func() { serverDoneOnce.Do(c.handle.ServerDone) }

	var disconnectOnce sync.Once
	teardown := func(code uint16) {
		disconnectOnce.Do(func() {
			_ = c.handle.Bus().SendToApp(asgievents.WebsocketDisconnect{Code: code})
		})
		serverDone()
	}

	if err := c.handle.Bus().SendToApp(asgievents.WebsocketConnect{}); err != nil {
		teardown(synthesizedDisconnectCode)
		return apperr.Wrap(apperr.Transport, err, "failed to send websocket.connect")
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

	var evt asgievents.ApplicationSendEvent
	var ok bool
	select {
	case r := <-evtCh:
		evt, ok = r.evt, r.ok
	case <-c.handle.Done():
		// The app→server FIFO is closed once Done fires, so this receive
		// returns at once with whatever the application queued.
		r := <-evtCh
		evt, ok = r.evt, r.ok
	}
	if !ok {
		teardown(synthesizedDisconnectCode)
		return apperr.NewUnexpectedShutdown("application", "application stopped during handshake")
	}

	switch e := evt.(type) {
	case asgievents.WebsocketAccept:
		headers := http.Header{}
		for _, h := range e.Headers {
			headers.Add(string(h.Name), string(h.Value))
		}
		subprotocol := ""
		if e.Subprotocol != nil {
			// Open Question 2: forwarded verbatim, unvalidated against the
			// client's offered list.
			subprotocol = *e.Subprotocol
		}
		conn, err := wsconn.Upgrade(w, r, subprotocol, headers)
		if err != nil {
			teardown(synthesizedDisconnectCode)
			return apperr.Wrap(apperr.Transport, err, "websocket upgrade failed")
		}
		defer serverDone()
		return c.connected(ctx, conn)

	case asgievents.WebsocketClose:
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(e.Reason))
		teardown(synthesizedDisconnectCode)
		return nil

	case asgievents.ErrorEvent, asgievents.AppReturnedEvent:
		teardown(synthesizedDisconnectCode)
		return apperr.NewUnexpectedShutdown("application", "application stopped during handshake")

	default:
		log.Warn().Str("event", string(evt.SendKind())).Msg("invalid event during websocket handshake")
		teardown(synthesizedDisconnectCode)
		return apperr.New(apperr.InvalidAsgiMessage, "invalid event during websocket handshake")
	}
}

// connected runs the inbound and outbound pumps concurrently until either
// breaks, per spec.md §4.5. Whichever pump breaks first signals `done`;
// that signal also immediately sends websocket.disconnect so an application
// blocked in receive() (e.g. because the peer closed first) unblocks and
// can return, which in turn lets the outbound pump observe AppReturned and
// exit instead of waiting forever on a peer that already hung up.
func (c *Coordinator) connected(ctx context.Context, conn *wsconn.Conn) error {
	log := logging.WS()
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			_ = c.handle.Bus().SendToApp(asgievents.WebsocketDisconnect{Code: synthesizedDisconnectCode})
			close(done)
		})
	}

	var wg sync.WaitGroup
	var outErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		c.inboundPump(conn, done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		outErr = c.outboundPump(conn, done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pingLoop(conn, done)
	}()

	wg.Wait()
	_ = conn.Close()
	if outErr != nil {
		log.Warn().Err(outErr).Msg("websocket connected loop ended with error")
	}
	return outErr
}

// inboundPump translates wire frames into websocket.receive events until a
// Close frame or read error breaks the pump.
func (c *Coordinator) inboundPump(conn *wsconn.Conn, done <-chan struct{}) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case wsconn.KindClose:
			return
		case wsconn.KindText:
			text := string(data)
			if sendErr := c.handle.Bus().SendToApp(asgievents.WebsocketReceive{Text: &text}); sendErr != nil {
				return
			}
		case wsconn.KindBinary:
			b := append([]byte(nil), data...)
			if sendErr := c.handle.Bus().SendToApp(asgievents.WebsocketReceive{Bytes: &b}); sendErr != nil {
				return
			}
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

// outboundPump translates ApplicationSendEvents into wire frames until a
// websocket.close event, an invalid event, or the pump's done signal breaks
// it.
func (c *Coordinator) outboundPump(conn *wsconn.Conn, done <-chan struct{}) error {
	for {
		evt, ok := c.handle.Bus().ReceiveFromApp()
		if !ok {
			return nil
		}

		switch e := evt.(type) {
		case asgievents.WebsocketSend:
			if e.Text != nil {
				if err := conn.WriteText(*e.Text); err != nil {
					return apperr.Wrap(apperr.Transport, err, "websocket write failed")
				}
			} else if e.Bytes != nil {
				if err := conn.WriteBinary(*e.Bytes); err != nil {
					return apperr.Wrap(apperr.Transport, err, "websocket write failed")
				}
			}
		case asgievents.WebsocketClose:
			code := int(e.Code)
			if e.Code == 0 {
				code = int(asgievents.DefaultCloseCode)
			}
			_ = conn.WriteClose(code, e.Reason)
			return nil
		case asgievents.ErrorEvent:
			_ = conn.WriteClose(1011, "Internal server error")
			return apperr.NewApplicationError(e.Message)
		case asgievents.AppReturnedEvent:
			_ = conn.WriteClose(1011, "Internal server error")
			return apperr.NewUnexpectedShutdown("application", "application quit while websocket open")
		default:
			_ = conn.WriteClose(1011, "Internal server error")
			return apperr.New(apperr.InvalidAsgiMessage, "unexpected event on websocket outbound pump")
		}

		select {
		case <-done:
			return nil
		default:
		}
	}
}

func (c *Coordinator) pingLoop(conn *wsconn.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsconn.PingPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WritePing(); err != nil {
				return
			}
		}
	}
}
