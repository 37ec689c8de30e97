// Package httpcoordinator implements the HTTP Request Coordinator: the
// per-request body forwarder + response-builder state machine.
//
// Grounded on internal/middleware/sizelimit.go's http.MaxBytesReader guard
// (generalized here to the max_body_bytes/413 read-error path) and the
// teacher's general request/response handler shape under
// internal/handlers/*.
package httpcoordinator

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/streamgate/streamgate/internal/apperr"
	"github.com/streamgate/streamgate/internal/apphandle"
	"github.com/streamgate/streamgate/internal/asgievents"
	"github.com/streamgate/streamgate/internal/logging"
)

// bodyChunkSize bounds how much of the request body is read per
// http.request event.
const bodyChunkSize = 32 * 1024

// responseState is the Init→Streaming→Done machine for app→server events.
type responseState int

const (
	stateInit responseState = iota
	stateStreaming
	stateDone
)

// Coordinator drives one HTTP request/response exchange for an already
// spawned Application Handle.
type Coordinator struct {
	handle *apphandle.Handle
}

// New builds a Coordinator around handle.
func New(handle *apphandle.Handle) *Coordinator {
	return &Coordinator{handle: handle}
}

// Run forwards body from r to the application, drives the response state
// machine, and writes the result onto w. It always performs teardown
// (http.disconnect + ServerDone) before returning, exactly once, per
// spec.md §4.4.
func (c *Coordinator) Run(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	log := logging.HTTP()

	var teardownOnce sync.Once
	teardown := func() {
		teardownOnce.Do(func() {
			_ = c.handle.Bus().SendToApp(asgievents.HTTPDisconnect{})
			c.handle.ServerDone()
		})
	}
	defer teardown()

	fwErrCh := make(chan error, 1)
	go func() {
		fwErrCh <- c.forwardBody(r.Body)
	}()

	respErr := c.driveResponse(ctx, w)

	select {
	case err := <-fwErrCh:
		if err != nil {
			log.Warn().Err(err).Msg("request body forwarder error")
		}
	case <-ctx.Done():
	}

	return respErr
}

// forwardBody reads body in chunks, emitting http.request events. It always
// emits a final event with more_body=false, even for an empty body, so the
// application's first receive() never blocks forever. Each chunk is held
// back until the next read, so the last chunk travels in the final event.
func (c *Coordinator) forwardBody(body io.ReadCloser) error {
	defer body.Close()

	buf := make([]byte, bodyChunkSize)
	var pending []byte
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if pending != nil {
				if sendErr := c.handle.Bus().SendToApp(asgievents.HTTPRequest{Body: pending, MoreBody: true}); sendErr != nil {
					return sendErr
				}
			}
			pending = make([]byte, n)
			copy(pending, buf[:n])
		}
		if err == io.EOF {
			return c.handle.Bus().SendToApp(asgievents.HTTPRequest{Body: pending, MoreBody: false})
		}
		if err != nil {
			if pending != nil {
				_ = c.handle.Bus().SendToApp(asgievents.HTTPRequest{Body: pending, MoreBody: true})
			}
			_ = c.handle.Bus().SendToApp(asgievents.HTTPRequest{Body: nil, MoreBody: false})
			return apperr.Wrap(apperr.Transport, err, "request body read failed")
		}
	}
}

// driveResponse awaits ApplicationSendEvents and materializes status,
// headers and a streamed body onto w.
func (c *Coordinator) driveResponse(ctx context.Context, w http.ResponseWriter) error {
	state := stateInit
	headersSent := false

	for {
		evt, ok := c.handle.Bus().ReceiveFromApp()
		if !ok {
			if headersSent {
				return apperr.NewUnexpectedShutdown("application", "application quit while open http connection")
			}
			w.WriteHeader(http.StatusInternalServerError)
			return apperr.NewUnexpectedShutdown("application", "application quit while open http connection")
		}

		switch e := evt.(type) {
		case asgievents.HTTPResponseStart:
			if state != stateInit {
				return c.failInvalidStateChange(w, headersSent, "duplicate http.response.start")
			}
			for _, h := range e.Headers {
				w.Header().Add(string(h.Name), string(h.Value))
			}
			w.WriteHeader(int(e.Status))
			headersSent = true
			state = stateStreaming

		case asgievents.HTTPResponseBody:
			if state != stateStreaming {
				return c.failInvalidStateChange(w, headersSent, "http.response.body before http.response.start")
			}
			if len(e.Body) > 0 {
				if _, err := w.Write(e.Body); err != nil {
					return apperr.Wrap(apperr.Transport, err, "response write failed")
				}
				if fl, okFlush := w.(http.Flusher); okFlush {
					fl.Flush()
				}
			}
			if !e.MoreBody {
				state = stateDone
				return nil
			}

		case asgievents.ErrorEvent:
			if !headersSent {
				w.WriteHeader(http.StatusInternalServerError)
			}
			return apperr.NewApplicationError(e.Message)

		case asgievents.AppReturnedEvent:
			if !headersSent {
				w.WriteHeader(http.StatusInternalServerError)
			}
			return apperr.NewUnexpectedShutdown("application", "application quit while open http connection")

		default:
			return c.failInvalidStateChange(w, headersSent, "unexpected event on http response pump")
		}
	}
}

func (c *Coordinator) failInvalidStateChange(w http.ResponseWriter, headersSent bool, msg string) error {
	if !headersSent {
		w.WriteHeader(http.StatusInternalServerError)
	}
	return apperr.New(apperr.InvalidStateChange, msg)
}
