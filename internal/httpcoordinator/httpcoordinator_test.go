package httpcoordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgate/streamgate/internal/apperr"
	"github.com/streamgate/streamgate/internal/apphandle"
	"github.com/streamgate/streamgate/internal/asgievents"
)

type scriptedApp struct {
	run func(ctx context.Context, receive apphandle.Receive, send apphandle.Send) error
}

func (s *scriptedApp) Call(ctx context.Context, _ any, receive apphandle.Receive, send apphandle.Send) error {
	return s.run(ctx, receive, send)
}

func readAllRequestEvents(receive apphandle.Receive) []asgievents.HTTPRequest {
	var got []asgievents.HTTPRequest
	for {
		e, ok := receive()
		if !ok {
			return got
		}
		req, ok := e.(asgievents.HTTPRequest)
		if !ok {
			return got
		}
		got = append(got, req)
		if !req.MoreBody {
			return got
		}
	}
}

func TestEchoScenario(t *testing.T) {
	app := &scriptedApp{run: func(ctx context.Context, receive apphandle.Receive, send apphandle.Send) error {
		reqs := readAllRequestEvents(receive)
		require.Len(t, reqs, 1)
		assert.Equal(t, "hello world", string(reqs[0].Body))

		send(asgievents.HTTPResponseStart{Status: 200})
		send(asgievents.HTTPResponseBody{Body: []byte("hello world"), MoreBody: false})
		return nil
	}}

	h := apphandle.New(app, 4)
	c := New(h)
	h.Call(context.Background(), struct{}{})

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello world"))
	w := httptest.NewRecorder()

	require.NoError(t, c.Run(context.Background(), w, r))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello world", w.Body.String())
}

func TestStreamedResponseScenario(t *testing.T) {
	app := &scriptedApp{run: func(ctx context.Context, receive apphandle.Receive, send apphandle.Send) error {
		readAllRequestEvents(receive)
		send(asgievents.HTTPResponseStart{Status: 200})
		send(asgievents.HTTPResponseBody{Body: []byte("hello world"), MoreBody: true})
		send(asgievents.HTTPResponseBody{Body: []byte(" more body"), MoreBody: false})
		return nil
	}}

	h := apphandle.New(app, 4)
	c := New(h)
	h.Call(context.Background(), struct{}{})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	require.NoError(t, c.Run(context.Background(), w, r))
	assert.Equal(t, "hello world more body", w.Body.String())
}

func TestApplicationReturnsEarlyScenario(t *testing.T) {
	app := &scriptedApp{run: func(ctx context.Context, receive apphandle.Receive, send apphandle.Send) error {
		readAllRequestEvents(receive)
		return nil // returns without emitting any response event
	}}

	h := apphandle.New(app, 4)
	c := New(h)
	h.Call(context.Background(), struct{}{})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	err := c.Run(context.Background(), w, r)
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.UnexpectedShutdown, kind)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestApplicationErrorsMidStreamScenario(t *testing.T) {
	app := &scriptedApp{run: func(ctx context.Context, receive apphandle.Receive, send apphandle.Send) error {
		readAllRequestEvents(receive)
		send(asgievents.HTTPResponseStart{Status: 200})
		return assertErr
	}}

	h := apphandle.New(app, 4)
	c := New(h)
	h.Call(context.Background(), struct{}{})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	err := c.Run(context.Background(), w, r)
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ApplicationError, kind)
	assert.Equal(t, http.StatusOK, w.Code) // headers already flushed
}

var assertErr = apperr.New(apperr.Custom, "mid-stream failure")

func TestEmptyBodyProducesExactlyOneRequestEvent(t *testing.T) {
	app := &scriptedApp{run: func(ctx context.Context, receive apphandle.Receive, send apphandle.Send) error {
		reqs := readAllRequestEvents(receive)
		require.Len(t, reqs, 1)
		assert.Empty(t, reqs[0].Body)
		assert.False(t, reqs[0].MoreBody)

		send(asgievents.HTTPResponseStart{Status: 204})
		send(asgievents.HTTPResponseBody{MoreBody: false})
		return nil
	}}

	h := apphandle.New(app, 4)
	c := New(h)
	h.Call(context.Background(), struct{}{})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	require.NoError(t, c.Run(context.Background(), w, r))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDuplicateResponseStartIsInvalidStateChange(t *testing.T) {
	app := &scriptedApp{run: func(ctx context.Context, receive apphandle.Receive, send apphandle.Send) error {
		readAllRequestEvents(receive)
		send(asgievents.HTTPResponseStart{Status: 200})
		send(asgievents.HTTPResponseStart{Status: 200})
		return nil
	}}

	h := apphandle.New(app, 4)
	c := New(h)
	h.Call(context.Background(), struct{}{})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	err := c.Run(context.Background(), w, r)
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.InvalidStateChange, kind)
}
