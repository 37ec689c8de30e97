package wscoordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
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

func TestWebSocketDeniedReturns403(t *testing.T) {
	app := &scriptedApp{run: func(ctx context.Context, receive apphandle.Receive, send apphandle.Send) error {
		e, ok := receive()
		require.True(t, ok)
		_, ok = e.(asgievents.WebsocketConnect)
		require.True(t, ok)

		send(asgievents.WebsocketClose{Code: 1000, Reason: "no"})
		return nil
	}}

	h := apphandle.New(app, 4)
	c := New(h)
	h.Call(context.Background(), struct{}{})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()

	require.NoError(t, c.Run(context.Background(), w, r))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "no", w.Body.String())
}

func TestInvalidHandshakeEventIsInvalidAsgiMessage(t *testing.T) {
	app := &scriptedApp{run: func(ctx context.Context, receive apphandle.Receive, send apphandle.Send) error {
		_, _ = receive()
		send(asgievents.HTTPResponseBody{}) // unrelated to websocket handshake
		return nil
	}}

	h := apphandle.New(app, 4)
	c := New(h)
	h.Call(context.Background(), struct{}{})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()

	err := c.Run(context.Background(), w, r)
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.InvalidAsgiMessage, kind)
}
