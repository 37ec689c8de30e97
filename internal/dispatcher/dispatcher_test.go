package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgate/streamgate/internal/admission"
	"github.com/streamgate/streamgate/internal/apphandle"
	"github.com/streamgate/streamgate/internal/asgievents"
	"github.com/streamgate/streamgate/internal/authhook"
	"github.com/streamgate/streamgate/internal/scope"
)

type echoApp struct{}

func (echoApp) Call(ctx context.Context, _ any, receive apphandle.Receive, send apphandle.Send) error {
	for {
		e, ok := receive()
		if !ok {
			return nil
		}
		req, ok := e.(asgievents.HTTPRequest)
		if !ok {
			return nil
		}
		if !req.MoreBody {
			break
		}
	}
	send(asgievents.HTTPResponseStart{Status: 200})
	send(asgievents.HTTPResponseBody{Body: []byte("ok"), MoreBody: false})
	return nil
}

func TestDispatcherRoutesPlainHTTPToHTTPCoordinator(t *testing.T) {
	d := New(echoApp{}, 4, scope.NewState())

	r := httptest.NewRequest(http.MethodGet, "/anything", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestDispatcherSniffsUpgradeHeaderRegardlessOfPath(t *testing.T) {
	// No real websocket handshake here (that's wscoordinator's job); this
	// only verifies the dispatcher routes on the Upgrade header rather than
	// the request path, by asserting it does NOT take the plain-HTTP path
	// (which would have produced "ok" from echoApp).
	d := New(echoApp{}, 4, scope.NewState())

	r := httptest.NewRequest(http.MethodGet, "/not-ws-path", nil)
	r.Header.Set("Upgrade", "WebSocket")
	r.Header.Set("Connection", "Upgrade")
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	assert.NotEqual(t, "ok", w.Body.String())
}

func TestDispatcherRejectsOverLimitConcurrency(t *testing.T) {
	d := New(echoApp{}, 4, scope.NewState(), WithLimiter(admission.NewLimiter(1)))

	// Exhaust the single slot manually, bypassing ServeHTTP's own
	// acquire/release pairing, to simulate an in-flight request.
	require.True(t, d.limiter.TryAcquire())
	defer d.limiter.Release()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDispatcherRejectsOversizedBody(t *testing.T) {
	d := New(echoApp{}, 4, scope.NewState(), WithBodyGuard(admission.NewMaxBodyGuard(4)))

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("way too long a body"))
	r.ContentLength = int64(len("way too long a body"))
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestDispatcherRejectsMissingBearerWhenAuthHookEnabled(t *testing.T) {
	d := New(echoApp{}, 4, scope.NewState(), WithAuthHook(authhook.New("secret")))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDispatcherAdmitsValidBearerWhenAuthHookEnabled(t *testing.T) {
	d := New(echoApp{}, 4, scope.NewState(), WithAuthHook(authhook.New("secret")))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

type claimsCapturingApp struct {
	captured *jwt.MapClaims
}

func (a claimsCapturingApp) Call(ctx context.Context, sc any, receive apphandle.Receive, send apphandle.Send) error {
	if httpScope, ok := sc.(*scope.HTTPScope); ok {
		if claims, ok := httpScope.Claims.(jwt.MapClaims); ok {
			*a.captured = claims
		}
	}
	for {
		e, ok := receive()
		if !ok {
			return nil
		}
		req, ok := e.(asgievents.HTTPRequest)
		if !ok {
			return nil
		}
		if !req.MoreBody {
			break
		}
	}
	send(asgievents.HTTPResponseStart{Status: 200})
	send(asgievents.HTTPResponseBody{Body: []byte("ok"), MoreBody: false})
	return nil
}

func TestDispatcherAttachesVerifiedClaimsToScopeNotSharedState(t *testing.T) {
	var captured jwt.MapClaims
	state := scope.NewState()
	d := New(claimsCapturingApp{captured: &captured}, 4, state, WithAuthHook(authhook.New("secret")))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	require.NotNil(t, captured)
	assert.Equal(t, "user-1", captured["sub"])

	_, onSharedState := state.Get("auth.claims")
	assert.False(t, onSharedState, "claims must not leak into the shared process state")
}

func TestParseSubprotocolsSplitsOnComma(t *testing.T) {
	h := http.Header{}
	h.Set("Sec-WebSocket-Protocol", "chat, superchat")
	got := parseSubprotocols(h)
	assert.Equal(t, []string{"chat", "superchat"}, got)
}

func TestParseSubprotocolsTrimsWhitespaceAndDropsEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("Sec-WebSocket-Protocol", " chat ,, superchat  ")
	got := parseSubprotocols(h)
	assert.Equal(t, []string{"chat", "superchat"}, got)
}
