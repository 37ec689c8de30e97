// Package dispatcher implements the Dispatcher: on each accepted
// connection it builds the right scope, spawns the application task, and
// hands off to the HTTP or WebSocket coordinator.
//
// Grounded on internal/handlers/websocket_enterprise.go's
// HandleEnterpriseWebSocket: the Upgrade-header sniff + handoff shape.
package dispatcher

import (
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/streamgate/streamgate/internal/admission"
	"github.com/streamgate/streamgate/internal/apphandle"
	"github.com/streamgate/streamgate/internal/authhook"
	"github.com/streamgate/streamgate/internal/httpcoordinator"
	"github.com/streamgate/streamgate/internal/logging"
	"github.com/streamgate/streamgate/internal/scope"
	"github.com/streamgate/streamgate/internal/wscoordinator"
)

// Dispatcher composes admission control, the optional auth hook, and the
// per-phase coordinators around a single Application, per spec.md §4.6.
type Dispatcher struct {
	app         apphandle.Application
	busCapacity int
	state       *scope.State

	limiter   *admission.Limiter
	bodyGuard *admission.MaxBodyGuard
	auth      *authhook.Hook // nil when disabled
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLimiter installs a concurrency admission gate.
func WithLimiter(l *admission.Limiter) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithBodyGuard installs a max-body-size guard.
func WithBodyGuard(g *admission.MaxBodyGuard) Option {
	return func(d *Dispatcher) { d.bodyGuard = g }
}

// WithAuthHook installs the optional pre-dispatch JWT verification hook.
func WithAuthHook(h *authhook.Hook) Option {
	return func(d *Dispatcher) { d.auth = h }
}

// New builds a Dispatcher around app, sharing state across every scope it
// builds.
func New(app apphandle.Application, busCapacity int, state *scope.State, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		app:         app,
		busCapacity: busCapacity,
		state:       state,
		limiter:     admission.NewLimiter(0),
		bodyGuard:   admission.NewMaxBodyGuard(0),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ServeHTTP implements http.Handler, so a Dispatcher can be mounted
// directly or wrapped by httpentry's gin routes.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	var claims jwt.MapClaims
	if d.auth != nil {
		c, err := d.auth.Verify(r)
		if err != nil {
			logging.Dispatcher().Warn().Str("request_id", requestID).Err(err).Msg("rejected request: auth hook failed")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		claims = c
	}

	if !d.bodyGuard.Check(r) {
		logging.Dispatcher().Warn().Str("request_id", requestID).Msg("rejected request: body too large")
		http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
		return
	}
	d.bodyGuard.MaxBody(w, r)

	if !d.limiter.TryAcquire() {
		logging.Dispatcher().Warn().Str("request_id", requestID).Msg("rejected request: concurrency limit reached")
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	defer d.limiter.Release()

	if isWebsocketUpgrade(r) {
		d.serveWebsocket(w, r, requestID, claims)
		return
	}
	d.serveHTTP(w, r, requestID, claims)
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (d *Dispatcher) serveHTTP(w http.ResponseWriter, r *http.Request, requestID string, claims jwt.MapClaims) {
	sc := buildHTTPScope(r, d.state)
	sc.Headers = append(sc.Headers, scope.HeaderPair{Name: []byte("x-request-id"), Value: []byte(requestID)})
	if claims != nil {
		sc.Claims = claims
	}

	h := apphandle.New(d.app, d.busCapacity)
	h.Call(r.Context(), sc)

	coord := httpcoordinator.New(h)
	if err := coord.Run(r.Context(), w, r); err != nil {
		logging.HTTP().Warn().Str("request_id", requestID).Err(err).Msg("http coordinator ended with error")
	}
}

func (d *Dispatcher) serveWebsocket(w http.ResponseWriter, r *http.Request, requestID string, claims jwt.MapClaims) {
	sc := buildWebsocketScope(r, d.state)
	if claims != nil {
		sc.Claims = claims
	}

	h := apphandle.New(d.app, d.busCapacity)
	h.Call(r.Context(), sc)

	coord := wscoordinator.New(h)
	if err := coord.Run(r.Context(), w, r); err != nil {
		logging.WS().Warn().Str("request_id", requestID).Err(err).Msg("websocket coordinator ended with error")
	}
}

func buildHeaders(h http.Header) []scope.HeaderPair {
	var out []scope.HeaderPair
	for name, values := range h {
		lower := []byte(strings.ToLower(name))
		for _, v := range values {
			out = append(out, scope.HeaderPair{Name: lower, Value: []byte(v)})
		}
	}
	return out
}

func clientAddr(r *http.Request) *scope.Addr {
	host, portStr, err := splitHostPort(r.RemoteAddr)
	if err != nil {
		return nil
	}
	port, _ := strconv.Atoi(portStr)
	return &scope.Addr{IP: host, Port: port}
}

func splitHostPort(hostport string) (string, string, error) {
	i := strings.LastIndex(hostport, ":")
	if i < 0 {
		return hostport, "0", nil
	}
	return hostport[:i], hostport[i+1:], nil
}

func buildHTTPScope(r *http.Request, state *scope.State) *scope.HTTPScope {
	return &scope.HTTPScope{
		Meta:        scope.DefaultMeta(),
		HTTPVersion: r.Proto,
		Method:      r.Method,
		Scheme:      schemeOf(r),
		Path:        r.URL.Path,
		RawPath:     []byte(r.URL.EscapedPath()),
		QueryString: []byte(r.URL.RawQuery),
		RootPath:    "",
		Headers:     buildHeaders(r.Header),
		Client:      clientAddr(r),
		Server:      scope.Addr{},
		State:       state,
	}
}

func buildWebsocketScope(r *http.Request, state *scope.State) *scope.WebsocketScope {
	return &scope.WebsocketScope{
		Meta:         scope.DefaultMeta(),
		HTTPVersion:  r.Proto,
		Scheme:       "ws",
		Path:         r.URL.Path,
		RawPath:      []byte(r.URL.EscapedPath()),
		QueryString:  []byte(r.URL.RawQuery),
		RootPath:     "",
		Headers:      buildHeaders(r.Header),
		Client:       clientAddr(r),
		Server:       scope.Addr{},
		Subprotocols: parseSubprotocols(r.Header),
		State:        state,
	}
}

// parseSubprotocols parses Sec-WebSocket-Protocol as a comma-separated
// list, trimming whitespace per spec.md §6. Unlike the Rust original this
// distills from (which instead treats each header occurrence as one
// token), spec.md is explicit here, so its comma-separated rule is
// authoritative.
func parseSubprotocols(h http.Header) []string {
	raw := h.Values(textproto.CanonicalMIMEHeaderKey("Sec-WebSocket-Protocol"))
	var out []string
	for _, line := range raw {
		for _, tok := range strings.Split(line, ",") {
			tok = strings.TrimSpace(tok)
			if tok != "" {
				out = append(out, tok)
			}
		}
	}
	return out
}

func schemeOf(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
