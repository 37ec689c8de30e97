// Package wsconn is the wire-level WebSocket transport the WebSocket
// Coordinator drives: framing, masking and control-frame handling are
// gorilla/websocket's job, matching spec.md's explicit delegation boundary.
//
// Grounded on internal/handlers/websocket_enterprise.go's upgrader
// construction (including its CheckOrigin convention) and its
// writePump/readPump single-writer/single-reader discipline: a single mutex
// serializes every write (and Close) on the one *websocket.Conn, and reads
// are left to the one inbound pump.
package wsconn

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// pingPeriod and pongWait mirror the teacher's keep-alive discipline in
// internal/handlers/websocket_enterprise.go's writePump/readPump.
const (
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn wraps one upgraded *websocket.Conn behind a mutex so the coordinator's
// outbound pump and ping loop never write at the same time. ReadMessage does
// not take the mutex: a read may be in progress while a write happens.
type Conn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// MessageKind distinguishes the frame kinds the coordinator cares about.
type MessageKind int

const (
	KindText MessageKind = iota
	KindBinary
	KindClose
)

// Upgrade performs the HTTP→WebSocket handshake and returns the wrapped
// connection. Subprotocol, if non-empty, is negotiated onto the 101
// response. extraHeaders are merged onto the upgrade response.
func Upgrade(w http.ResponseWriter, r *http.Request, subprotocol string, extraHeaders http.Header) (*Conn, error) {
	respHeader := http.Header{}
	for k, vs := range extraHeaders {
		for _, v := range vs {
			respHeader.Add(k, v)
		}
	}
	if subprotocol != "" {
		respHeader.Set("Sec-WebSocket-Protocol", subprotocol)
	}

	c, err := upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		return nil, err
	}
	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &Conn{conn: c}, nil
}

// ReadMessage blocks for the next frame and classifies it. It is not
// serialized by the mutex; only one goroutine may call it at a time.
func (c *Conn) ReadMessage() (MessageKind, []byte, error) {
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	switch mt {
	case websocket.TextMessage:
		return KindText, data, nil
	case websocket.BinaryMessage:
		return KindBinary, data, nil
	case websocket.CloseMessage:
		return KindClose, data, nil
	default:
		return KindBinary, data, nil
	}
}

// WriteText writes a text frame, serialized against concurrent writes.
func (c *Conn) WriteText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

// WriteBinary writes a binary frame, serialized against concurrent writes.
func (c *Conn) WriteBinary(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}

// WriteClose writes a close frame with the given code and reason,
// serialized against concurrent writes.
func (c *Conn) WriteClose(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	return c.conn.WriteMessage(websocket.CloseMessage, msg)
}

// WritePing writes a keep-alive ping, serialized against concurrent writes.
func (c *Conn) WritePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// PingPeriod exposes the keep-alive interval for the coordinator's ticker.
func PingPeriod() time.Duration { return pingPeriod }

// Close closes the underlying connection without a close handshake.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
