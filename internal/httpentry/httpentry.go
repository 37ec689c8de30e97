// Package httpentry is the HTTP/1.1 entrypoint: one Gin engine with exactly
// two routes wired to the Dispatcher — a catch-all HTTP route and a
// websocket-upgrade-sniffing route — so Gin's router/middleware chain
// becomes the "external collaborator" that feeds accepted connections to
// the Dispatcher.
//
// Grounded on the teacher's router-wiring convention (a gin.Engine with
// grouped routes) visible across internal/handlers/*.
package httpentry

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler is anything that can serve both the HTTP and WebSocket-upgrade
// path — the Dispatcher satisfies this via http.Handler.
type Handler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// NewEngine builds a gin.Engine with exactly two routes, both delegating to
// h: the WebSocket-upgrade path ("/ws" by convention, though the Dispatcher
// itself re-sniffs the Upgrade header regardless of path) and a catch-all
// (gin's NoRoute handler) for everything else.
func NewEngine(h Handler) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	adapt := func(c *gin.Context) { h.ServeHTTP(c.Writer, c.Request) }

	engine.Any("/ws", adapt)
	engine.NoRoute(adapt)

	return engine
}
