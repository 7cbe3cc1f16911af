package connection

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Conn serializes writes to a websocket connection. Gorilla allows at
// most one concurrent writer, and both the state stream and presence
// broadcasts write to the same connection.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ws.WriteJSON(v)
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
