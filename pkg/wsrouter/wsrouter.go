package wsrouter

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage)

// WSRouter dispatches incoming websocket messages to handlers by
// message type.
type WSRouter struct {
	routes   map[string]HandlerFunc
	notFound HandlerFunc
}

func New() *WSRouter {
	return &WSRouter{routes: make(map[string]HandlerFunc)}
}

func (r *WSRouter) Handle(messageType string, handler HandlerFunc) {
	r.routes[messageType] = handler
}

// NotFound sets the handler invoked for unknown message types.
func (r *WSRouter) NotFound(handler HandlerFunc) {
	r.notFound = handler
}

// ServeConn reads messages from conn until the connection fails or ctx
// is cancelled, routing each message to its registered handler.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		if handler, exists := r.routes[msg.Type]; exists {
			handler(ctx, conn, msg.Payload)
		} else if r.notFound != nil {
			r.notFound(ctx, conn, msg.Payload)
		}
	}
}
