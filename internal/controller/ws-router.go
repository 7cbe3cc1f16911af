package controller

import (
	"github.com/syncparty/server/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()

	mux.Handle("ALIVE", c.handleAlive)
	mux.Handle("INTENT", c.handleIntent)
	mux.Handle("HEARTBEAT", c.handleHeartbeat)
	mux.NotFound(c.handleUnknown)

	return mux
}
