package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/syncparty/server/internal/repository/connection"
	reposync "github.com/syncparty/server/internal/repository/room"
	"github.com/syncparty/server/internal/service/room"
	"github.com/syncparty/server/pkg/validator"
	"github.com/syncparty/server/pkg/wsrouter"
)

type iRoomService interface {
	CreateRoom(context.Context, *room.CreateRoomParams) (room.CreateRoomResponse, error)
	CloseRoom(context.Context, *room.CloseRoomParams) error
	GetRoom(ctx context.Context, roomId string) (reposync.Room, error)
	GetState(ctx context.Context, roomId string) (reposync.PlaybackState, error)
	ResolveIntent(context.Context, *room.ResolveIntentParams) (room.ResolveIntentResponse, error)
	Subscribe(context.Context, *room.SubscribeParams) (<-chan reposync.PlaybackState, error)
	Unsubscribe(*room.SubscribeParams)
	Heartbeat(context.Context, *room.HeartbeatParams) error
	ListActive(ctx context.Context, roomId string) ([]string, error)
	Events() <-chan room.PresenceEvent
}

type iConnRepo interface {
	Add(conn *connection.Conn, roomId, subscriberId string) error
	RemoveBySubscriberId(subscriberId string) error
	GetConn(subscriberId string) (*connection.Conn, error)
	GetConnsByRoomId(roomId string) []*connection.Conn
}

type controller struct {
	roomService iRoomService
	connRepo    iConnRepo
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	wsmux       *wsrouter.WSRouter
	logger      *slog.Logger
}

func NewController(roomService iRoomService, connRepo iConnRepo, logger *slog.Logger) *controller {
	c := controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService: roomService,
		connRepo:    connRepo,
		validate:    validator.NewValidator(),
		logger:      logger,
	}
	c.wsmux = c.getWSRouter()

	return &c
}
