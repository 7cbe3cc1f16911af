package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/syncparty/server/internal/repository/connection"
	reposync "github.com/syncparty/server/internal/repository/room"
	"github.com/syncparty/server/internal/service/room"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// statePayload carries the coordinator's own clock alongside the state
// so clients can feed their skew estimator.
type statePayload struct {
	reposync.PlaybackState
	ServerTime int64 `json:"server_time"`
}

func (c controller) statePayload(state reposync.PlaybackState) statePayload {
	return statePayload{
		PlaybackState: state,
		ServerTime:    time.Now().UnixMilli(),
	}
}

// stream subscribes the caller to a room's state stream. The first
// frame is always the current state, so a reconnecting client
// converges without waiting for the next change.
func (c controller) stream(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")
	subscriberId := r.URL.Query().Get("subscriber_id")
	if subscriberId == "" {
		subscriberId = uuid.NewString()
	}
	userId := r.URL.Query().Get("user_id")

	subParams := room.SubscribeParams{
		RoomId:       roomId,
		SubscriberId: subscriberId,
	}
	stateCh, err := c.roomService.Subscribe(r.Context(), &subParams)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	defer c.roomService.Unsubscribe(&subParams)

	wsConn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}
	defer wsConn.Close()

	conn := connection.NewConn(wsConn)
	if err := c.connRepo.Add(conn, roomId, subscriberId); err != nil {
		c.logger.WarnContext(r.Context(), "failed to register connection", "error", err)
		return
	}
	defer c.connRepo.RemoveBySubscriberId(subscriberId)

	go func() {
		for state := range stateCh {
			if err := conn.WriteJSON(&Output{
				Type:    "STATE",
				Payload: c.statePayload(state),
			}); err != nil {
				wsConn.Close()
				return
			}
		}
		// channel closed: unsubscribed or room closed
		wsConn.Close()
	}()

	ctx := context.WithValue(r.Context(), roomIdCtxKey, roomId)
	ctx = context.WithValue(ctx, userIdCtxKey, userId)
	ctx = context.WithValue(ctx, subscriberIdCtxKey, subscriberId)

	if err := c.wsmux.ServeConn(ctx, wsConn); err != nil {
		c.logger.DebugContext(r.Context(), "stream closed", "subscriber_id", subscriberId, "error", err)
	}
}

func (c controller) handleAlive(_ context.Context, _ *websocket.Conn, _ json.RawMessage) {
}

type wsIntentInput struct {
	ExpectedVersion *uint64  `json:"expected_version"`
	Kind            string   `json:"kind" validate:"required,oneof=play pause seek load_video"`
	Position        *float64 `json:"position"`
	VideoRef        *string  `json:"video_ref"`
	ClientTimestamp int64    `json:"client_timestamp"`
}

func (c controller) handleIntent(ctx context.Context, _ *websocket.Conn, payload json.RawMessage) {
	roomId := c.getRoomIdFromCtx(ctx)
	userId := c.getUserIdFromCtx(ctx)
	subscriberId := c.getSubscriberIdFromCtx(ctx)

	var input wsIntentInput
	if err := json.Unmarshal(payload, &input); err != nil {
		c.writeError(ctx, subscriberId, "malformed intent payload")
		return
	}

	if validationErrors, ok := c.validate.Validate(input); !ok {
		c.logger.DebugContext(ctx, "failed to validate intent", "errors", validationErrors)
		c.writeError(ctx, subscriberId, "invalid intent")
		return
	}

	// the resolved state reaches the sender through its own
	// subscription, no direct reply needed
	if _, err := c.roomService.ResolveIntent(ctx, &room.ResolveIntentParams{
		RoomId:          roomId,
		ExpectedVersion: input.ExpectedVersion,
		Kind:            room.IntentKind(input.Kind),
		Position:        input.Position,
		VideoRef:        input.VideoRef,
		OriginUserId:    userId,
		ClientTimestamp: input.ClientTimestamp,
	}); err != nil {
		c.logger.DebugContext(ctx, "failed to resolve intent", "error", err)
		c.writeError(ctx, subscriberId, err.Error())
		return
	}
}

func (c controller) handleHeartbeat(ctx context.Context, _ *websocket.Conn, _ json.RawMessage) {
	roomId := c.getRoomIdFromCtx(ctx)
	userId := c.getUserIdFromCtx(ctx)
	if userId == "" {
		return
	}

	if err := c.roomService.Heartbeat(ctx, &room.HeartbeatParams{
		RoomId: roomId,
		UserId: userId,
	}); err != nil {
		c.logger.DebugContext(ctx, "failed to heartbeat", "error", err)
	}
}

func (c controller) handleUnknown(ctx context.Context, _ *websocket.Conn, _ json.RawMessage) {
	c.writeError(ctx, c.getSubscriberIdFromCtx(ctx), "unknown message type")
}

func (c controller) writeError(ctx context.Context, subscriberId, message string) {
	conn, err := c.connRepo.GetConn(subscriberId)
	if err != nil {
		return
	}

	if err := conn.WriteJSON(&Output{
		Type:    "ERROR",
		Payload: map[string]string{"error": message},
	}); err != nil {
		c.logger.DebugContext(ctx, "failed to write error", "error", err)
	}
}

// RunPresenceNotifier forwards join/leave events to every open stream
// of the affected room. Blocks until ctx is cancelled.
func (c controller) RunPresenceNotifier(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.roomService.Events():
			outputType := "MEMBER_JOINED"
			if event.Kind == room.PresenceLeft {
				outputType = "MEMBER_LEFT"
			}

			for _, conn := range c.connRepo.GetConnsByRoomId(event.RoomId) {
				if err := conn.WriteJSON(&Output{
					Type:    outputType,
					Payload: event,
				}); err != nil {
					c.logger.DebugContext(ctx, "failed to write presence event", "error", err)
				}
			}
		}
	}
}
