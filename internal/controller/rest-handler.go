package controller

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/syncparty/server/internal/service/room"
	"github.com/syncparty/server/pkg/rest"
)

type createRoomInput struct {
	Name      string `json:"name" validate:"required,max=64"`
	CreatorId string `json:"creator_id" validate:"required"`
}

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomInput

	if err := rest.ReadJSON(r, &req); err != nil {
		c.logger.DebugContext(r.Context(), "failed to read json", "error", err)
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		c.logger.DebugContext(r.Context(), "failed to validate request", "errors", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	createRoomResponse, err := c.roomService.CreateRoom(r.Context(), &room.CreateRoomParams{
		Name:      req.Name,
		CreatorId: req.CreatorId,
	})
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": map[string]any{
		"room_id": createRoomResponse.RoomId,
		"room":    createRoomResponse.Room,
		"state":   createRoomResponse.State,
	}})
}

func (c controller) closeRoom(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")
	userId := r.Header.Get("X-User-Id")
	if userId == "" {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": "X-User-Id header is required"})
		return
	}

	if err := c.roomService.CloseRoom(r.Context(), &room.CloseRoomParams{
		RoomId: roomId,
		UserId: userId,
	}); err != nil {
		c.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) getRoom(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	rm, err := c.roomService.GetRoom(r.Context(), roomId)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": rm})
}

func (c controller) getState(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	state, err := c.roomService.GetState(r.Context(), roomId)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": c.statePayload(state)})
}

type intentInput struct {
	ExpectedVersion *uint64  `json:"expected_version"`
	Kind            string   `json:"kind" validate:"required,oneof=play pause seek load_video"`
	Position        *float64 `json:"position"`
	VideoRef        *string  `json:"video_ref"`
	UserId          string   `json:"user_id" validate:"required"`
	ClientTimestamp int64    `json:"client_timestamp"`
}

func (c controller) postIntent(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	var req intentInput
	if err := rest.ReadJSON(r, &req); err != nil {
		c.logger.DebugContext(r.Context(), "failed to read json", "error", err)
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		c.logger.DebugContext(r.Context(), "failed to validate request", "errors", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	resolveResponse, err := c.roomService.ResolveIntent(r.Context(), &room.ResolveIntentParams{
		RoomId:          roomId,
		ExpectedVersion: req.ExpectedVersion,
		Kind:            room.IntentKind(req.Kind),
		Position:        req.Position,
		VideoRef:        req.VideoRef,
		OriginUserId:    req.UserId,
		ClientTimestamp: req.ClientTimestamp,
	})
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": c.statePayload(resolveResponse.State)})
}

type heartbeatInput struct {
	UserId string `json:"user_id" validate:"required"`
}

func (c controller) postPresence(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	var req heartbeatInput
	if err := rest.ReadJSON(r, &req); err != nil {
		c.logger.DebugContext(r.Context(), "failed to read json", "error", err)
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		c.logger.DebugContext(r.Context(), "failed to validate request", "errors", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	if err := c.roomService.Heartbeat(r.Context(), &room.HeartbeatParams{
		RoomId: roomId,
		UserId: req.UserId,
	}); err != nil {
		c.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) getPresence(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	userIds, err := c.roomService.ListActive(r.Context(), roomId)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": map[string]any{"active": userIds}})
}

func (c controller) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "room not found", "code": "NOT_FOUND"})
	case errors.Is(err, room.ErrStaleIntent):
		rest.WriteJSON(w, http.StatusConflict, rest.Envelope{"error": "stale intent, re-sync before retrying", "code": "STALE_INTENT"})
	case errors.Is(err, room.ErrContention):
		rest.WriteJSON(w, http.StatusConflict, rest.Envelope{"error": "contention, retry with backoff", "code": "CONTENTION"})
	case errors.Is(err, room.ErrInvalidIntent):
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": err.Error(), "code": "INVALID_INTENT"})
	case errors.Is(err, room.ErrPermissionDenied):
		rest.WriteJSON(w, http.StatusForbidden, rest.Envelope{"error": "permission denied", "code": "PERMISSION_DENIED"})
	default:
		c.logger.ErrorContext(r.Context(), "internal error", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error", "code": "INTERNAL"})
	}
}
