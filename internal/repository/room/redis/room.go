package redis

import (
	"context"
	"fmt"

	"github.com/syncparty/server/internal/repository/room"
)

func (r repo) getRoomKey(roomId string) string {
	return "room:" + roomId
}

// SetRoom creates the room metadata and its initial playback state in
// one transaction. A room never exists without a state.
func (r repo) SetRoom(ctx context.Context, params *room.SetRoomParams) error {
	roomKey := r.getRoomKey(params.RoomId)
	res, err := r.rc.Exists(ctx, roomKey).Result()
	if err != nil {
		return fmt.Errorf("failed to check if room exists: %w", err)
	}
	if res > 0 {
		return room.ErrRoomAlreadyExists
	}

	pipe := r.rc.TxPipeline()

	pipe.HSet(ctx, roomKey, room.Room{
		Name:      params.Name,
		CreatorId: params.CreatorId,
		CreatedAt: params.CreatedAt,
	})
	pipe.Expire(ctx, roomKey, r.expireDuration)

	stateKey := r.getStateKey(params.RoomId)
	pipe.HSet(ctx, stateKey, room.PlaybackState{
		VideoRef:        "",
		Playing:         false,
		PositionSeconds: 0,
		AsOf:            params.AsOf,
		Version:         1,
	})
	pipe.Expire(ctx, stateKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set room: %w", err)
	}

	return nil
}

func (r repo) GetRoom(ctx context.Context, roomId string) (room.Room, error) {
	roomKey := r.getRoomKey(roomId)
	cmd := r.rc.HGetAll(ctx, roomKey)
	if err := cmd.Err(); err != nil {
		return room.Room{}, fmt.Errorf("failed to get room: %w", err)
	}

	if len(cmd.Val()) == 0 {
		return room.Room{}, room.ErrRoomNotFound
	}

	var rm room.Room
	if err := cmd.Scan(&rm); err != nil {
		return room.Room{}, fmt.Errorf("failed to scan room: %w", err)
	}

	r.rc.Expire(ctx, roomKey, r.expireDuration)

	return rm, nil
}

func (r repo) RemoveRoom(ctx context.Context, roomId string) error {
	res, err := r.rc.Del(ctx,
		r.getRoomKey(roomId),
		r.getStateKey(roomId),
		r.getParticipantsKey(roomId),
	).Result()
	if err != nil {
		return fmt.Errorf("failed to remove room: %w", err)
	}

	if res == 0 {
		return room.ErrRoomNotFound
	}

	return nil
}
