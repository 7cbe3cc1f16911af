package redis

import (
	"context"
	"fmt"

	"github.com/syncparty/server/internal/repository/room"
)

func (r repo) getStateKey(roomId string) string {
	return "room:" + roomId + ":state"
}

func (r repo) GetPlaybackState(ctx context.Context, roomId string) (room.PlaybackState, error) {
	stateKey := r.getStateKey(roomId)
	cmd := r.rc.HGetAll(ctx, stateKey)
	if err := cmd.Err(); err != nil {
		return room.PlaybackState{}, fmt.Errorf("failed to get playback state: %w", err)
	}

	if len(cmd.Val()) == 0 {
		return room.PlaybackState{}, room.ErrRoomNotFound
	}

	var state room.PlaybackState
	if err := cmd.Scan(&state); err != nil {
		return room.PlaybackState{}, fmt.Errorf("failed to scan playback state: %w", err)
	}

	r.rc.Expire(ctx, stateKey, r.expireDuration)

	return state, nil
}

// CompareAndSwapPlaybackState writes the candidate state only if the
// stored version still equals ExpectedVersion. Exactly one concurrent
// caller wins a given version transition, the rest get
// ErrVersionConflict.
func (r repo) CompareAndSwapPlaybackState(ctx context.Context, params *room.CompareAndSwapPlaybackStateParams) (room.PlaybackState, error) {
	stateKey := r.getStateKey(params.RoomId)
	res, err := r.rc.EvalSha(ctx, r.casScript,
		[]string{stateKey},
		params.ExpectedVersion,
		params.VideoRef,
		params.Playing,
		params.PositionSeconds,
		params.AsOf,
	).Int64()
	if err != nil {
		return room.PlaybackState{}, fmt.Errorf("failed to compare and swap playback state: %w", err)
	}

	switch res {
	case -1:
		return room.PlaybackState{}, room.ErrRoomNotFound
	case 0:
		return room.PlaybackState{}, room.ErrVersionConflict
	}

	r.rc.Expire(ctx, stateKey, r.expireDuration)

	return room.PlaybackState{
		VideoRef:        params.VideoRef,
		Playing:         params.Playing,
		PositionSeconds: params.PositionSeconds,
		AsOf:            params.AsOf,
		Version:         uint64(res),
	}, nil
}
