package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/syncparty/server/internal/repository/room"
)

func (r repo) getParticipantsKey(roomId string) string {
	return "room:" + roomId + ":participants"
}

// SetHeartbeat upserts the participant's last-active timestamp.
// Last write wins, which is fine for approximate liveness.
func (r repo) SetHeartbeat(ctx context.Context, params *room.HeartbeatParams) error {
	participantsKey := r.getParticipantsKey(params.RoomId)
	if err := r.rc.ZAdd(ctx, participantsKey, redis.Z{
		Score:  float64(params.At),
		Member: params.UserId,
	}).Err(); err != nil {
		return fmt.Errorf("failed to set heartbeat: %w", err)
	}

	r.rc.Expire(ctx, participantsKey, r.expireDuration)

	return nil
}

func (r repo) GetLastActiveAt(ctx context.Context, roomId, userId string) (int64, error) {
	participantsKey := r.getParticipantsKey(roomId)
	score, err := r.rc.ZScore(ctx, participantsKey, userId).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, room.ErrParticipantNotFound
		}
		return 0, fmt.Errorf("failed to get last active at: %w", err)
	}

	return int64(score), nil
}

func (r repo) GetActiveParticipants(ctx context.Context, params *room.ListActiveParams) ([]string, error) {
	participantsKey := r.getParticipantsKey(params.RoomId)
	userIds, err := r.rc.ZRangeByScore(ctx, participantsKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(params.Since, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active participants: %w", err)
	}

	return userIds, nil
}

// RemoveStaleParticipants drops records whose heartbeat is beyond the
// grace window. Returns the removed user ids.
func (r repo) RemoveStaleParticipants(ctx context.Context, params *room.RemoveStaleParticipantsParams) ([]string, error) {
	participantsKey := r.getParticipantsKey(params.RoomId)
	before := strconv.FormatInt(params.Before, 10)

	stale, err := r.rc.ZRangeByScore(ctx, participantsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + before,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list stale participants: %w", err)
	}

	if len(stale) == 0 {
		return nil, nil
	}

	if err := r.rc.ZRemRangeByScore(ctx, participantsKey, "-inf", "("+before).Err(); err != nil {
		return nil, fmt.Errorf("failed to remove stale participants: %w", err)
	}

	return stale, nil
}
