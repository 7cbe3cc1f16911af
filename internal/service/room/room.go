package room

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/syncparty/server/internal/repository/room"
)

type CreateRoomParams struct {
	Name      string
	CreatorId string
}

type CreateRoomResponse struct {
	RoomId string
	Room   room.Room
	State  room.PlaybackState
}

// CreateRoom creates the room and its initial playback state
// atomically. A room never exists without a state.
func (s *service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	roomId := uuid.NewString()
	now := s.now().UnixMilli()

	if err := s.roomRepo.SetRoom(ctx, &room.SetRoomParams{
		RoomId:    roomId,
		Name:      params.Name,
		CreatorId: params.CreatorId,
		CreatedAt: now,
		AsOf:      now,
	}); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to set room: %w", err)
	}

	s.logger.InfoContext(ctx, "room created", "room_id", roomId, "creator_id", params.CreatorId)

	return CreateRoomResponse{
		RoomId: roomId,
		Room: room.Room{
			Name:      params.Name,
			CreatorId: params.CreatorId,
			CreatedAt: now,
		},
		State: room.PlaybackState{
			AsOf:    now,
			Version: 1,
		},
	}, nil
}

type CloseRoomParams struct {
	RoomId string
	UserId string
}

// CloseRoom removes the room, its state and presence records, and
// closes every open stream. Only the creator may close a room.
func (s *service) CloseRoom(ctx context.Context, params *CloseRoomParams) error {
	rm, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		return s.mapRepoErr(err, "failed to get room")
	}

	if rm.CreatorId != params.UserId {
		return ErrPermissionDenied
	}

	if err := s.roomRepo.RemoveRoom(ctx, params.RoomId); err != nil {
		return s.mapRepoErr(err, "failed to remove room")
	}

	s.hub.CloseRoom(params.RoomId)
	s.forgetRoom(params.RoomId)

	s.logger.InfoContext(ctx, "room closed", "room_id", params.RoomId)

	return nil
}

func (s *service) GetRoom(ctx context.Context, roomId string) (room.Room, error) {
	rm, err := s.roomRepo.GetRoom(ctx, roomId)
	if err != nil {
		return room.Room{}, s.mapRepoErr(err, "failed to get room")
	}

	return rm, nil
}

// GetState returns the current playback state snapshot, the polling
// fallback for clients without a live stream.
func (s *service) GetState(ctx context.Context, roomId string) (room.PlaybackState, error) {
	state, err := s.roomRepo.GetPlaybackState(ctx, roomId)
	if err != nil {
		return room.PlaybackState{}, s.mapRepoErr(err, "failed to get playback state")
	}

	return state, nil
}

type SubscribeParams struct {
	RoomId       string
	SubscriberId string
}

// Subscribe opens a state stream for the subscriber. The current state
// is always the first value delivered.
func (s *service) Subscribe(ctx context.Context, params *SubscribeParams) (<-chan room.PlaybackState, error) {
	state, err := s.roomRepo.GetPlaybackState(ctx, params.RoomId)
	if err != nil {
		return nil, s.mapRepoErr(err, "failed to get playback state")
	}

	return s.hub.Subscribe(params.RoomId, params.SubscriberId, state), nil
}

func (s *service) Unsubscribe(params *SubscribeParams) {
	s.hub.Unsubscribe(params.RoomId, params.SubscriberId)
}
