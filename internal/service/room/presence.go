package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syncparty/server/internal/repository/room"
)

type PresenceEventKind string

const (
	PresenceJoined PresenceEventKind = "joined"
	PresenceLeft   PresenceEventKind = "left"
)

type PresenceEvent struct {
	RoomId string            `json:"room_id"`
	UserId string            `json:"user_id"`
	Kind   PresenceEventKind `json:"kind"`
	At     int64             `json:"at"`
}

type HeartbeatParams struct {
	RoomId string
	UserId string
}

// Heartbeat refreshes the participant's last-active timestamp. It is
// idempotent; a join event is emitted only on the first transition
// from not-present to active in this process's view.
func (s *service) Heartbeat(ctx context.Context, params *HeartbeatParams) error {
	if _, err := s.roomRepo.GetRoom(ctx, params.RoomId); err != nil {
		return s.mapRepoErr(err, "failed to get room")
	}

	now := s.now().UnixMilli()
	if err := s.roomRepo.SetHeartbeat(ctx, &room.HeartbeatParams{
		RoomId: params.RoomId,
		UserId: params.UserId,
		At:     now,
	}); err != nil {
		return fmt.Errorf("failed to set heartbeat: %w", err)
	}

	s.activeMu.Lock()
	users, ok := s.active[params.RoomId]
	if !ok {
		users = make(map[string]struct{})
		s.active[params.RoomId] = users
	}
	_, present := users[params.UserId]
	users[params.UserId] = struct{}{}
	s.activeMu.Unlock()

	if !present {
		s.emit(PresenceEvent{
			RoomId: params.RoomId,
			UserId: params.UserId,
			Kind:   PresenceJoined,
			At:     now,
		})
	}

	return nil
}

// ListActive returns the participants whose heartbeat is within the
// liveness threshold.
func (s *service) ListActive(ctx context.Context, roomId string) ([]string, error) {
	since := s.now().Add(-s.presenceThreshold).UnixMilli()
	userIds, err := s.roomRepo.GetActiveParticipants(ctx, &room.ListActiveParams{
		RoomId: roomId,
		Since:  since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get active participants: %w", err)
	}

	return userIds, nil
}

func (s *service) IsActive(ctx context.Context, roomId, userId string) (bool, error) {
	lastActiveAt, err := s.roomRepo.GetLastActiveAt(ctx, roomId, userId)
	if err != nil {
		if errors.Is(err, room.ErrParticipantNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get last active at: %w", err)
	}

	return s.now().UnixMilli()-lastActiveAt < s.presenceThreshold.Milliseconds(), nil
}

// Events exposes join/leave notifications for activity log consumers.
func (s *service) Events() <-chan PresenceEvent {
	return s.events
}

// RunPresenceSweeper periodically detects participants whose heartbeat
// has lapsed, emits leave events for them and drops records beyond the
// grace window. Blocks until ctx is cancelled.
func (s *service) RunPresenceSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *service) sweep(ctx context.Context) {
	now := s.now().UnixMilli()
	threshold := s.presenceThreshold.Milliseconds()

	s.activeMu.Lock()
	roomIds := make([]string, 0, len(s.active))
	for roomId := range s.active {
		roomIds = append(roomIds, roomId)
	}
	s.activeMu.Unlock()

	for _, roomId := range roomIds {
		s.sweepRoom(ctx, roomId, now, threshold)
	}
}

func (s *service) sweepRoom(ctx context.Context, roomId string, now, threshold int64) {
	s.activeMu.Lock()
	userIds := make([]string, 0, len(s.active[roomId]))
	for userId := range s.active[roomId] {
		userIds = append(userIds, userId)
	}
	s.activeMu.Unlock()

	for _, userId := range userIds {
		lastActiveAt, err := s.roomRepo.GetLastActiveAt(ctx, roomId, userId)
		if err != nil && !errors.Is(err, room.ErrParticipantNotFound) {
			s.logger.WarnContext(ctx, "failed to get last active at", "error", err)
			continue
		}

		if err != nil || now-lastActiveAt >= threshold {
			s.activeMu.Lock()
			delete(s.active[roomId], userId)
			if len(s.active[roomId]) == 0 {
				delete(s.active, roomId)
			}
			s.activeMu.Unlock()

			s.emit(PresenceEvent{
				RoomId: roomId,
				UserId: userId,
				Kind:   PresenceLeft,
				At:     now,
			})
		}
	}

	if _, err := s.roomRepo.RemoveStaleParticipants(ctx, &room.RemoveStaleParticipantsParams{
		RoomId: roomId,
		Before: now - staleGraceFactor*threshold,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to remove stale participants", "error", err)
	}
}

func (s *service) forgetRoom(roomId string) {
	s.activeMu.Lock()
	delete(s.active, roomId)
	s.activeMu.Unlock()
}

func (s *service) emit(event PresenceEvent) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn("presence event dropped", "room_id", event.RoomId, "user_id", event.UserId)
	}
}
