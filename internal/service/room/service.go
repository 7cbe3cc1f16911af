package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/syncparty/server/internal/repository/room"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrStaleIntent      = errors.New("stale intent")
	ErrContention       = errors.New("contention")
	ErrInvalidIntent    = errors.New("invalid intent")
)

// casAttempts bounds the resolve retry loop. Contention on a single
// room is expected to be rare and short-lived, so there is no backoff.
const casAttempts = 3

// staleGraceFactor scales the presence threshold into the grace window
// after which stale participant records are removed from the store.
const staleGraceFactor = 10

type iRoomRepo interface {
	// room
	SetRoom(context.Context, *room.SetRoomParams) error
	GetRoom(context.Context, string) (room.Room, error)
	RemoveRoom(context.Context, string) error
	// playback state
	GetPlaybackState(context.Context, string) (room.PlaybackState, error)
	CompareAndSwapPlaybackState(context.Context, *room.CompareAndSwapPlaybackStateParams) (room.PlaybackState, error)
	// presence
	SetHeartbeat(context.Context, *room.HeartbeatParams) error
	GetLastActiveAt(ctx context.Context, roomId, userId string) (int64, error)
	GetActiveParticipants(context.Context, *room.ListActiveParams) ([]string, error)
	RemoveStaleParticipants(context.Context, *room.RemoveStaleParticipantsParams) ([]string, error)
}

type iHub interface {
	Subscribe(roomId, subscriberId string, current room.PlaybackState) <-chan room.PlaybackState
	Unsubscribe(roomId, subscriberId string)
	Publish(roomId string, state room.PlaybackState)
	CloseRoom(roomId string)
}

type Config struct {
	PresenceThreshold time.Duration
	SweepInterval     time.Duration
}

type service struct {
	roomRepo iRoomRepo
	hub      iHub
	logger   *slog.Logger

	presenceThreshold time.Duration
	sweepInterval     time.Duration

	// process-local view of active participants, used to detect
	// join/leave transitions
	active   map[string]map[string]struct{}
	activeMu sync.Mutex
	events   chan PresenceEvent

	now func() time.Time
}

func NewService(roomRepo iRoomRepo, hub iHub, logger *slog.Logger, cfg *Config) *service {
	s := service{
		roomRepo:          roomRepo,
		hub:               hub,
		logger:            logger,
		presenceThreshold: cfg.PresenceThreshold,
		sweepInterval:     cfg.SweepInterval,
		active:            make(map[string]map[string]struct{}),
		events:            make(chan PresenceEvent, 256),
		now:               time.Now,
	}

	return &s
}
