package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/syncparty/server/internal/repository/room"
)

type IntentKind string

const (
	IntentPlay      IntentKind = "play"
	IntentPause     IntentKind = "pause"
	IntentSeek      IntentKind = "seek"
	IntentLoadVideo IntentKind = "load_video"
)

type ResolveIntentParams struct {
	RoomId string
	// ExpectedVersion is the version the client last observed. Nil
	// means apply unconditionally.
	ExpectedVersion *uint64
	Kind            IntentKind
	Position        *float64
	VideoRef        *string
	OriginUserId    string
	ClientTimestamp int64
}

type ResolveIntentResponse struct {
	State room.PlaybackState
}

func validateIntent(params *ResolveIntentParams) error {
	switch params.Kind {
	case IntentPlay, IntentPause:
	case IntentSeek:
		if params.Position == nil {
			return fmt.Errorf("%w: seek requires position", ErrInvalidIntent)
		}
	case IntentLoadVideo:
		if params.VideoRef == nil {
			return fmt.Errorf("%w: load_video requires video_ref", ErrInvalidIntent)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidIntent, params.Kind)
	}

	return nil
}

// ResolveIntent validates a proposed state change against the room's
// current version, computes the new authoritative state and commits it
// with a compare-and-swap. Whichever of two racing intents wins the
// swap is authoritative; there is no timestamp-based override, so a
// client with a fast clock cannot silently revert a newer change.
func (s *service) ResolveIntent(ctx context.Context, params *ResolveIntentParams) (ResolveIntentResponse, error) {
	if err := validateIntent(params); err != nil {
		return ResolveIntentResponse{}, err
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		current, err := s.roomRepo.GetPlaybackState(ctx, params.RoomId)
		if err != nil {
			return ResolveIntentResponse{}, s.mapRepoErr(err, "failed to get playback state")
		}

		if params.ExpectedVersion != nil && *params.ExpectedVersion != current.Version {
			// Play/pause against a stale version is state inference
			// gone wrong: reject so the client re-syncs instead of
			// flip-flopping playback. Seek and load are deliberate
			// user actions and are rebased onto the current version.
			if params.Kind == IntentPlay || params.Kind == IntentPause {
				return ResolveIntentResponse{}, ErrStaleIntent
			}
		}

		candidate := s.applyIntent(current, params)

		newState, err := s.roomRepo.CompareAndSwapPlaybackState(ctx, &candidate)
		if err != nil {
			if errors.Is(err, room.ErrVersionConflict) {
				continue
			}
			return ResolveIntentResponse{}, s.mapRepoErr(err, "failed to compare and swap playback state")
		}

		s.hub.Publish(params.RoomId, newState)

		s.logger.DebugContext(ctx, "intent resolved",
			"room_id", params.RoomId,
			"kind", params.Kind,
			"origin_user_id", params.OriginUserId,
			"version", newState.Version,
		)

		return ResolveIntentResponse{State: newState}, nil
	}

	return ResolveIntentResponse{}, ErrContention
}

func (s *service) applyIntent(current room.PlaybackState, params *ResolveIntentParams) room.CompareAndSwapPlaybackStateParams {
	now := s.now().UnixMilli()

	candidate := room.CompareAndSwapPlaybackStateParams{
		RoomId:          params.RoomId,
		ExpectedVersion: current.Version,
		VideoRef:        current.VideoRef,
		Playing:         current.Playing,
		PositionSeconds: current.PositionSeconds,
		AsOf:            now,
	}

	switch params.Kind {
	case IntentPlay:
		candidate.Playing = true
	case IntentPause:
		candidate.Playing = false
		candidate.PositionSeconds = extrapolatePosition(current, now)
	case IntentSeek:
		candidate.PositionSeconds = *params.Position
	case IntentLoadVideo:
		candidate.VideoRef = *params.VideoRef
		candidate.Playing = false
		candidate.PositionSeconds = 0
	}

	return candidate
}

// extrapolatePosition returns the live position at nowMs. The stored
// position is always the position as of AsOf, so a pause must account
// for the time the video kept playing since then.
func extrapolatePosition(state room.PlaybackState, nowMs int64) float64 {
	if !state.Playing {
		return state.PositionSeconds
	}

	return state.PositionSeconds + float64(nowMs-state.AsOf)/1000
}
