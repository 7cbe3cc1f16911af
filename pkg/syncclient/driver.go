package syncclient

import (
	"time"

	"github.com/syncparty/server/internal/repository/room"
)

// DefaultDriftThreshold is how far the locally rendered position may
// drift from the authoritative one before the driver seeks. Smaller
// differences are ignored to avoid visible jitter from micro-seeks.
const DefaultDriftThreshold = 2500 * time.Millisecond

// Player is the media element the driver controls. Rendering itself is
// outside this library.
type Player interface {
	PositionSeconds() float64
	SeekTo(positionSeconds float64)
	SetPlaying(playing bool)
	Load(videoRef string)
}

// Driver reconciles authoritative playback state with a local player.
// It never trusts the local wall clock against the coordinator's asOf
// directly; elapsed time is computed through the skew estimate.
type Driver struct {
	player         Player
	skew           *SkewEstimator
	driftThreshold time.Duration

	videoRef string
	loaded   bool
}

func NewDriver(player Player, skew *SkewEstimator, driftThreshold time.Duration) *Driver {
	if driftThreshold <= 0 {
		driftThreshold = DefaultDriftThreshold
	}

	return &Driver{
		player:         player,
		skew:           skew,
		driftThreshold: driftThreshold,
	}
}

// ExtrapolatePosition returns where playback should be at localNow
// according to state: the stored position plus skew-corrected elapsed
// time, only while playing.
func (d *Driver) ExtrapolatePosition(state room.PlaybackState, localNow time.Time) float64 {
	if !state.Playing {
		return state.PositionSeconds
	}

	coordinatorNow := localNow.Add(d.skew.Skew())
	elapsed := coordinatorNow.Sub(time.UnixMilli(state.AsOf))
	if elapsed < 0 {
		elapsed = 0
	}

	return state.PositionSeconds + elapsed.Seconds()
}

// Apply drives the local player toward state. Video and play/pause
// transitions always apply; position is corrected only beyond the
// drift threshold.
func (d *Driver) Apply(state room.PlaybackState, localNow time.Time) {
	if !d.loaded || state.VideoRef != d.videoRef {
		d.player.Load(state.VideoRef)
		d.videoRef = state.VideoRef
		d.loaded = true
	}

	target := d.ExtrapolatePosition(state, localNow)
	drift := target - d.player.PositionSeconds()
	if drift < 0 {
		drift = -drift
	}
	if drift > d.driftThreshold.Seconds() {
		d.player.SeekTo(target)
	}

	d.player.SetPlaying(state.Playing)
}
