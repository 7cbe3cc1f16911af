package syncclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/syncparty/server/internal/repository/room"
)

type fakePlayer struct {
	position float64
	playing  bool
	videoRef string
	seeks    int
	loads    int
}

func (p *fakePlayer) PositionSeconds() float64 { return p.position }
func (p *fakePlayer) SetPlaying(playing bool)  { p.playing = playing }

func (p *fakePlayer) SeekTo(position float64) {
	p.position = position
	p.seeks++
}

func (p *fakePlayer) Load(videoRef string) {
	p.videoRef = videoRef
	p.position = 0
	p.loads++
}

func TestSkewEstimator(t *testing.T) {
	e := NewSkewEstimator()

	assert.Equal(t, time.Duration(0), e.Skew(), "no samples means no correction")

	// server is 10s ahead of the local clock, symmetric 200ms RTT
	local := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	server := local.Add(10 * time.Second)
	e.AddSample(local, local.Add(200*time.Millisecond), server.Add(100*time.Millisecond).UnixMilli())

	assert.InDelta(t, (10 * time.Second).Milliseconds(), e.Skew().Milliseconds(), 1)

	// a noisier sample with a larger RTT must not displace the clean one
	e.AddSample(local, local.Add(2*time.Second), server.Add(1800*time.Millisecond).UnixMilli())
	assert.InDelta(t, (10 * time.Second).Milliseconds(), e.Skew().Milliseconds(), 1)

	// negative RTT is a clock glitch, ignored
	e.AddSample(local, local.Add(-time.Second), server.UnixMilli())
	assert.InDelta(t, (10 * time.Second).Milliseconds(), e.Skew().Milliseconds(), 1)
}

func TestSkewEstimatorWindow(t *testing.T) {
	e := NewSkewEstimator()
	local := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	// old minimum-RTT sample with skew 0
	e.AddSample(local, local.Add(10*time.Millisecond), local.Add(5*time.Millisecond).UnixMilli())

	// fill the window with samples showing a 1s skew
	for i := 0; i < defaultSampleWindow; i++ {
		at := local.Add(time.Duration(i+1) * time.Minute)
		e.AddSample(at, at.Add(100*time.Millisecond), at.Add(50*time.Millisecond).Add(time.Second).UnixMilli())
	}

	// the old sample has rolled out of the window
	assert.InDelta(t, (time.Second).Milliseconds(), e.Skew().Milliseconds(), 1)
}

func TestDriverExtrapolation(t *testing.T) {
	player := &fakePlayer{}
	d := NewDriver(player, NewSkewEstimator(), 0)

	asOf := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	state := room.PlaybackState{
		VideoRef:        "abc123",
		Playing:         true,
		PositionSeconds: 30,
		AsOf:            asOf.UnixMilli(),
		Version:         3,
	}

	// while playing, the position advances with elapsed time
	pos := d.ExtrapolatePosition(state, asOf.Add(4*time.Second))
	assert.InDelta(t, 34.0, pos, 0.001)

	// while paused, the stored position is authoritative as-is
	state.Playing = false
	pos = d.ExtrapolatePosition(state, asOf.Add(4*time.Second))
	assert.InDelta(t, 30.0, pos, 0.001)
}

func TestDriverDriftThreshold(t *testing.T) {
	player := &fakePlayer{}
	d := NewDriver(player, NewSkewEstimator(), 0)

	asOf := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	state := room.PlaybackState{
		VideoRef:        "abc123",
		Playing:         false,
		PositionSeconds: 30,
		AsOf:            asOf.UnixMilli(),
		Version:         3,
	}

	d.Apply(state, asOf)
	assert.Equal(t, 1, player.loads)
	assert.Equal(t, 1, player.seeks, "initial position is beyond the threshold from 0")
	assert.InDelta(t, 30.0, player.position, 0.001)
	assert.False(t, player.playing)

	// within the drift threshold nothing is corrected
	player.position = 31
	d.Apply(state, asOf)
	assert.Equal(t, 1, player.seeks, "micro-drift must not trigger a seek")
	assert.InDelta(t, 31.0, player.position, 0.001)

	// beyond the threshold the driver snaps to the authoritative position
	player.position = 40
	d.Apply(state, asOf)
	assert.Equal(t, 2, player.seeks)
	assert.InDelta(t, 30.0, player.position, 0.001)
}

func TestDriverLoadsNewVideo(t *testing.T) {
	player := &fakePlayer{}
	d := NewDriver(player, NewSkewEstimator(), 0)

	asOf := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	d.Apply(room.PlaybackState{VideoRef: "abc123", AsOf: asOf.UnixMilli(), Version: 2}, asOf)
	assert.Equal(t, "abc123", player.videoRef)
	assert.Equal(t, 1, player.loads)

	// same video: no reload
	d.Apply(room.PlaybackState{VideoRef: "abc123", AsOf: asOf.UnixMilli(), Version: 3}, asOf)
	assert.Equal(t, 1, player.loads)

	// changed video: reload and (re)start paused at zero
	d.Apply(room.PlaybackState{VideoRef: "def456", AsOf: asOf.UnixMilli(), Version: 4}, asOf)
	assert.Equal(t, "def456", player.videoRef)
	assert.Equal(t, 2, player.loads)
}

func TestDriverAppliesSkew(t *testing.T) {
	player := &fakePlayer{}
	e := NewSkewEstimator()

	// server runs 5s ahead of the local clock
	local := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	server := local.Add(5 * time.Second)
	e.AddSample(local, local, server.UnixMilli())

	d := NewDriver(player, e, 0)

	// asOf is "now" in server time; an uncorrected client would think
	// 5 seconds had already elapsed
	state := room.PlaybackState{
		VideoRef:        "abc123",
		Playing:         true,
		PositionSeconds: 10,
		AsOf:            server.UnixMilli(),
		Version:         2,
	}

	pos := d.ExtrapolatePosition(state, local)
	assert.InDelta(t, 10.0, pos, 0.1, "skew correction must cancel the clock offset")
}
