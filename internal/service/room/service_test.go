package room

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncparty/server/internal/hub"
	roomRedis "github.com/syncparty/server/internal/repository/room/redis"
)

func newTestService(t *testing.T) *service {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	rc := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	roomRepo := roomRedis.NewRepo(rc, time.Hour)

	return NewService(roomRepo, hub.New(), slog.Default(), &Config{
		PresenceThreshold: 120 * time.Second,
		SweepInterval:     15 * time.Second,
	})
}

func uint64Ptr(v uint64) *uint64 { return &v }

func float64Ptr(v float64) *float64 { return &v }

func stringPtr(v string) *string { return &v }

func TestCreateRoom(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	createRoomResp, err := svc.CreateRoom(ctx, &CreateRoomParams{
		Name:      "movie night",
		CreatorId: "user-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, createRoomResp.RoomId, "room id is empty")
	assert.Equal(t, uint64(1), createRoomResp.State.Version, "initial version must be 1")
	assert.Equal(t, "", createRoomResp.State.VideoRef)
	assert.False(t, createRoomResp.State.Playing)

	state, err := svc.GetState(ctx, createRoomResp.RoomId)
	require.NoError(t, err)
	assert.Equal(t, createRoomResp.State, state)
}

// The full session scenario: load a video, play, pause five seconds
// later. The pause position must account for the time played, not the
// position recorded at play time.
func TestResolveIntentScenario(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }

	createRoomResp, err := svc.CreateRoom(ctx, &CreateRoomParams{
		Name:      "movie night",
		CreatorId: "user-a",
	})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId

	// client A loads a video against version 1
	loadResp, err := svc.ResolveIntent(ctx, &ResolveIntentParams{
		RoomId:          roomId,
		ExpectedVersion: uint64Ptr(1),
		Kind:            IntentLoadVideo,
		VideoRef:        stringPtr("abc123"),
		OriginUserId:    "user-a",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loadResp.State.Version)
	assert.Equal(t, "abc123", loadResp.State.VideoRef)
	assert.False(t, loadResp.State.Playing)
	assert.Equal(t, float64(0), loadResp.State.PositionSeconds)

	// client B plays against version 2
	playResp, err := svc.ResolveIntent(ctx, &ResolveIntentParams{
		RoomId:          roomId,
		ExpectedVersion: uint64Ptr(2),
		Kind:            IntentPlay,
		OriginUserId:    "user-b",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), playResp.State.Version)
	assert.True(t, playResp.State.Playing)
	assert.Equal(t, float64(0), playResp.State.PositionSeconds)

	// five seconds later client A pauses against version 3
	svc.now = func() time.Time { return base.Add(5 * time.Second) }

	pauseResp, err := svc.ResolveIntent(ctx, &ResolveIntentParams{
		RoomId:          roomId,
		ExpectedVersion: uint64Ptr(3),
		Kind:            IntentPause,
		OriginUserId:    "user-a",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), pauseResp.State.Version)
	assert.False(t, pauseResp.State.Playing)
	assert.InDelta(t, 5.0, pauseResp.State.PositionSeconds, 0.001)
}

func TestResolveIntentStalePlayPauseRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	createRoomResp, err := svc.CreateRoom(ctx, &CreateRoomParams{
		Name:      "movie night",
		CreatorId: "user-a",
	})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId

	before, err := svc.GetState(ctx, roomId)
	require.NoError(t, err)

	_, err = svc.ResolveIntent(ctx, &ResolveIntentParams{
		RoomId:          roomId,
		ExpectedVersion: uint64Ptr(7),
		Kind:            IntentPlay,
		OriginUserId:    "user-a",
	})
	assert.ErrorIs(t, err, ErrStaleIntent)

	_, err = svc.ResolveIntent(ctx, &ResolveIntentParams{
		RoomId:          roomId,
		ExpectedVersion: uint64Ptr(7),
		Kind:            IntentPause,
		OriginUserId:    "user-a",
	})
	assert.ErrorIs(t, err, ErrStaleIntent)

	// stored state is unchanged
	after, err := svc.GetState(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestResolveIntentStaleSeekRebased(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	createRoomResp, err := svc.CreateRoom(ctx, &CreateRoomParams{
		Name:      "movie night",
		CreatorId: "user-a",
	})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId

	_, err = svc.ResolveIntent(ctx, &ResolveIntentParams{
		RoomId:       roomId,
		Kind:         IntentLoadVideo,
		VideoRef:     stringPtr("abc123"),
		OriginUserId: "user-a",
	})
	require.NoError(t, err)

	// a deliberate seek with an outdated expected version still
	// applies, rebased onto the current version
	seekResp, err := svc.ResolveIntent(ctx, &ResolveIntentParams{
		RoomId:          roomId,
		ExpectedVersion: uint64Ptr(1),
		Kind:            IntentSeek,
		Position:        float64Ptr(42.5),
		OriginUserId:    "user-b",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seekResp.State.Version, "version must be current+1, not expected+1")
	assert.Equal(t, 42.5, seekResp.State.PositionSeconds)
}

func TestResolveIntentVersionMonotonic(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	createRoomResp, err := svc.CreateRoom(ctx, &CreateRoomParams{
		Name:      "movie night",
		CreatorId: "user-a",
	})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId

	last := uint64(1)
	for i := 0; i < 10; i++ {
		resp, err := svc.ResolveIntent(ctx, &ResolveIntentParams{
			RoomId:       roomId,
			Kind:         IntentSeek,
			Position:     float64Ptr(float64(i)),
			OriginUserId: "user-a",
		})
		require.NoError(t, err)
		assert.Greater(t, resp.State.Version, last)
		last = resp.State.Version
	}
}

func TestResolveIntentInvalid(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ResolveIntent(ctx, &ResolveIntentParams{
		RoomId: "room-1",
		Kind:   IntentKind("rewind"),
	})
	assert.ErrorIs(t, err, ErrInvalidIntent)

	_, err = svc.ResolveIntent(ctx, &ResolveIntentParams{
		RoomId: "room-1",
		Kind:   IntentSeek,
	})
	assert.ErrorIs(t, err, ErrInvalidIntent)

	_, err = svc.ResolveIntent(ctx, &ResolveIntentParams{
		RoomId: "room-1",
		Kind:   IntentLoadVideo,
	})
	assert.ErrorIs(t, err, ErrInvalidIntent)

	// unknown room with a well-formed intent
	_, err = svc.ResolveIntent(ctx, &ResolveIntentParams{
		RoomId: "missing",
		Kind:   IntentPlay,
	})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestCloseRoom(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	createRoomResp, err := svc.CreateRoom(ctx, &CreateRoomParams{
		Name:      "movie night",
		CreatorId: "user-a",
	})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId

	err = svc.CloseRoom(ctx, &CloseRoomParams{RoomId: roomId, UserId: "user-b"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, svc.CloseRoom(ctx, &CloseRoomParams{RoomId: roomId, UserId: "user-a"}))

	_, err = svc.GetState(ctx, roomId)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestHeartbeatLiveness(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }

	createRoomResp, err := svc.CreateRoom(ctx, &CreateRoomParams{
		Name:      "movie night",
		CreatorId: "user-a",
	})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId

	require.NoError(t, svc.Heartbeat(ctx, &HeartbeatParams{RoomId: roomId, UserId: "user-a"}))

	// active at t=60s
	svc.now = func() time.Time { return base.Add(60 * time.Second) }
	active, err := svc.IsActive(ctx, roomId, "user-a")
	require.NoError(t, err)
	assert.True(t, active)

	users, err := svc.ListActive(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-a"}, users)

	// inactive at t=130s with a 120s threshold
	svc.now = func() time.Time { return base.Add(130 * time.Second) }
	active, err = svc.IsActive(ctx, roomId, "user-a")
	require.NoError(t, err)
	assert.False(t, active)

	users, err = svc.ListActive(ctx, roomId)
	require.NoError(t, err)
	assert.Empty(t, users)

	// never-seen user
	active, err = svc.IsActive(ctx, roomId, "stranger")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestHeartbeatUnknownRoom(t *testing.T) {
	svc := newTestService(t)

	err := svc.Heartbeat(context.Background(), &HeartbeatParams{RoomId: "missing", UserId: "user-a"})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestPresenceEvents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }

	createRoomResp, err := svc.CreateRoom(ctx, &CreateRoomParams{
		Name:      "movie night",
		CreatorId: "user-a",
	})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId

	require.NoError(t, svc.Heartbeat(ctx, &HeartbeatParams{RoomId: roomId, UserId: "user-a"}))

	select {
	case event := <-svc.Events():
		assert.Equal(t, PresenceJoined, event.Kind)
		assert.Equal(t, "user-a", event.UserId)
		assert.Equal(t, roomId, event.RoomId)
	default:
		t.Fatal("expected a join event")
	}

	// a repeated heartbeat is idempotent and emits nothing
	require.NoError(t, svc.Heartbeat(ctx, &HeartbeatParams{RoomId: roomId, UserId: "user-a"}))
	select {
	case event := <-svc.Events():
		t.Fatalf("unexpected event: %+v", event)
	default:
	}

	// the sweep detects the lapsed heartbeat and emits a leave
	svc.now = func() time.Time { return base.Add(130 * time.Second) }
	svc.sweep(ctx)

	select {
	case event := <-svc.Events():
		assert.Equal(t, PresenceLeft, event.Kind)
		assert.Equal(t, "user-a", event.UserId)
	default:
		t.Fatal("expected a leave event")
	}

	// a fresh heartbeat after leaving is a new join
	require.NoError(t, svc.Heartbeat(ctx, &HeartbeatParams{RoomId: roomId, UserId: "user-a"}))
	select {
	case event := <-svc.Events():
		assert.Equal(t, PresenceJoined, event.Kind)
	default:
		t.Fatal("expected a join event after rejoin")
	}
}

func TestSubscribeDeliversCurrentState(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	createRoomResp, err := svc.CreateRoom(ctx, &CreateRoomParams{
		Name:      "movie night",
		CreatorId: "user-a",
	})
	require.NoError(t, err)
	roomId := createRoomResp.RoomId

	_, err = svc.ResolveIntent(ctx, &ResolveIntentParams{
		RoomId:       roomId,
		Kind:         IntentLoadVideo,
		VideoRef:     stringPtr("abc123"),
		OriginUserId: "user-a",
	})
	require.NoError(t, err)

	// a late subscriber's first value is the latest committed state
	stateCh, err := svc.Subscribe(ctx, &SubscribeParams{RoomId: roomId, SubscriberId: "sub-1"})
	require.NoError(t, err)

	select {
	case state := <-stateCh:
		assert.Equal(t, uint64(2), state.Version)
		assert.Equal(t, "abc123", state.VideoRef)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial state")
	}

	// unsubscribing closes the stream
	svc.Unsubscribe(&SubscribeParams{RoomId: roomId, SubscriberId: "sub-1"})
	_, ok := <-stateCh
	assert.False(t, ok)

	_, err = svc.Subscribe(ctx, &SubscribeParams{RoomId: "missing", SubscriberId: "sub-1"})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}
