package hub

import (
	"sync"

	"golang.org/x/exp/maps"

	"github.com/syncparty/server/internal/repository/room"
)

type subscriber struct {
	ch chan room.PlaybackState
}

// Hub fans playback state updates out to room subscribers. Each
// subscriber has a pending buffer of exactly one state: a newer
// publish replaces an undelivered one, so a slow subscriber skips
// intermediate versions instead of queueing them, and never blocks
// publication to anyone else.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[string]*subscriber
	latest map[string]room.PlaybackState
}

func New() *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]*subscriber),
		latest: make(map[string]room.PlaybackState),
	}
}

// Subscribe registers the subscriber and immediately delivers the
// current state as the first value on the returned channel, so a late
// joiner converges without waiting for the next change.
func (h *Hub) Subscribe(roomId, subscriberId string, current room.PlaybackState) <-chan room.PlaybackState {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.rooms[roomId]; ok {
		if old, ok := subs[subscriberId]; ok {
			close(old.ch)
			delete(subs, subscriberId)
		}
	} else {
		h.rooms[roomId] = make(map[string]*subscriber)
	}

	if latest, ok := h.latest[roomId]; ok && latest.Version > current.Version {
		current = latest
	}
	if current.Version > h.latest[roomId].Version {
		h.latest[roomId] = current
	}

	sub := &subscriber{ch: make(chan room.PlaybackState, 1)}
	sub.ch <- current
	h.rooms[roomId][subscriberId] = sub

	return sub.ch
}

// Unsubscribe closes the subscriber's channel and releases its slot.
// Room state outlives its subscribers.
func (h *Hub) Unsubscribe(roomId, subscriberId string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomId]
	if !ok {
		return
	}

	if sub, ok := subs[subscriberId]; ok {
		close(sub.ch)
		delete(subs, subscriberId)
	}
	if len(subs) == 0 {
		delete(h.rooms, roomId)
	}
}

// Publish delivers state to every subscriber of the room. Publishes
// that do not advance the room's latest known version are dropped, so
// any single subscriber observes versions in non-decreasing order.
func (h *Hub) Publish(roomId string, state room.PlaybackState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if state.Version <= h.latest[roomId].Version {
		return
	}
	h.latest[roomId] = state

	for _, sub := range h.rooms[roomId] {
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- state:
		default:
		}
	}
}

// CloseRoom drops all subscriptions and the cached state for a room.
func (h *Hub) CloseRoom(roomId string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.rooms[roomId] {
		close(sub.ch)
	}
	delete(h.rooms, roomId)
	delete(h.latest, roomId)
}

func (h *Hub) Subscribers(roomId string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return maps.Keys(h.rooms[roomId])
}
