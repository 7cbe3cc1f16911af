package inmemory

import (
	"sync"

	"github.com/syncparty/server/internal/repository/connection"
)

type repo struct {
	conns   map[string]*connection.Conn
	rooms   map[string]map[string]struct{}
	roomIds map[string]string
	mu      sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		conns:   make(map[string]*connection.Conn),
		rooms:   make(map[string]map[string]struct{}),
		roomIds: make(map[string]string),
	}
}

func (r *repo) Add(conn *connection.Conn, roomId, subscriberId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[subscriberId]; ok {
		return connection.ErrAlreadyExists
	}

	r.conns[subscriberId] = conn
	r.roomIds[subscriberId] = roomId
	if r.rooms[roomId] == nil {
		r.rooms[roomId] = make(map[string]struct{})
	}
	r.rooms[roomId][subscriberId] = struct{}{}

	return nil
}

func (r *repo) RemoveBySubscriberId(subscriberId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[subscriberId]; !ok {
		return connection.ErrNotFound
	}

	roomId := r.roomIds[subscriberId]
	delete(r.conns, subscriberId)
	delete(r.roomIds, subscriberId)
	if subs, ok := r.rooms[roomId]; ok {
		delete(subs, subscriberId)
		if len(subs) == 0 {
			delete(r.rooms, roomId)
		}
	}

	return nil
}

func (r *repo) GetConn(subscriberId string) (*connection.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[subscriberId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) GetConnsByRoomId(roomId string) []*connection.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*connection.Conn, 0, len(r.rooms[roomId]))
	for subscriberId := range r.rooms[roomId] {
		if conn, ok := r.conns[subscriberId]; ok {
			conns = append(conns, conn)
		}
	}

	return conns
}
