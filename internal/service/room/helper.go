package room

import (
	"errors"
	"fmt"

	"github.com/syncparty/server/internal/repository/room"
)

func (s *service) mapRepoErr(err error, msg string) error {
	if errors.Is(err, room.ErrRoomNotFound) {
		return ErrRoomNotFound
	}

	return fmt.Errorf("%s: %w", msg, err)
}
