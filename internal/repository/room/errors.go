package room

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrVersionConflict     = errors.New("version conflict")
	ErrRoomAlreadyExists   = errors.New("room already exists")
	ErrParticipantNotFound = errors.New("participant not found")
)
