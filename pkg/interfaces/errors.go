package interfaces

import "errors"

// Common store errors used across components
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomAlreadyEnded = errors.New("room already ended")
	ErrRoomCodeInUse    = errors.New("room code held by an active room")
)
