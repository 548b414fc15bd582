package session

import "errors"

// Bind rejections
var (
	ErrRoomEnded    = errors.New("room has ended")
	ErrRoomMismatch = errors.New("credential room code does not match room")
)
