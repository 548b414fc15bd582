package types

import "errors"

var (
	ErrInvalidCredential = errors.New("credential must carry session_id, room_id and room_code")
	ErrInvalidRole       = errors.New("role must be 'teacher' or 'student'")
	ErrInvalidNickname   = errors.New("nickname must be 1-64 characters")
	ErrInvalidFrame      = errors.New("frame is not a JSON event envelope")
	ErrFrameTooLarge     = errors.New("frame exceeds 4KB limit")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrInvalidPayload    = errors.New("invalid event payload")
	ErrUnknownReaction   = errors.New("unrecognized reaction value")
)
