package router

import "errors"

// Router-specific error types
var (
	ErrUnauthorizedEvent    = errors.New("event not permitted for this role")
	ErrKickTargetNotFound   = errors.New("kick target not connected to room")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrStartTimeUnavailable = errors.New("room start time unavailable")
)
