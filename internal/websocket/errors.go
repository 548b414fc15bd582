package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed  = errors.New("connection closed")
	ErrSendBufferFull    = errors.New("send buffer full")
	ErrInvalidJSON       = errors.New("invalid JSON data")
	ErrInvalidTransition = errors.New("invalid connection state transition")
)

// Registry-related errors
var (
	ErrNilConnection              = errors.New("connection cannot be nil")
	ErrConnectionNotAuthenticated = errors.New("connection must be authenticated before registration")
)
