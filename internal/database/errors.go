package database

import "errors"

var (
	// ErrManagerClosed is returned for writes issued after Close.
	ErrManagerClosed = errors.New("database manager is closed")

	ErrWriteTimeout = errors.New("write operation timeout")
)
