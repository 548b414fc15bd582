package interfaces

import (
	"context"
	"time"
)

// Lifecycle receives the bind and unbind transitions of every admitted connection.
type Lifecycle interface {
	// OnBind runs once the connection is registered in its room channel.
	// A non-nil error makes the gateway close the connection.
	OnBind(ctx context.Context, conn Connection) error

	// OnUnbind runs after the connection has left its room channel.
	OnUnbind(ctx context.Context, conn Connection)
}

// RoomClock resolves when a room started and forgets rooms that ended.
type RoomClock interface {
	StartTime(ctx context.Context, roomID int64) (time.Time, error)
	Forget(roomID int64)
}
