package interfaces

import (
	"context"
	"time"

	"pulseroom/pkg/types"
)

// RoomDirectory is the durable lookup of rooms.
type RoomDirectory interface {
	FindRoomByCode(ctx context.Context, code string) (*types.Room, error)
	FindRoomByID(ctx context.Context, id int64) (*types.Room, error)

	// MarkInactive flips is_active to false and stamps end_time.
	// Returns ErrRoomAlreadyEnded when the room was already inactive.
	MarkInactive(ctx context.Context, id int64, endTime time.Time) error
}

// MembershipLedger is the durable log of who joined which room and when they left.
type MembershipLedger interface {
	OpenMembership(ctx context.Context, sessionID, roomID int64, joinAt time.Time) error

	// CloseOpenMembership stamps leaved_at on every open row for the pair
	// and reports how many rows it closed.
	CloseOpenMembership(ctx context.Context, sessionID, roomID int64, leftAt time.Time) (int, error)

	CountOpen(ctx context.Context, roomID int64) (int, error)

	// ListAll returns every row ever created for the room, oldest first.
	ListAll(ctx context.Context, roomID int64) ([]*types.Membership, error)
}

// FeedbackStore persists reactions.
type FeedbackStore interface {
	RecordFeedback(ctx context.Context, sessionID, roomID int64, kind types.ReactionKind, momentSeconds int, at time.Time) error
	ListFeedback(ctx context.Context, roomID int64) ([]*types.Feedback, error)
}

// IdentityStore creates the identities and rooms that credentials are minted for.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, nickname, kind string, at time.Time) (*types.Identity, error)

	// CreateRoom inserts room and fills in its ID. Returns ErrRoomCodeInUse
	// when an active room already holds the code.
	CreateRoom(ctx context.Context, room *types.Room) error
}

// Store is the full persistence surface backed by one database.
type Store interface {
	RoomDirectory
	MembershipLedger
	FeedbackStore
	IdentityStore

	HealthCheck(ctx context.Context) error
	Close() error
}
