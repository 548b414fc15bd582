package interfaces

import "pulseroom/pkg/types"

// RoomChannels addresses the live connections bound to each room code.
// Send failures to individual members are absorbed; the returned counts are
// the number of members the event was queued for.
type RoomChannels interface {
	Broadcast(roomCode string, event types.Outbound) int
	BroadcastExcept(roomCode, exceptConnID string, event types.Outbound) int

	// NotifyAndDisconnect sends event to every member and then closes each
	// of them, working from one snapshot of the room.
	NotifyAndDisconnect(roomCode string, event types.Outbound) int

	FindBySession(roomCode string, sessionID int64) []Connection
	HasSession(roomCode string, sessionID int64) bool
	Count(roomCode string) int
}
