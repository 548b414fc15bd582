package websocket

import (
	"log"
	"sync"

	"pulseroom/pkg/interfaces"
	"pulseroom/pkg/types"
)

// Registry is the Room Channel Registry: room code -> connection id -> handle.
// The maps are never handed out; callers receive snapshots.
type Registry struct {
	mu    sync.RWMutex // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy broadcast lookups
	rooms map[string]map[string]interfaces.Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]interfaces.Connection),
	}
}

// Bind adds conn to the channel named by its credential, creating the
// channel on first member. Binding the same connection twice is a no-op.
func (r *Registry) Bind(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	cred := conn.Credential()
	if err := cred.Validate(); err != nil {
		return ErrConnectionNotAuthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.rooms[cred.RoomCode]
	if !exists {
		members = make(map[string]interfaces.Connection)
		r.rooms[cred.RoomCode] = members
	}
	members[conn.ID()] = conn

	return nil
}

// Unbind removes conn from its channel and reports whether it was present.
// RACE CONDITION FIX: only the registered instance is removed, so a stale
// handle with a reused id cannot evict a newer connection.
func (r *Registry) Unbind(conn interfaces.Connection) bool {
	if conn == nil {
		return false
	}

	roomCode := conn.Credential().RoomCode

	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.rooms[roomCode]
	if !exists {
		return false
	}
	registered, exists := members[conn.ID()]
	if !exists || registered != conn {
		return false
	}

	delete(members, conn.ID())
	if len(members) == 0 {
		delete(r.rooms, roomCode)
	}
	return true
}

// Members returns a snapshot of the room's connections.
func (r *Registry) Members(roomCode string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(roomCode)
}

func (r *Registry) snapshotLocked(roomCode string) []interfaces.Connection {
	members := r.rooms[roomCode]
	connections := make([]interfaces.Connection, 0, len(members))
	for _, conn := range members {
		connections = append(connections, conn)
	}
	return connections
}

// Broadcast queues event for every member of the room.
func (r *Registry) Broadcast(roomCode string, event types.Outbound) int {
	return r.BroadcastExcept(roomCode, "", event)
}

// BroadcastExcept queues event for every member except exceptConnID.
func (r *Registry) BroadcastExcept(roomCode, exceptConnID string, event types.Outbound) int {
	delivered := 0
	for _, conn := range r.Members(roomCode) {
		if conn.ID() == exceptConnID {
			continue
		}
		if err := conn.Send(event); err != nil {
			log.Printf("Broadcast %s to connection %s in room %s dropped: %v", event.Event, conn.ID(), roomCode, err)
			continue
		}
		delivered++
	}
	return delivered
}

// NotifyAndDisconnect empties the channel, then sends event to each former
// member before closing it. Members bound after the snapshot are untouched.
func (r *Registry) NotifyAndDisconnect(roomCode string, event types.Outbound) int {
	r.mu.Lock()
	snapshot := r.snapshotLocked(roomCode)
	delete(r.rooms, roomCode)
	r.mu.Unlock()

	notified := 0
	for _, conn := range snapshot {
		if err := conn.Send(event); err != nil {
			log.Printf("Notify %s to connection %s in room %s dropped: %v", event.Event, conn.ID(), roomCode, err)
		} else {
			notified++
		}
	}
	for _, conn := range snapshot {
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close connection %s: %v", conn.ID(), err)
		}
	}
	return notified
}

// CloseAll closes every bound connection without notifying anyone. Each
// connection's own unbind runs as its read loop exits.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	var all []interfaces.Connection
	for roomCode := range r.rooms {
		all = append(all, r.snapshotLocked(roomCode)...)
	}
	r.mu.RUnlock()

	for _, conn := range all {
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close connection %s: %v", conn.ID(), err)
		}
	}
	return len(all)
}

// FindBySession returns the room's connections bound with sessionID.
func (r *Registry) FindBySession(roomCode string, sessionID int64) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []interfaces.Connection
	for _, conn := range r.rooms[roomCode] {
		if conn.Credential().SessionID == sessionID {
			matches = append(matches, conn)
		}
	}
	return matches
}

// HasSession reports whether any connection of sessionID is bound in the room.
func (r *Registry) HasSession(roomCode string, sessionID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conn := range r.rooms[roomCode] {
		if conn.Credential().SessionID == sessionID {
			return true
		}
	}
	return false
}

// Count returns how many connections are bound in the room.
func (r *Registry) Count(roomCode string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomCode])
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, members := range r.rooms {
		total += len(members)
	}

	return map[string]int{
		"total_connections": total,
		"active_rooms":      len(r.rooms),
	}
}
