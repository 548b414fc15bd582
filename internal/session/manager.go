package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pulseroom/pkg/interfaces"
	"pulseroom/pkg/types"
)

// Manager is the Session Lifecycle Handler. It keeps the Membership Ledger
// and the room's live participant count in step with binds and unbinds.
type Manager struct {
	rooms    interfaces.RoomDirectory
	ledger   interfaces.MembershipLedger
	channels interfaces.RoomChannels
	now      func() time.Time

	// start times never change, so they are served cache-first
	startTimes map[int64]time.Time
	mu         sync.RWMutex
}

// NewManager creates a new session lifecycle handler
func NewManager(rooms interfaces.RoomDirectory, ledger interfaces.MembershipLedger, channels interfaces.RoomChannels) *Manager {
	return &Manager{
		rooms:      rooms,
		ledger:     ledger,
		channels:   channels,
		now:        time.Now,
		startTimes: make(map[int64]time.Time),
	}
}

// WithClock replaces the time source used for join and leave stamps.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// OnBind runs the Connecting -> Bound bookkeeping for conn. A non-nil error
// means the connection must be dropped; no membership was opened.
func (m *Manager) OnBind(ctx context.Context, conn interfaces.Connection) error {
	cred := conn.Credential()

	room, err := m.rooms.FindRoomByID(ctx, cred.RoomID)
	if err != nil {
		return fmt.Errorf("room %d: %w", cred.RoomID, err)
	}
	if room.Code != cred.RoomCode {
		return ErrRoomMismatch
	}
	m.rememberStartTime(room)

	if !room.IsActive {
		if err := conn.Send(types.NewOutbound(types.EventActivityEnded, nil)); err != nil {
			log.Printf("Failed to notify connection %s that room %s ended: %v", conn.ID(), room.Code, err)
		}
		return ErrRoomEnded
	}

	now := m.now()

	if cred.IsStudent() {
		// A rejoin closes whatever interval the previous connection left open.
		closed, err := m.ledger.CloseOpenMembership(ctx, cred.SessionID, room.ID, now)
		if err != nil {
			log.Printf("Failed to close stale membership for session %d in room %s: %v", cred.SessionID, room.Code, err)
		} else if closed > 0 {
			log.Printf("Closed %d stale membership row(s) for session %d in room %s", closed, cred.SessionID, room.Code)
		}

		if err := m.ledger.OpenMembership(ctx, cred.SessionID, room.ID, now); err != nil {
			log.Printf("Failed to open membership for session %d in room %s: %v", cred.SessionID, room.Code, err)
		}
	}

	count := m.countOpen(ctx, room)

	startTime := room.StartTime
	if err := conn.Send(types.NewOutbound(types.EventRoomState, types.RoomState{
		StartTime:        &startTime,
		ParticipantCount: count,
	})); err != nil {
		log.Printf("Failed to send room state to connection %s: %v", conn.ID(), err)
	}

	switch {
	case cred.IsTeacher():
		m.sendDashboard(ctx, conn, room, now)
	case cred.IsStudent():
		m.channels.BroadcastExcept(room.Code, conn.ID(), types.NewOutbound(types.EventParticipantJoined, types.ParticipantChange{
			Nickname:  cred.Nickname,
			SessionID: cred.SessionID,
			Count:     count,
		}))
		log.Printf("Student joined: session=%d nickname=%s room=%s count=%d", cred.SessionID, cred.Nickname, room.Code, count)
	}

	return nil
}

func (m *Manager) sendDashboard(ctx context.Context, conn interfaces.Connection, room *types.Room, now time.Time) {
	memberships, err := m.ledger.ListAll(ctx, room.ID)
	if err != nil {
		log.Printf("Failed to load roster for room %s: %v", room.Code, err)
	}

	participants := make([]types.Participant, 0, len(memberships))
	for _, membership := range memberships {
		participants = append(participants, types.Participant{
			SessionID: membership.SessionID,
			Nickname:  membership.Nickname,
			JoinAt:    membership.JoinAt,
			LeavedAt:  membership.LeavedAt,
		})
	}

	if err := conn.Send(types.NewOutbound(types.EventTeacherDashboardData, types.TeacherDashboardData{
		Participants:    participants,
		Timestamp:       now,
		RoomName:        room.Name,
		RoomDescription: room.Description,
	})); err != nil {
		log.Printf("Failed to send dashboard to connection %s: %v", conn.ID(), err)
	}
}

// OnUnbind runs the Bound -> Terminated bookkeeping. Teacher disconnects
// change nothing.
func (m *Manager) OnUnbind(ctx context.Context, conn interfaces.Connection) {
	cred := conn.Credential()
	if !cred.IsStudent() {
		return
	}

	// Another tab of the same session is still in the room; its interval
	// stays open.
	if m.channels.HasSession(cred.RoomCode, cred.SessionID) {
		log.Printf("Session %d still connected to room %s, membership kept open", cred.SessionID, cred.RoomCode)
		return
	}

	if _, err := m.ledger.CloseOpenMembership(ctx, cred.SessionID, cred.RoomID, m.now()); err != nil {
		log.Printf("Failed to close membership for session %d in room %s: %v", cred.SessionID, cred.RoomCode, err)
	}

	count, err := m.ledger.CountOpen(ctx, cred.RoomID)
	if err != nil {
		log.Printf("Failed to count participants in room %s: %v", cred.RoomCode, err)
	}

	m.channels.Broadcast(cred.RoomCode, types.NewOutbound(types.EventParticipantLeft, types.ParticipantChange{
		Nickname:  cred.Nickname,
		SessionID: cred.SessionID,
		Count:     count,
	}))
	log.Printf("Student left: session=%d nickname=%s room=%s count=%d", cred.SessionID, cred.Nickname, cred.RoomCode, count)
}

func (m *Manager) countOpen(ctx context.Context, room *types.Room) int {
	count, err := m.ledger.CountOpen(ctx, room.ID)
	if err != nil {
		log.Printf("Failed to count participants in room %s: %v", room.Code, err)
		return 0
	}
	return count
}

// StartTime returns a room's start time, cache-first.
func (m *Manager) StartTime(ctx context.Context, roomID int64) (time.Time, error) {
	m.mu.RLock()
	start, ok := m.startTimes[roomID]
	m.mu.RUnlock()
	if ok {
		return start, nil
	}

	room, err := m.rooms.FindRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, interfaces.ErrRoomNotFound) {
			return time.Time{}, err
		}
		return time.Time{}, fmt.Errorf("failed to look up room %d: %w", roomID, err)
	}
	m.rememberStartTime(room)
	return room.StartTime, nil
}

func (m *Manager) rememberStartTime(room *types.Room) {
	m.mu.Lock()
	m.startTimes[room.ID] = room.StartTime
	m.mu.Unlock()
}

// Forget drops cached data for a room that has ended.
func (m *Manager) Forget(roomID int64) {
	m.mu.Lock()
	delete(m.startTimes, roomID)
	m.mu.Unlock()
}
