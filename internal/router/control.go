package router

import (
	"context"
	"errors"
	"log"

	"pulseroom/pkg/interfaces"
	"pulseroom/pkg/types"
)

// stopActivityFailed is the only error text teachers ever see.
const stopActivityFailed = "Failed to stop activity"

// handleStopActivity ends the teacher's room and disconnects everyone in it.
func (r *Router) handleStopActivity(ctx context.Context, conn interfaces.Connection, in *types.Inbound) {
	cred := conn.Credential()

	err := r.rooms.MarkInactive(ctx, cred.RoomID, r.now())
	switch {
	case err == nil:
	case errors.Is(err, interfaces.ErrRoomAlreadyEnded):
		// Repeated stop: still flush whoever is left in the channel.
		log.Printf("Room %s already ended, disconnecting remaining members", cred.RoomCode)
	default:
		log.Printf("Failed to stop room %s (id=%d): %v", cred.RoomCode, cred.RoomID, err)
		if sendErr := conn.Send(types.NewOutbound(types.EventError, types.ErrorPayload{Message: stopActivityFailed})); sendErr != nil {
			log.Printf("Failed to report stop failure to connection %s: %v", conn.ID(), sendErr)
		}
		return
	}

	if r.clock != nil {
		r.clock.Forget(cred.RoomID)
	}

	notified := r.channels.NotifyAndDisconnect(cred.RoomCode, types.NewOutbound(types.EventActivityEnded, nil))
	log.Printf("Room %s stopped by session %d, %d connections notified", cred.RoomCode, cred.SessionID, notified)
}

// handleKickStudent closes every connection the target student holds in the
// teacher's room. The normal disconnect path then runs for each of them.
func (r *Router) handleKickStudent(ctx context.Context, conn interfaces.Connection, in *types.Inbound) {
	if in.KickStudent == nil {
		return
	}
	cred := conn.Credential()
	target := in.KickStudent.SessionID

	kicked := 0
	for _, member := range r.channels.FindBySession(cred.RoomCode, target) {
		if !member.Credential().IsStudent() {
			continue
		}
		if err := member.Close(); err != nil {
			log.Printf("Failed to close connection %s: %v", member.ID(), err)
			continue
		}
		kicked++
	}

	if kicked == 0 {
		log.Printf("Kick of session %d in room %s ignored: %v", target, cred.RoomCode, ErrKickTargetNotFound)
		return
	}
	log.Printf("Session %d kicked from room %s by session %d (%d connections)", target, cred.RoomCode, cred.SessionID, kicked)
}
