package router

import (
	"context"
	"fmt"
	"log"
	"time"

	"pulseroom/internal/hub"
	"pulseroom/pkg/interfaces"
	"pulseroom/pkg/types"
)

// handleSendFeedback relays a reaction to the whole room, then hands the
// durable record to the persistence queue.
// FUNCTIONAL DISCOVERY: Relay-then-persist keeps live latency independent of the database
func (r *Router) handleSendFeedback(ctx context.Context, conn interfaces.Connection, in *types.Inbound) {
	if in.SendFeedback == nil || !in.SendFeedback.Value.Valid() {
		return
	}
	cred := conn.Credential()
	value := in.SendFeedback.Value

	if !r.limiter.Allow(limiterKey(cred)) {
		log.Printf("Dropping feedback from session %d in room %s: %v", cred.SessionID, cred.RoomCode, ErrRateLimitExceeded)
		return
	}

	r.channels.Broadcast(cred.RoomCode, types.NewOutbound(types.EventReceiveFeedback, types.ReceiveFeedback{
		SessionID: cred.SessionID,
		Value:     value,
	}))

	if r.persister == nil || r.feedback == nil {
		return
	}

	at := r.now()
	job := hub.Job{
		Name: fmt.Sprintf("feedback room=%d session=%d", cred.RoomID, cred.SessionID),
		Run: func(ctx context.Context) error {
			return r.persistFeedback(ctx, cred, value, at)
		},
	}
	if err := r.persister.Enqueue(job); err != nil {
		log.Printf("Feedback from session %d in room %s not persisted: %v", cred.SessionID, cred.RoomCode, err)
	}
}

// persistFeedback records value with its offset from the room's start.
// Nothing is written when the start time cannot be resolved.
func (r *Router) persistFeedback(ctx context.Context, cred types.Credential, value types.ReactionKind, at time.Time) error {
	start, err := r.clock.StartTime(ctx, cred.RoomID)
	if err != nil {
		return fmt.Errorf("%w for room %d: %v", ErrStartTimeUnavailable, cred.RoomID, err)
	}

	return r.feedback.RecordFeedback(ctx, cred.SessionID, cred.RoomID, value, MomentOf(start, at), at)
}

// MomentOf returns the whole seconds elapsed from start to at, never negative.
func MomentOf(start, at time.Time) int {
	moment := int(at.Sub(start) / time.Second)
	if moment < 0 {
		return 0
	}
	return moment
}

func limiterKey(cred types.Credential) string {
	return fmt.Sprintf("%s:%d", cred.RoomCode, cred.SessionID)
}
