package router

import (
	"context"
	"log"
	"time"

	"pulseroom/pkg/interfaces"
	"pulseroom/pkg/types"
)

// HandlerFunc handles one decoded inbound event for a bound connection.
type HandlerFunc func(ctx context.Context, conn interfaces.Connection, in *types.Inbound)

// Router dispatches inbound events to the Feedback Relay and the
// Control-Action Handler.
// ARCHITECTURAL DISCOVERY: Handler tables are chosen by role, so an event a
// role may not send is never registered for it in the first place
type Router struct {
	channels  interfaces.RoomChannels
	rooms     interfaces.RoomDirectory
	feedback  interfaces.FeedbackStore
	clock     interfaces.RoomClock
	persister interfaces.Persister
	limiter   *RateLimiter
	now       func() time.Time

	studentHandlers map[string]HandlerFunc
	teacherHandlers map[string]HandlerFunc
}

// NewRouter creates a new message router
// FUNCTIONAL DISCOVERY: Dependency injection enables testing with mock components
func NewRouter(channels interfaces.RoomChannels, rooms interfaces.RoomDirectory, feedback interfaces.FeedbackStore, clock interfaces.RoomClock, persister interfaces.Persister, limiter *RateLimiter) *Router {
	if limiter == nil {
		limiter = NewRateLimiter(0, time.Minute)
	}
	r := &Router{
		channels:  channels,
		rooms:     rooms,
		feedback:  feedback,
		clock:     clock,
		persister: persister,
		limiter:   limiter,
		now:       time.Now,
	}

	r.studentHandlers = map[string]HandlerFunc{
		types.EventSendFeedback: r.handleSendFeedback,
	}
	r.teacherHandlers = map[string]HandlerFunc{
		types.EventStopActivity: r.handleStopActivity,
		types.EventKickStudent:  r.handleKickStudent,
	}
	return r
}

// WithClock replaces the wall clock. Intended for tests.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	r.limiter.now = now
	return r
}

// HandlersFor returns the events a credential may send and their handlers.
// Unknown roles get no handlers.
func (r *Router) HandlersFor(cred types.Credential) map[string]HandlerFunc {
	switch {
	case cred.IsTeacher():
		return r.teacherHandlers
	case cred.IsStudent():
		return r.studentHandlers
	default:
		return nil
	}
}

// Dispatch runs the handler registered for the event, if any. Events a role
// has no handler for are dropped without a reply.
func (r *Router) Dispatch(ctx context.Context, conn interfaces.Connection, in *types.Inbound) {
	if conn == nil || in == nil {
		return
	}
	cred := conn.Credential()

	handler, ok := r.HandlersFor(cred)[in.Event]
	if !ok {
		log.Printf("Dropping %s from session %d (%s) in room %s: %v", in.Event, cred.SessionID, cred.Role, cred.RoomCode, ErrUnauthorizedEvent)
		return
	}
	handler(ctx, conn, in)
}

// StartCleanup periodically evicts idle rate limiter entries until ctx ends.
func (r *Router) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.limiter.Cleanup()
			}
		}
	}()
}
