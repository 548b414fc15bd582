package types

import (
	"encoding/json"
	"time"
)

// Envelope is the frame format on the wire in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is an event ready to be written to one or more connections.
type Outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// NewOutbound pairs an event name with its payload.
func NewOutbound(event string, data interface{}) Outbound {
	if data == nil {
		data = struct{}{}
	}
	return Outbound{Event: event, Data: data}
}

// Inbound payloads. Each variant has fixed fields and is validated by Decode.

// SendFeedback asks the server to relay a reaction.
type SendFeedback struct {
	Value ReactionKind
}

// StopActivity ends the room. Teacher only.
type StopActivity struct{}

// KickStudent disconnects one student from the room. Teacher only.
type KickStudent struct {
	SessionID int64
}

// Inbound is one decoded, validated inbound event.
// Exactly one of the payload pointers is non-nil.
type Inbound struct {
	Event        string
	SendFeedback *SendFeedback
	StopActivity *StopActivity
	KickStudent  *KickStudent
}

// Outbound payloads.

// RoomState is sent privately on bind.
type RoomState struct {
	StartTime        *time.Time `json:"startTime"`
	ParticipantCount int        `json:"participantCount"`
}

// Participant is one roster line in the teacher dashboard.
type Participant struct {
	SessionID int64      `json:"sessionId"`
	Nickname  string     `json:"nickname"`
	JoinAt    time.Time  `json:"joinAt"`
	LeavedAt  *time.Time `json:"leavedAt"`
}

// TeacherDashboardData is sent privately to teachers on bind.
type TeacherDashboardData struct {
	Participants    []Participant `json:"participants"`
	Timestamp       time.Time     `json:"timestamp"`
	RoomName        string        `json:"roomName"`
	RoomDescription string        `json:"roomDescription"`
}

// ParticipantChange is broadcast on student join and leave.
type ParticipantChange struct {
	Nickname  string `json:"nickname"`
	SessionID int64  `json:"sessionId"`
	Count     int    `json:"count"`
}

// ReceiveFeedback is the live broadcast of a reaction.
type ReceiveFeedback struct {
	SessionID int64        `json:"sessionId"`
	Value     ReactionKind `json:"value"`
}

// ErrorPayload is sent privately when a teacher action fails.
type ErrorPayload struct {
	Message string `json:"message"`
}
