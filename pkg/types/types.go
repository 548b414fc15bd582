package types

import (
	"time"
)

// Roles carried by an Identity Credential.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Inbound event names (connection -> server).
const (
	EventSendFeedback = "send_feedback"
	EventStopActivity = "stop_activity"
	EventKickStudent  = "kick_student"
)

// Outbound event names (server -> connection(s)).
const (
	EventRoomState            = "room_state"
	EventTeacherDashboardData = "teacher_dashboard_data"
	EventParticipantJoined    = "participant_joined"
	EventParticipantLeft      = "participant_left"
	EventReceiveFeedback      = "receive_feedback"
	EventActivityEnded        = "activity_ended"
	EventError                = "error"
)

// Credential is the decoded Identity Credential bound to one connection.
// It is immutable for the lifetime of the connection.
type Credential struct {
	SessionID int64     `json:"session_id"`
	Nickname  string    `json:"nickname"`
	Role      string    `json:"role"`
	RoomCode  string    `json:"room_code"`
	RoomID    int64     `json:"room_id"`
	ExpiresAt time.Time `json:"-"`
}

// IsTeacher reports whether the credential carries the teacher role.
func (c Credential) IsTeacher() bool { return c.Role == RoleTeacher }

// IsStudent reports whether the credential carries the student role.
func (c Credential) IsStudent() bool { return c.Role == RoleStudent }

// Room is one teacher-led feedback session.
// IsActive moves from true to false exactly once.
type Room struct {
	ID             int64      `json:"id" db:"id"`
	Code           string     `json:"code" db:"code"`
	TeacherID      int64      `json:"teacher_id" db:"teacher_id"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	StartTime      time.Time  `json:"start_time" db:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty" db:"end_time"`
	Name           string     `json:"name" db:"name"`
	Description    string     `json:"description" db:"description"`
	NoParticipants int        `json:"no_participants" db:"no_participants"`
}

// Identity is a nickname-bearing session row (teacher or student) that
// credentials are minted for.
type Identity struct {
	ID        int64     `json:"id" db:"id"`
	Nickname  string    `json:"nickname" db:"nickname"`
	Kind      string    `json:"kind" db:"kind"` // "T" or "S"
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Identity kinds as stored.
const (
	IdentityKindTeacher = "T"
	IdentityKindStudent = "S"
)

// Membership is one participant's presence interval in a room.
// At most one row per (SessionID, RoomID) has a nil LeavedAt.
type Membership struct {
	SessionID int64      `json:"session_id" db:"session_id"`
	RoomID    int64      `json:"room_id" db:"room_id"`
	Nickname  string     `json:"nickname" db:"nickname"`
	JoinAt    time.Time  `json:"join_at" db:"join_at"`
	LeavedAt  *time.Time `json:"leaved_at,omitempty" db:"leaved_at"`
}

// Active reports whether the membership interval is still open.
func (m Membership) Active() bool { return m.LeavedAt == nil }

// Feedback is one persisted reaction. Immutable once created.
type Feedback struct {
	SessionID        int64        `json:"session_id" db:"session_id"`
	RoomID           int64        `json:"room_id" db:"room_id"`
	Kind             ReactionKind `json:"kind" db:"kind"`
	MomentOfFeedback int          `json:"moment_of_feedback" db:"moment_of_feedback"`
	FeedbackOn       time.Time    `json:"feedback_on" db:"feedback_on"`
}
