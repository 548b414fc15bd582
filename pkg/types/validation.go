package types

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ReactionKind is one of the fixed emotive reactions.
type ReactionKind string

const (
	ReactionHappy     ReactionKind = "happy"
	ReactionConfused  ReactionKind = "confused"
	ReactionSurprised ReactionKind = "surprised"
	ReactionSad       ReactionKind = "sad"
)

// AllReactions lists every recognized kind in storage-code order.
var AllReactions = []ReactionKind{ReactionHappy, ReactionConfused, ReactionSurprised, ReactionSad}

// Valid reports whether k is a recognized reaction.
func (k ReactionKind) Valid() bool {
	return k.Code() != 0
}

// Code is the integer stored for the reaction, 0 when unrecognized.
func (k ReactionKind) Code() int {
	switch k {
	case ReactionHappy:
		return 1
	case ReactionConfused:
		return 2
	case ReactionSurprised:
		return 3
	case ReactionSad:
		return 4
	default:
		return 0
	}
}

// ReactionFromCode maps a stored code back to its kind.
func ReactionFromCode(code int) (ReactionKind, bool) {
	if code < 1 || code > len(AllReactions) {
		return "", false
	}
	return AllReactions[code-1], true
}

var roomCodeRegex = regexp.MustCompile(`^[A-Z0-9]{4,8}$`)

// IsValidRoomCode checks the shape of a human-shareable room code.
func IsValidRoomCode(code string) bool {
	return roomCodeRegex.MatchString(code)
}

// IsValidRole reports whether role is teacher or student.
func IsValidRole(role string) bool {
	return role == RoleTeacher || role == RoleStudent
}

// NormalizeNickname trims a nickname and checks its length.
func NormalizeNickname(nickname string) (string, error) {
	n := strings.TrimSpace(nickname)
	if len(n) < 1 || len(n) > 64 {
		return "", ErrInvalidNickname
	}
	return n, nil
}

// Validate checks that a decoded credential is complete.
func (c *Credential) Validate() error {
	if c.SessionID <= 0 || c.RoomID <= 0 {
		return ErrInvalidCredential
	}
	if !IsValidRole(c.Role) {
		return ErrInvalidRole
	}
	if c.RoomCode == "" {
		return ErrInvalidCredential
	}
	return nil
}

// DecodeInbound parses one frame into a closed inbound variant.
// Anything outside the known set, or with malformed fields, is rejected.
func DecodeInbound(frame []byte) (*Inbound, error) {
	if len(frame) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, ErrInvalidFrame
	}

	data := env.Data
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}

	switch env.Event {
	case EventSendFeedback:
		var p struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, ErrInvalidPayload
		}
		kind := ReactionKind(p.Value)
		if !kind.Valid() {
			return nil, ErrUnknownReaction
		}
		return &Inbound{Event: env.Event, SendFeedback: &SendFeedback{Value: kind}}, nil

	case EventStopActivity:
		return &Inbound{Event: env.Event, StopActivity: &StopActivity{}}, nil

	case EventKickStudent:
		// The web client sends sessionId; session_id is the canonical field.
		var p struct {
			SessionID      *int64 `json:"session_id"`
			SessionIDCamel *int64 `json:"sessionId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, ErrInvalidPayload
		}
		id := p.SessionID
		if id == nil {
			id = p.SessionIDCamel
		}
		if id == nil || *id <= 0 {
			return nil, ErrInvalidPayload
		}
		return &Inbound{Event: env.Event, KickStudent: &KickStudent{SessionID: *id}}, nil

	default:
		return nil, ErrUnknownEvent
	}
}

// MaxFrameSize bounds inbound frames; every valid inbound event is tiny.
const MaxFrameSize = 4096
