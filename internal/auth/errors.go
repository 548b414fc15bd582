package auth

import "fmt"

// Authentication failure reasons.
const (
	ReasonMissingToken = "missing_token"
	ReasonInvalidToken = "invalid_token"
)

// AuthenticationError rejects a connection attempt before it is admitted
// to any room.
type AuthenticationError struct {
	Reason string
	Err    error
}

var (
	ErrMissingToken = &AuthenticationError{Reason: ReasonMissingToken}
	ErrInvalidToken = &AuthenticationError{Reason: ReasonInvalidToken}
)

func (e *AuthenticationError) Error() string {
	msg := "Authentication error: Invalid token"
	if e.Reason == ReasonMissingToken {
		msg = "Authentication error: No token provided"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Is matches any AuthenticationError with the same reason.
func (e *AuthenticationError) Is(target error) bool {
	t, ok := target.(*AuthenticationError)
	return ok && t.Reason == e.Reason
}

func invalidToken(cause error) error {
	return &AuthenticationError{Reason: ReasonInvalidToken, Err: cause}
}
