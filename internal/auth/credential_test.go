package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"pulseroom/pkg/types"
)

var testSecret = []byte("test-secret")

func studentCredential() types.Credential {
	return types.Credential{
		SessionID: 42,
		Nickname:  "alice",
		Role:      types.RoleStudent,
		RoomCode:  "ABCD1234",
		RoomID:    7,
	}
}

func TestSigner_RoundTrip(t *testing.T) {
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	signer := NewSigner(testSecret, 24*time.Hour).WithClock(func() time.Time { return issued })

	token, err := signer.Sign(studentCredential())
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	cred, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	want := studentCredential()
	if cred.SessionID != want.SessionID || cred.Nickname != want.Nickname ||
		cred.Role != want.Role || cred.RoomCode != want.RoomCode || cred.RoomID != want.RoomID {
		t.Errorf("credential mismatch: got %+v want %+v", cred, want)
	}
	if !cred.ExpiresAt.Equal(issued.Add(24 * time.Hour)) {
		t.Errorf("unexpected expiry %v", cred.ExpiresAt)
	}
}

func TestSigner_SignRejectsIncompleteCredential(t *testing.T) {
	signer := NewSigner(testSecret, time.Hour)
	cred := studentCredential()
	cred.Role = "admin"
	if _, err := signer.Sign(cred); err == nil {
		t.Error("Sign should reject an unknown role")
	}
}

func TestSigner_VerifyFailures(t *testing.T) {
	now := time.Now()
	signer := NewSigner(testSecret, time.Hour)

	good, err := signer.Sign(studentCredential())
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	expired, _ := NewSigner(testSecret, time.Minute).
		WithClock(func() time.Time { return now.Add(-time.Hour) }).
		Sign(studentCredential())

	foreign, _ := NewSigner([]byte("other-secret"), time.Hour).Sign(studentCredential())

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SessionID: 1, Nickname: "x", Role: types.RoleStudent, RoomCode: "ABCD", RoomID: 1,
	}).SignedString(testSecret)

	missingRoom, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SessionID: 1, Nickname: "x", Role: types.RoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString(testSecret)

	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		SessionID: 1, Nickname: "x", Role: types.RoleTeacher, RoomCode: "ABCD", RoomID: 1,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"whitespace", "   ", ErrMissingToken},
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"tampered", good[:len(good)-2] + "xx", ErrInvalidToken},
		{"expired", expired, ErrInvalidToken},
		{"bad signature", foreign, ErrInvalidToken},
		{"no expiry", noExpiry, ErrInvalidToken},
		{"missing room", missingRoom, ErrInvalidToken},
		{"alg none", noneAlg, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signer.Verify(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify() error = %v, want %v", err, tt.want)
			}
			var authErr *AuthenticationError
			if !errors.As(err, &authErr) {
				t.Errorf("error should be an AuthenticationError, got %T", err)
			}
		})
	}
}

func TestAuthenticationError_Messages(t *testing.T) {
	if ErrMissingToken.Error() != "Authentication error: No token provided" {
		t.Errorf("unexpected message %q", ErrMissingToken.Error())
	}
	if ErrInvalidToken.Error() != "Authentication error: Invalid token" {
		t.Errorf("unexpected message %q", ErrInvalidToken.Error())
	}
	if errors.Is(ErrMissingToken, ErrInvalidToken) {
		t.Error("reasons must not match each other")
	}

	wrapped := invalidToken(errors.New("signature is invalid"))
	if !strings.HasPrefix(wrapped.Error(), "Authentication error: Invalid token") {
		t.Errorf("unexpected wrapped message %q", wrapped.Error())
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	if got := TokenFromRequest(r); got != "from-query" {
		t.Errorf("expected query token, got %q", got)
	}

	r.Header.Set("Authorization", "Bearer from-header")
	if got := TokenFromRequest(r); got != "from-header" {
		t.Errorf("header should win, got %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Basic abc")
	if got := TokenFromRequest(r); got != "" {
		t.Errorf("non-bearer header should be ignored, got %q", got)
	}
}

func TestRequireCredential(t *testing.T) {
	signer := NewSigner(testSecret, time.Hour)
	token, _ := signer.Sign(studentCredential())

	var seen types.Credential
	handler := signer.RequireCredential(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CredentialFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/report/ABCD1234", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/report/ABCD1234", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with token, got %d", w.Code)
	}
	if seen.SessionID != 42 {
		t.Errorf("credential not attached to context: %+v", seen)
	}
}
