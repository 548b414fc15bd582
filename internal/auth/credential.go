package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"pulseroom/pkg/types"
)

type authCtxKey int

const credentialKey authCtxKey = 1

// Claims is the signed form of an Identity Credential.
type Claims struct {
	SessionID int64  `json:"sessionId"`
	Nickname  string `json:"nickname"`
	Role      string `json:"role"`
	RoomCode  string `json:"roomCode"`
	RoomID    int64  `json:"roomId"`
	jwt.RegisteredClaims
}

// Signer mints and verifies HS256 credentials with one shared secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a Signer whose tokens live for ttl.
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl, now: time.Now}
}

// WithClock replaces the signer's time source.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Sign mints a token for cred. ExpiresAt on cred is ignored.
func (s *Signer) Sign(cred types.Credential) (string, error) {
	if err := cred.Validate(); err != nil {
		return "", err
	}
	now := s.now()
	claims := Claims{
		SessionID: cred.SessionID,
		Nickname:  cred.Nickname,
		Role:      cred.Role,
		RoomCode:  cred.RoomCode,
		RoomID:    cred.RoomID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify decodes token into a credential. Every failure is an
// AuthenticationError.
func (s *Signer) Verify(token string) (types.Credential, error) {
	if strings.TrimSpace(token) == "" {
		return types.Credential{}, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return types.Credential{}, invalidToken(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return types.Credential{}, invalidToken(errors.New("invalid token"))
	}

	cred := types.Credential{
		SessionID: claims.SessionID,
		Nickname:  claims.Nickname,
		Role:      claims.Role,
		RoomCode:  claims.RoomCode,
		RoomID:    claims.RoomID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := cred.Validate(); err != nil {
		return types.Credential{}, invalidToken(err)
	}
	return cred, nil
}

// TokenFromRequest extracts the bearer token from the Authorization header,
// falling back to the token query parameter browsers use for websockets.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// Authenticate verifies the request's token.
func (s *Signer) Authenticate(r *http.Request) (types.Credential, error) {
	return s.Verify(TokenFromRequest(r))
}

// RequireCredential rejects requests without a valid token and attaches
// the credential to the request context.
func (s *Signer) RequireCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, err := s.Authenticate(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCredential(r.Context(), cred)))
	})
}

// WithCredential returns a context carrying cred.
func WithCredential(ctx context.Context, cred types.Credential) context.Context {
	return context.WithValue(ctx, credentialKey, cred)
}

// CredentialFromContext returns the credential attached by RequireCredential.
func CredentialFromContext(ctx context.Context) (types.Credential, bool) {
	cred, ok := ctx.Value(credentialKey).(types.Credential)
	return cred, ok
}
