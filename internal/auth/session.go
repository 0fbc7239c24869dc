// Package auth wraps the external auth collaborator: it validates session
// tokens, holds the current signed-in identity and notifies listeners when
// the session changes.
package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrNoSession    = errors.New("no active session")
	ErrInvalidToken = errors.New("invalid token")
)

// Session is the authenticated identity derived from a backend-issued token.
type Session struct {
	UserID    uuid.UUID
	Email     string
	Token     string
	ExpiresAt time.Time
}

// Claims are the fields this client reads from a backend JWT.
type Claims struct {
	UserID    uuid.UUID
	Email     string
	ExpiresAt time.Time
}

// ParseToken validates an HS256 token against the shared secret and extracts
// the subject identity. Expiry is enforced by the jwt library when the exp
// claim is present.
func ParseToken(secret []byte, token string) (Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	sub, _ := mc["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{UserID: userID}
	claims.Email, _ = mc["email"].(string)
	if exp, ok := mc["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return claims, nil
}

// Store holds the current session. All mutations fire the registered change
// listeners with the new session (nil on sign-out).
type Store struct {
	secret []byte

	mu        sync.RWMutex
	session   *Session
	listeners []func(*Session)
}

// NewStore builds a session store validating tokens against secret.
func NewStore(secret []byte) *Store {
	return &Store{secret: secret}
}

// SignIn validates the token and installs the resulting session.
func (s *Store) SignIn(token string) (Session, error) {
	claims, err := ParseToken(s.secret, token)
	if err != nil {
		return Session{}, err
	}

	session := Session{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
	}

	s.mu.Lock()
	s.session = &session
	listeners := append([]func(*Session){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(&session)
	}
	return session, nil
}

// Current returns the active session.
func (s *Store) Current() (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Session{}, ErrNoSession
	}
	return *s.session, nil
}

// Token returns the active session token, or "" when signed out. Used as the
// credential provider for the realtime transport.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.Token
}

// OnChange registers a listener invoked after every sign-in and sign-out.
func (s *Store) OnChange(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SignOut clears the session and notifies listeners.
func (s *Store) SignOut() {
	s.mu.Lock()
	s.session = nil
	listeners := append([]func(*Session){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(nil)
	}
}
