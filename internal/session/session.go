// Package session issues and verifies the signed tokens that identify a
// logged-in user between requests.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"khatabook/internal/core"
)

// CookieName is the HTTP cookie carrying the session token.
const CookieName = "khatabook_session"

// Session is the authenticated identity passed to ledger operations.
type Session struct {
	ID        uuid.UUID
	UserID    int64
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims is the JWT payload. The session ID travels in the jti claim.
type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// Manager signs sessions with an HS256 secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret []byte, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{secret: secret, ttl: ttl, now: time.Now}
}

// TTL returns the validity of newly issued sessions.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue creates a session for u and returns it with its signed token.
func (m *Manager) Issue(u core.User) (Session, string, error) {
	now := m.now().Truncate(time.Second)
	s := Session{
		ID:        uuid.New(),
		UserID:    u.ID,
		Username:  u.Username,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   s.UserID,
		Username: s.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID.String(),
			Subject:   s.Username,
			IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return Session{}, "", fmt.Errorf("sign session: %w", err)
	}
	return s, signed, nil
}

// Parse verifies a token and returns its session. Any failure is reported
// as core.ErrUnauthorized wrapping the cause.
func (m *Manager) Parse(tokenString string) (Session, error) {
	if tokenString == "" {
		return Session{}, core.ErrUnauthorized
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", core.ErrUnauthorized, err)
	}
	if !token.Valid {
		return Session{}, core.ErrUnauthorized
	}

	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return Session{}, fmt.Errorf("%w: session id: %w", core.ErrUnauthorized, err)
	}
	if claims.UserID <= 0 || claims.Username == "" {
		return Session{}, fmt.Errorf("%w: %w", core.ErrUnauthorized, errors.New("missing identity claims"))
	}

	s := Session{
		ID:       id,
		UserID:   claims.UserID,
		Username: claims.Username,
	}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
