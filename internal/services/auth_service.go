package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"khatabook/internal/core"
	"khatabook/internal/log"
	"khatabook/internal/ports"
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// AuthService registers and authenticates users against a UserStore.
type AuthService struct {
	users ports.UserStore
	cost  int
}

// NewAuthService uses bcrypt.DefaultCost unless cost is within bcrypt's
// accepted range.
func NewAuthService(users ports.UserStore, cost int) *AuthService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &AuthService{users: users, cost: cost}
}

// structuredLogger returns the request-scoped logger for ctx.
func structuredLogger(ctx context.Context, component string) *log.StructuredLogger {
	return log.NewStructuredLogger(log.FromContext(ctx).WithComponent(component))
}

// Register creates a new account. Taken usernames fail with
// core.ErrDuplicateUsername regardless of the password given.
func (s *AuthService) Register(ctx context.Context, username, password string) (core.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return core.User{}, core.ErrEmptyUsername
	}
	if password == "" {
		return core.User{}, core.ErrEmptyPassword
	}
	if len(password) > maxPasswordBytes {
		return core.User{}, core.ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.CreateUser(ctx, username, string(hash))
	structuredLogger(ctx, log.ComponentAuth).LogAuth(ctx, log.OpRegister, username, err)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateUsername) {
			return core.User{}, err
		}
		return core.User{}, fmt.Errorf("register %q: %w", username, err)
	}
	return u, nil
}

// Authenticate returns the user whose stored digest matches password.
// Unknown usernames and wrong passwords both yield
// core.ErrInvalidCredentials. Store failures are returned wrapped.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (core.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return core.User{}, core.ErrInvalidCredentials
	}

	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			structuredLogger(ctx, log.ComponentAuth).LogAuth(ctx, log.OpLogin, username, core.ErrInvalidCredentials)
			return core.User{}, core.ErrInvalidCredentials
		}
		return core.User{}, fmt.Errorf("authenticate %q: %w", username, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.CredentialHash), []byte(password)); err != nil {
		structuredLogger(ctx, log.ComponentAuth).LogAuth(ctx, log.OpLogin, username, core.ErrInvalidCredentials)
		return core.User{}, core.ErrInvalidCredentials
	}

	structuredLogger(ctx, log.ComponentAuth).LogAuth(ctx, log.OpLogin, username, nil)
	return u, nil
}
