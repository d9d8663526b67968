package memory

import (
	"context"
	"sync"

	"khatabook/internal/core"
	"khatabook/internal/ports"
)

var (
	_ ports.UserStore    = (*Store)(nil)
	_ ports.LedgerWriter = (*Store)(nil)
	_ ports.LedgerReader = (*Store)(nil)
)

// Store keeps users and transactions in process memory. Ids are assigned
// sequentially starting at 1, like an autoincrement column.
type Store struct {
	mu         sync.Mutex
	users      []core.User
	byUsername map[string]int
	txns       []core.Transaction
}

func New() *Store {
	return &Store{byUsername: make(map[string]int)}
}

// CreateUser implements ports.UserStore.
func (s *Store) CreateUser(_ context.Context, username, credentialHash string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUsername[username]; ok {
		return core.User{}, core.ErrDuplicateUsername
	}
	u := core.User{ID: int64(len(s.users) + 1), Username: username, CredentialHash: credentialHash}
	s.users = append(s.users, u)
	s.byUsername[username] = len(s.users) - 1
	return u, nil
}

// GetUserByUsername implements ports.UserStore.
func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byUsername[username]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return s.users[idx], nil
}

// AppendBatch implements ports.LedgerWriter. The whole batch is added under
// one lock so readers never observe half of it.
func (s *Store) AppendBatch(ctx context.Context, userID int64, date string, rows []core.EntryRow) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.txns = append(s.txns, core.Transaction{
			ID:          int64(len(s.txns) + 1),
			UserID:      userID,
			Date:        date,
			Category:    r.Category,
			Description: r.Description,
			Kind:        r.Kind,
			Amount:      r.Amount,
		})
	}
	return len(rows), nil
}

// ListForUser implements ports.LedgerReader. The result is a copy.
func (s *Store) ListForUser(_ context.Context, userID int64) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }
