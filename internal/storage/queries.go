package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"khatabook/internal/core"
)

// Queries wraps the SQL statements used by the repository. It runs against
// either the database or an open transaction.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const createUser = `INSERT INTO users (username, password_hash) VALUES (?, ?) RETURNING id`

func (q *Queries) CreateUser(ctx context.Context, username, hash string) (core.User, error) {
	u := core.User{Username: username, CredentialHash: hash}
	if err := q.db.QueryRowContext(ctx, createUser, username, hash).Scan(&u.ID); err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.ErrDuplicateUsername
		}
		return core.User{}, err
	}
	return u, nil
}

const getUserByUsername = `SELECT id, username, password_hash FROM users WHERE username = ?`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	var u core.User
	err := q.db.QueryRowContext(ctx, getUserByUsername, username).Scan(&u.ID, &u.Username, &u.CredentialHash)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	return u, err
}

const insertTransaction = `INSERT INTO transactions (user_id, date, category, description, type, amount)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, userID int64, date string, r core.EntryRow) error {
	_, err := q.db.ExecContext(ctx, insertTransaction,
		userID, date, r.Category, r.Description, string(r.Kind), r.Amount.InexactFloat64())
	return err
}

const listTransactionsForUser = `SELECT id, user_id, date, category, description, type, amount
FROM transactions WHERE user_id = ? ORDER BY id`

func (q *Queries) ListTransactionsForUser(ctx context.Context, userID int64) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsForUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t      core.Transaction
			kind   string
			amount float64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Date, &t.Category, &t.Description, &kind, &amount); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Kind = core.Kind(kind)
		t.Amount = decimal.NewFromFloat(amount)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
