package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"khatabook/internal/core"
	"khatabook/internal/ports"

	_ "modernc.org/sqlite"
)

// Ensure interface conformance
var (
	_ ports.UserStore    = (*SQLiteRepository)(nil)
	_ ports.LedgerWriter = (*SQLiteRepository)(nil)
	_ ports.LedgerReader = (*SQLiteRepository)(nil)
)

// SQLiteRepository owns the process-wide database handle shared by the
// credential store and the ledger store.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateUser implements ports.UserStore
func (r *SQLiteRepository) CreateUser(ctx context.Context, username, credentialHash string) (core.User, error) {
	u, err := r.queries.CreateUser(ctx, username, credentialHash)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateUsername) {
			return core.User{}, err
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User saved to SQLite", "id", u.ID, "username", u.Username)
	return u, nil
}

// GetUserByUsername implements ports.UserStore
func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	u, err := r.queries.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.User{}, err
		}
		return core.User{}, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// AppendBatch implements ports.LedgerWriter. All rows are inserted in one
// transaction with the same date. Rows are stored as given.
func (r *SQLiteRepository) AppendBatch(ctx context.Context, userID int64, date string, rows []core.EntryRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	err := WithTx(ctx, r.db, func(ctx context.Context, tx DBTX) error {
		q := New(tx)
		for i, row := range rows {
			if err := q.InsertTransaction(ctx, userID, date, row); err != nil {
				return fmt.Errorf("insert row %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("append batch: %w", err)
	}

	slog.InfoContext(ctx, "Transactions saved to SQLite",
		"user_id", userID,
		"date", date,
		"count", len(rows))

	return len(rows), nil
}

// ListForUser implements ports.LedgerReader
func (r *SQLiteRepository) ListForUser(ctx context.Context, userID int64) ([]core.Transaction, error) {
	txns, err := r.queries.ListTransactionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions for user %d: %w", userID, err)
	}
	return txns, nil
}
