package ports

import (
	"context"

	"khatabook/internal/core"
)

// Ports for outbound adapters.
type (
	// UserStore persists users. Create must fail with core.ErrDuplicateUsername
	// when the username is taken.
	UserStore interface {
		CreateUser(ctx context.Context, username, credentialHash string) (core.User, error)
		// GetUserByUsername returns core.ErrNotFound when there is no such user.
		GetUserByUsername(ctx context.Context, username string) (core.User, error)
	}

	// LedgerWriter appends a batch of rows that share one timestamp.
	// It performs no validation of its own.
	LedgerWriter interface {
		AppendBatch(ctx context.Context, userID int64, date string, rows []core.EntryRow) (int, error)
	}

	// LedgerReader returns a user's transactions in storage order.
	LedgerReader interface {
		ListForUser(ctx context.Context, userID int64) ([]core.Transaction, error)
	}

	// BatchPublisher announces a saved batch to downstream consumers.
	BatchPublisher interface {
		PublishBatchSaved(ctx context.Context, userID int64, date string, count int) error
	}

	// LedgerMirror copies stored transactions to an external destination and
	// returns a reference to where they landed.
	LedgerMirror interface {
		AppendTransactions(ctx context.Context, txns []core.Transaction) (ref string, err error)
	}
)
