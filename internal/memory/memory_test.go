package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"khatabook/internal/core"
)

func TestMemoryStoreUsers(t *testing.T) {
	s := New()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "asha", "h1")
	if err != nil || u.ID != 1 {
		t.Fatalf("unexpected create: u=%+v err=%v", u, err)
	}
	if _, err := s.CreateUser(ctx, "asha", "h2"); err != core.ErrDuplicateUsername {
		t.Fatalf("expected duplicate, got %v", err)
	}
	got, err := s.GetUserByUsername(ctx, "asha")
	if err != nil || got.CredentialHash != "h1" {
		t.Fatalf("unexpected get: u=%+v err=%v", got, err)
	}
	if _, err := s.GetUserByUsername(ctx, "ravi"); err != core.ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreLedger(t *testing.T) {
	s := New()
	ctx := context.Background()

	rows := []core.EntryRow{
		{Category: "Food", Description: "lunch", Kind: core.Expense, Amount: decimal.NewFromInt(150)},
		{Category: "Salary", Description: "pay", Kind: core.Income, Amount: decimal.NewFromInt(5000)},
	}
	if n, err := s.AppendBatch(ctx, 1, "2025-01-10 12:00", rows); err != nil || n != 2 {
		t.Fatalf("unexpected append: n=%d err=%v", n, err)
	}
	if _, err := s.AppendBatch(ctx, 2, "2025-01-10 12:01", rows[:1]); err != nil {
		t.Fatalf("append: %v", err)
	}

	txns, err := s.ListForUser(ctx, 1)
	if err != nil || len(txns) != 2 {
		t.Fatalf("unexpected list: %+v err=%v", txns, err)
	}
	if txns[0].ID != 1 || txns[1].ID != 2 || txns[0].Date != txns[1].Date {
		t.Fatalf("unexpected ids/dates: %+v", txns)
	}

	// Mutating the returned slice must not leak into the store.
	txns[0].Description = "changed"
	again, _ := s.ListForUser(ctx, 1)
	if again[0].Description != "lunch" {
		t.Fatalf("store was mutated through returned slice")
	}

	other, _ := s.ListForUser(ctx, 2)
	if len(other) != 1 || other[0].UserID != 2 {
		t.Fatalf("unexpected other ledger: %+v", other)
	}
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.AppendBatch(ctx, 1, "d", []core.EntryRow{{Description: "x"}}); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
	if txns, _ := s.ListForUser(context.Background(), 1); len(txns) != 0 {
		t.Fatalf("nothing should be stored")
	}
}
