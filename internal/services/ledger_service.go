package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"khatabook/internal/cache"
	"khatabook/internal/core"
	"khatabook/internal/log"
	"khatabook/internal/ports"
	"khatabook/internal/session"
)

// RowError reports which submitted row failed validation. Index refers to
// the position in the slice passed to SaveBatch.
type RowError struct {
	Index int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index+1, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// LedgerService owns the producer side of the ledger: it filters and
// validates entry rows before they reach the store, publishes saved batches
// and serves cached summaries.
type LedgerService struct {
	writer    ports.LedgerWriter
	reader    ports.LedgerReader
	publisher ports.BatchPublisher
	summaries *cache.Loader[core.Summary]
	now       func() time.Time
}

// NewLedgerService wires the store ports. publisher and summaryCache may be
// nil to disable messaging and caching respectively.
func NewLedgerService(
	writer ports.LedgerWriter,
	reader ports.LedgerReader,
	publisher ports.BatchPublisher,
	summaryCache cache.Cache[core.Summary],
) *LedgerService {
	s := &LedgerService{
		writer:    writer,
		reader:    reader,
		publisher: publisher,
		now:       time.Now,
	}
	if summaryCache != nil {
		s.summaries = cache.NewLoader(summaryCache)
	}
	return s
}

// SaveBatch stores rows for the session's user under one timestamp.
// Rows with a blank description are dropped. When nothing remains the call
// is a no-op returning 0. Any remaining invalid row rejects the whole batch
// with a *RowError.
func (s *LedgerService) SaveBatch(ctx context.Context, sess session.Session, rows []core.EntryRow) (int, error) {
	kept := make([]core.EntryRow, 0, len(rows))
	for i, r := range rows {
		if strings.TrimSpace(r.Description) == "" {
			continue
		}
		if err := r.Validate(); err != nil {
			return 0, &RowError{Index: i, Err: err}
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		slog.DebugContext(ctx, "Empty batch skipped", log.FieldUserID, sess.UserID, log.FieldCount, len(rows))
		return 0, nil
	}

	date := core.Timestamp(s.now())
	n, err := s.writer.AppendBatch(ctx, sess.UserID, date, kept)
	if err != nil {
		return 0, fmt.Errorf("save batch: %w", err)
	}
	s.invalidate(sess.UserID)

	structuredLogger(ctx, log.ComponentLedger).LogBatchSaved(ctx, sess.UserID, date, n)

	// Don't fail the request: the batch is already stored.
	if err := s.publishBatchSaved(ctx, sess.UserID, date, n); err != nil {
		slog.ErrorContext(ctx, "Failed to publish batch saved message",
			log.FieldUserID, sess.UserID, log.FieldDate, date, log.FieldError, err)
	}

	return n, nil
}

func (s *LedgerService) publishBatchSaved(ctx context.Context, userID int64, date string, count int) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.PublishBatchSaved(ctx, userID, date, count)
}

// List returns the session user's transactions in storage order.
func (s *LedgerService) List(ctx context.Context, sess session.Session) ([]core.Transaction, error) {
	txns, err := s.reader.ListForUser(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return txns, nil
}

// Summary returns every aggregate view of the session user's ledger.
func (s *LedgerService) Summary(ctx context.Context, sess session.Session) (core.Summary, error) {
	load := func(ctx context.Context) (core.Summary, error) {
		txns, err := s.List(ctx, sess)
		if err != nil {
			return core.Summary{}, err
		}
		return core.Summarize(txns), nil
	}
	if s.summaries == nil {
		return load(ctx)
	}
	return s.summaries.Get(ctx, summaryKey(sess.UserID), load)
}

func (s *LedgerService) invalidate(userID int64) {
	if s.summaries != nil {
		s.summaries.Invalidate(summaryKey(userID))
	}
}

func summaryKey(userID int64) string {
	return "summary:" + strconv.FormatInt(userID, 10)
}
