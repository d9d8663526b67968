package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"khatabook/internal/amqp"
	"khatabook/internal/core"
	"khatabook/internal/log"
	"khatabook/internal/ports"
)

// MirrorWorker copies saved batches from the ledger store to a mirror such
// as a spreadsheet.
type MirrorWorker struct {
	reader ports.LedgerReader
	mirror ports.LedgerMirror

	// lastMirrored holds the highest transaction id copied per user, so two
	// batches stamped in the same minute are not mirrored twice.
	mu           sync.Mutex
	lastMirrored map[int64]int64
}

func NewMirrorWorker(reader ports.LedgerReader, mirror ports.LedgerMirror) *MirrorWorker {
	return &MirrorWorker{
		reader:       reader,
		mirror:       mirror,
		lastMirrored: make(map[int64]int64),
	}
}

// HandleBatchSaved mirrors the rows of the announced batch. It is the
// amqp.BatchSavedHandler of the worker process.
func (w *MirrorWorker) HandleBatchSaved(ctx context.Context, msg *amqp.BatchSavedMessage) error {
	slog.InfoContext(ctx, "Processing batch saved message",
		log.FieldComponent, log.ComponentWorker,
		log.FieldUserID, msg.UserID,
		log.FieldDate, msg.Date,
		log.FieldCount, msg.Count)

	txns, err := w.reader.ListForUser(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("list ledger for user %d: %w", msg.UserID, err)
	}

	w.mu.Lock()
	after := w.lastMirrored[msg.UserID]
	w.mu.Unlock()

	batch := make([]core.Transaction, 0, msg.Count)
	for _, t := range txns {
		if t.Date == msg.Date && t.ID > after {
			batch = append(batch, t)
		}
	}

	if len(batch) == 0 {
		slog.WarnContext(ctx, "No unmirrored rows for batch, skipping",
			log.FieldUserID, msg.UserID, log.FieldDate, msg.Date)
		return nil
	}
	if len(batch) != msg.Count {
		slog.WarnContext(ctx, "Batch size differs from announced count",
			log.FieldUserID, msg.UserID,
			log.FieldDate, msg.Date,
			"announced", msg.Count,
			"found", len(batch))
	}

	ref, err := w.mirror.AppendTransactions(ctx, batch)
	if err != nil {
		return fmt.Errorf("mirror batch: %w", err)
	}

	w.mu.Lock()
	if last := batch[len(batch)-1].ID; last > w.lastMirrored[msg.UserID] {
		w.lastMirrored[msg.UserID] = last
	}
	w.mu.Unlock()

	slog.InfoContext(ctx, "Batch mirrored",
		log.FieldComponent, log.ComponentWorker,
		log.FieldUserID, msg.UserID,
		log.FieldCount, len(batch),
		log.FieldSheetsRef, ref)
	return nil
}
