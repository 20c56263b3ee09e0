// Package index maintains the item index: it backfills item numbers from
// stored line items and assigns internal sequence numbers.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/bidfetch/internal/storage"
)

// SeqPrefix starts every internal sequence number.
const SeqPrefix = "ITEM"

// FormatSeq renders n as ITEMnnnnnnn.
func FormatSeq(n int) string {
	return fmt.Sprintf("%s%07d", SeqPrefix, n)
}

// ItemStore abstracts the item index operations.
type ItemStore interface {
	ItemsWithoutSeq(limit int) ([]storage.ItemIndexEntry, error)
	MaxInternalSeq() (int, error)
	SetInternalSeq(id int64, seq string) error
	DistinctItemNumbers() ([]string, error)
	RegisterItemNumber(itemNumber string) (bool, error)
}

// Worker assigns sequence numbers to new item index entries.
type Worker struct {
	store  ItemStore
	poll   time.Duration
	batch  int
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to one minute.
func NewWorker(store ItemStore, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Worker{
		store:  store,
		poll:   pollInterval,
		batch:  500,
		logger: slog.Default().With("component", "index"),
	}
}

// Run assigns sequence numbers until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("index pass failed", "error", err)
		}
		if n == w.batch {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce numbers up to one batch of entries in id order, continuing from
// the highest number already assigned. It returns how many were numbered.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	entries, err := w.store.ItemsWithoutSeq(w.batch)
	if err != nil {
		return 0, fmt.Errorf("listing unnumbered items: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	next, err := w.store.MaxInternalSeq()
	if err != nil {
		return 0, fmt.Errorf("reading highest sequence: %w", err)
	}

	assigned := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		next++
		seq := FormatSeq(next)
		if err := w.store.SetInternalSeq(e.ID, seq); err != nil {
			return assigned, fmt.Errorf("assigning %s to %s: %w", seq, e.ItemNumber(), err)
		}
		assigned++
	}
	if assigned > 0 {
		w.logger.Info("sequence numbers assigned", "count", assigned, "last", FormatSeq(next))
	}
	return assigned, nil
}

// Rebuild registers every item number found in stored line items. Existing
// entries are left untouched. It returns how many entries were added.
func (w *Worker) Rebuild(ctx context.Context) (int, error) {
	numbers, err := w.store.DistinctItemNumbers()
	if err != nil {
		return 0, fmt.Errorf("listing item numbers: %w", err)
	}
	added := 0
	for _, n := range numbers {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		ok, err := w.store.RegisterItemNumber(n)
		if err != nil {
			return added, fmt.Errorf("registering %s: %w", n, err)
		}
		if ok {
			added++
		}
	}
	return added, nil
}
