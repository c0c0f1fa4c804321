package postgres

import (
	"context"
	"fmt"
	"sync"

	"fillScope/internal/model"
)

// DefaultFillBatch is the number of fills buffered before a flush.
const DefaultFillBatch = 500

// FillWriter buffers decoded fills and upserts them in batches.
type FillWriter struct {
	ctx   context.Context
	store *Store
	size  int

	mu      sync.Mutex
	pending []model.FillRecord
	written int
}

func NewFillWriter(ctx context.Context, store *Store, size int) *FillWriter {
	if size <= 0 {
		size = DefaultFillBatch
	}
	return &FillWriter{ctx: ctx, store: store, size: size}
}

// Write accepts model.FillRecord values.
func (w *FillWriter) Write(v interface{}) error {
	fill, ok := v.(model.FillRecord)
	if !ok {
		return fmt.Errorf("fill writer: unsupported record %T", v)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, fill)
	if len(w.pending) < w.size {
		return nil
	}
	return w.flushLocked()
}

// Close flushes any buffered fills.
func (w *FillWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Written returns the number of fills sent to Postgres.
func (w *FillWriter) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *FillWriter) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := w.store.UpsertFills(w.ctx, w.pending); err != nil {
		return fmt.Errorf("upsert fills: %w", err)
	}
	w.written += len(w.pending)
	w.pending = w.pending[:0]
	return nil
}
