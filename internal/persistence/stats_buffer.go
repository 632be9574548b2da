package persistence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/chronopact/internal/ledger"
)

// StatsBuffer collects appended deltas in memory and writes them to a
// StatsRepository in one batch on Flush. A failed flush keeps the batch queued
// so the next flush retries it.
type StatsBuffer struct {
	repo  StatsRepository
	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	pending []LedgerEntry
}

// NewStatsBuffer wraps repo. Nil now or newID fall back to time.Now and uuid.
func NewStatsBuffer(repo StatsRepository, now func() time.Time, newID func() string) *StatsBuffer {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &StatsBuffer{repo: repo, now: now, newID: newID}
}

// Append queues delta for userID.
func (b *StatsBuffer) Append(_ context.Context, userID string, delta ledger.Delta) error {
	if b == nil {
		return fmt.Errorf("StatsBuffer is nil")
	}
	entry := LedgerEntry{
		ID:             b.newID(),
		UserID:         strings.TrimSpace(userID),
		Source:         delta.Source,
		WastedMinutes:  delta.WastedMinutes,
		WaitingMinutes: delta.WaitingMinutes,
		Absent:         delta.Absent(),
		RecordedAt:     b.now().UTC(),
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("append delta for %q: %w", userID, err)
	}

	b.mu.Lock()
	b.pending = append(b.pending, entry)
	b.mu.Unlock()
	return nil
}

// Flush writes every queued entry.
func (b *StatsBuffer) Flush(ctx context.Context) error {
	if b == nil {
		return fmt.Errorf("StatsBuffer is nil")
	}

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := b.repo.ApplyEntries(ctx, batch); err != nil {
		b.mu.Lock()
		b.pending = append(batch, b.pending...)
		b.mu.Unlock()
		return fmt.Errorf("flush %d ledger entries: %w", len(batch), err)
	}
	return nil
}

// Pending reports how many entries wait for the next flush.
func (b *StatsBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
