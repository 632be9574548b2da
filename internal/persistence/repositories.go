package persistence

import "context"

// StatsRepository stores ledger entries and the per-user totals derived from them.
type StatsRepository interface {
	// ApplyEntries records every entry and folds it into the owner's totals,
	// atomically for the whole batch.
	ApplyEntries(ctx context.Context, entries []LedgerEntry) error
	GetUserStats(ctx context.Context, userID string) (UserStats, error)
	// Leaderboard lists users by wasted minutes, highest first.
	Leaderboard(ctx context.Context, limit int) ([]UserStats, error)
	ListEntries(ctx context.Context, userID string) ([]LedgerEntry, error)
}
