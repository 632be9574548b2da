package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/chronopact/internal/persistence"
)

// DefaultLeaderboardLimit applies when Leaderboard is called with limit <= 0.
const DefaultLeaderboardLimit = 10

// StatsRepository implements persistence.StatsRepository using SQLite.
type StatsRepository struct {
	pool   *ConnectionPool
	retry  *RetryHelper
	mapper *ErrorMapper
}

// NewStatsRepository creates a new SQLite stats repository.
func NewStatsRepository(pool *ConnectionPool) *StatsRepository {
	return &StatsRepository{
		pool:   pool,
		retry:  NewRetryHelper(DefaultRetryConfig()),
		mapper: NewErrorMapper(),
	}
}

// ApplyEntries inserts the entries and folds them into user_stats in one
// transaction. Lock contention retries the whole batch.
func (r *StatsRepository) ApplyEntries(ctx context.Context, entries []persistence.LedgerEntry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("ledger entry %q: %w", e.ID, err)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	const upsertStats = `
		INSERT INTO user_stats (user_id, wasted_minutes, waiting_minutes, settled, no_shows, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			wasted_minutes = wasted_minutes + excluded.wasted_minutes,
			waiting_minutes = waiting_minutes + excluded.waiting_minutes,
			settled = settled + 1,
			no_shows = no_shows + excluded.no_shows,
			updated_at = excluded.updated_at
	`
	const insertEntry = `
		INSERT INTO ledger_entries (id, user_id, source, wasted_minutes, waiting_minutes, absent, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, e := range entries {
				recordedAt := e.RecordedAt.UTC().Format(time.RFC3339Nano)
				noShow := 0
				if e.Absent {
					noShow = 1
				}
				if _, err := tx.ExecContext(ctx, upsertStats, e.UserID, e.WastedMinutes, e.WaitingMinutes, noShow, recordedAt); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, insertEntry, e.ID, e.UserID, e.Source, e.WastedMinutes, e.WaitingMinutes, e.Absent, recordedAt); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// GetUserStats retrieves the totals of one user.
func (r *StatsRepository) GetUserStats(ctx context.Context, userID string) (persistence.UserStats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return persistence.UserStats{}, persistence.ErrNotFound
	}

	row := r.pool.DB().QueryRowContext(ctx, `
		SELECT user_id, wasted_minutes, waiting_minutes, settled, no_shows, updated_at
		FROM user_stats
		WHERE user_id = ?
	`, userID)
	stats, err := scanUserStats(row)
	if err != nil {
		return persistence.UserStats{}, r.mapper.MapError(err)
	}
	return stats, nil
}

// Leaderboard lists users by wasted minutes, highest first. Ties go to the
// user who waited longer, then by user id.
func (r *StatsRepository) Leaderboard(ctx context.Context, limit int) ([]persistence.UserStats, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}

	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT user_id, wasted_minutes, waiting_minutes, settled, no_shows, updated_at
		FROM user_stats
		ORDER BY wasted_minutes DESC, waiting_minutes DESC, user_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var board []persistence.UserStats
	for rows.Next() {
		stats, err := scanUserStats(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		board = append(board, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return board, nil
}

// ListEntries returns a user's ledger entries oldest first.
func (r *StatsRepository) ListEntries(ctx context.Context, userID string) ([]persistence.LedgerEntry, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, user_id, source, wasted_minutes, waiting_minutes, absent, recorded_at
		FROM ledger_entries
		WHERE user_id = ?
		ORDER BY recorded_at ASC, rowid ASC
	`, strings.TrimSpace(userID))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var entries []persistence.LedgerEntry
	for rows.Next() {
		var (
			e          persistence.LedgerEntry
			recordedAt string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Source, &e.WastedMinutes, &e.WaitingMinutes, &e.Absent, &recordedAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		e.RecordedAt = parseTimestamp(recordedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserStats(row rowScanner) (persistence.UserStats, error) {
	var (
		stats     persistence.UserStats
		updatedAt string
	)
	if err := row.Scan(&stats.UserID, &stats.WastedMinutes, &stats.WaitingMinutes, &stats.Settled, &stats.NoShows, &updatedAt); err != nil {
		return persistence.UserStats{}, err
	}
	stats.UpdatedAt = parseTimestamp(updatedAt)
	return stats, nil
}

func parseTimestamp(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
