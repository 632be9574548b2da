package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/chronopact/internal/logging"
	"github.com/example/chronopact/internal/persistence"
	"github.com/example/chronopact/internal/persistence/sqlite"
	"github.com/example/chronopact/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides ledger persistence backed by a temporary SQLite
// database for integration-style tests.
type SQLiteHarness struct {
	Storage *sqlite.Storage
	Stats   *sqlite.StatsRepository
	Buffer  *persistence.StatsBuffer

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. The buffer stamps entries with clock when given.
// Callers may invoke Close early; a cleanup callback is registered with tb.
func NewSQLiteHarness(tb testing.TB, clock *Clock) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "chronopact.db")
	storage, err := sqlite.OpenWithConfig(migration.TempFileTestSQLiteConfig(path), logging.Discard())
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage: storage,
		Stats:   storage.Stats(),
		Buffer:  persistence.NewStatsBuffer(storage.Stats(), clock.NowFunc(), nil),
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
