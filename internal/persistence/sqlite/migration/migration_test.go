package migration

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewConnectionManager(TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "test.db"))).GetConnection()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestScan_SortsByNumericVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_later.sql": {Data: []byte("CREATE TABLE b (id TEXT);")},
		"m/002_first.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
		"m/README.md":     {Data: []byte("ignored")},
		"m/003_third.sql": {Data: []byte("-- comment\nCREATE TABLE c (id TEXT);")},
	}

	migrations, err := Scan(fsys, "m")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var versions []string
	for _, m := range migrations {
		versions = append(versions, m.Version)
	}
	if got := strings.Join(versions, ","); got != "002,003,010" {
		t.Fatalf("unexpected order %s", got)
	}
	if migrations[0].Description != "first" || len(migrations[0].Checksum) != 64 {
		t.Fatalf("unexpected migration %+v", migrations[0])
	}
}

func TestScan_RejectsBadFiles(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		want error
	}{
		{
			name: "bad name",
			fsys: fstest.MapFS{"m/initial.sql": {Data: []byte("SELECT 1;")}},
			want: ErrInvalidMigrationFile,
		},
		{
			name: "duplicate version",
			fsys: fstest.MapFS{
				"m/001_a.sql": {Data: []byte("SELECT 1;")},
				"m/001_b.sql": {Data: []byte("SELECT 1;")},
			},
			want: ErrDuplicateVersion,
		},
		{
			name: "empty file",
			fsys: fstest.MapFS{"m/001_empty.sql": {Data: []byte("  \n")}},
			want: ErrInvalidMigrationFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan(tt.fsys, "m")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("-- header\nCREATE TABLE a (id TEXT);\n\n-- only a comment;\nCREATE INDEX i ON a(id);")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
	if got[1] != "CREATE INDEX i ON a(id)" {
		t.Fatalf("unexpected statement %q", got[1])
	}
}

func TestRunner_AppliesEmbeddedSchemaOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	runner := NewRunner(Embedded, EmbeddedDir, NewSQLiteExecutor(db), nil)

	applied, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if applied == 0 {
		t.Fatal("expected embedded migrations to be applied")
	}

	for _, table := range []string{"user_stats", "ledger_entries", "schema_migrations"} {
		var name string
		if err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}

	again, err := runner.Run(ctx)
	if err != nil || again != 0 {
		t.Fatalf("second run applied %d (%v), expected 0", again, err)
	}

	status, err := runner.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.CurrentVersion != "001" || len(status.Pending) != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestRunner_DetectsEditedMigration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	executor := NewSQLiteExecutor(db)

	original := fstest.MapFS{"m/001_a.sql": {Data: []byte("CREATE TABLE a (id TEXT);")}}
	if _, err := NewRunner(original, "m", executor, nil).Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	edited := fstest.MapFS{"m/001_a.sql": {Data: []byte("CREATE TABLE a (id TEXT, extra TEXT);")}}
	_, err := NewRunner(edited, "m", executor, nil).Run(ctx)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestRunner_FailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	executor := NewSQLiteExecutor(db)

	fsys := fstest.MapFS{
		"m/001_ok.sql":     {Data: []byte("CREATE TABLE ok (id TEXT);")},
		"m/002_broken.sql": {Data: []byte("CREATE TABLE half (id TEXT);\nTHIS IS NOT SQL;")},
	}
	applied, err := NewRunner(fsys, "m", executor, nil).Run(ctx)
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected 1 applied migration before failure, got %d", applied)
	}

	versions, err := executor.GetAppliedVersions(ctx)
	if err != nil || len(versions) != 1 || versions[0].Version != "001" {
		t.Fatalf("expected only 001 recorded, got %+v (%v)", versions, err)
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'half'`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 0 {
		t.Fatal("expected partial migration to be rolled back")
	}
}

func TestConnectionManager_ValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		config SQLiteConfig
		valid  bool
	}{
		{name: "defaults", config: DefaultSQLiteConfig("data/chronopact.db"), valid: true},
		{name: "empty path", config: SQLiteConfig{}, valid: false},
		{name: "query in path", config: SQLiteConfig{Path: "x.db?mode=ro"}, valid: false},
		{name: "bad journal", config: SQLiteConfig{Path: "x.db", JournalMode: "FAST"}, valid: false},
		{name: "negative timeout", config: SQLiteConfig{Path: "x.db", BusyTimeout: -1}, valid: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConnectionManager(tt.config).ValidateConfig()
			if (err == nil) != tt.valid {
				t.Fatalf("valid=%v, got err %v", tt.valid, err)
			}
		})
	}
}

func TestConnectionManager_DataSourceNameCarriesPragmas(t *testing.T) {
	dsn := NewConnectionManager(DefaultSQLiteConfig("/tmp/x.db")).DataSourceName()
	for _, want := range []string{"file:/tmp/x.db?", "foreign_keys%281%29", "journal_mode%28WAL%29", "busy_timeout%2830000%29"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("expected %s in %s", want, dsn)
		}
	}
}
