package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	httptransport "github.com/example/chronopact/internal/http"
	"github.com/example/chronopact/internal/logging"
	"github.com/example/chronopact/internal/persistence"
	"github.com/example/chronopact/internal/persistence/sqlite"
)

func init() {
	color.NoColor = true
}

func seedDatabase(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chronopact.db")
	storage, err := sqlite.Open(path, logging.Discard())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer storage.Close()
	ctx := context.Background()
	if err := storage.Migrate(ctx); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}

	at := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)
	err = storage.Stats().ApplyEntries(ctx, []persistence.LedgerEntry{
		{ID: "1", UserID: "bob", Source: "harassment:given-up", WastedMinutes: 125, RecordedAt: at},
		{ID: "2", UserID: "alice", Source: "harassment:given-up", WaitingMinutes: 62, RecordedAt: at},
	})
	if err != nil {
		t.Fatalf("ApplyEntries returned error: %v", err)
	}
	return path
}

func TestRun_Leaderboard(t *testing.T) {
	path := seedDatabase(t)

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"leaderboard", "-db", path, "-limit", "5"}, &stdout, &stderr); err != nil {
		t.Fatalf("run returned error: %v (stderr %s)", err, stderr.String())
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, columns and two rows, got %q", stdout.String())
	}
	if !strings.HasPrefix(lines[2], "1") || !strings.Contains(lines[2], "bob") || !strings.Contains(lines[2], "2h05m") {
		t.Fatalf("unexpected first row %q", lines[2])
	}
	if !strings.Contains(lines[3], "alice") || !strings.Contains(lines[3], "1h02m") {
		t.Fatalf("unexpected second row %q", lines[3])
	}
}

func TestRun_LeaderboardRejectsMissingDatabase(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"leaderboard", "-db", filepath.Join(t.TempDir(), "absent.db")}, &stdout, &stderr)
	if err == nil || errors.Is(err, errUsage) {
		t.Fatalf("expected a non-usage error, got %v", err)
	}
}

func TestRun_Migrations(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"migrations", "-db", seedDatabase(t)}, &stdout, &stderr); err != nil {
		t.Fatalf("run returned error: %v (stderr %s)", err, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "current version 001") || !strings.Contains(out, "applied  001") || strings.Contains(out, "pending") {
		t.Fatalf("unexpected status %q", out)
	}

	fresh := filepath.Join(t.TempDir(), "fresh.db")
	if err := os.WriteFile(fresh, nil, 0o600); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	stdout.Reset()
	if err := run(context.Background(), []string{"migrations", "-db", fresh}, &stdout, &stderr); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if out := stdout.String(); !strings.Contains(out, "current version none") || !strings.Contains(out, "pending  001") {
		t.Fatalf("expected pending schema, got %q", out)
	}
}

func TestRun_HashToken(t *testing.T) {
	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"hash-token", "s3cret"}, &stdout, &stdout); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	hash := strings.TrimSpace(stdout.String())
	if err := httptransport.VerifyToken(hash, "s3cret"); err != nil {
		t.Fatalf("printed hash does not verify: %v", err)
	}
}

func TestRun_Usage(t *testing.T) {
	cases := [][]string{
		nil,
		{"explode"},
		{"hash-token"},
		{"leaderboard", "-limit", "0"},
	}
	for _, args := range cases {
		var out bytes.Buffer
		if err := run(context.Background(), args, &out, &out); !errors.Is(err, errUsage) {
			t.Fatalf("%q: expected usage error, got %v", args, err)
		}
	}
}

func TestFormatMinutes(t *testing.T) {
	tests := map[int]string{0: "0m", 45: "45m", 60: "1h00m", 185: "3h05m"}
	for in, want := range tests {
		if got := formatMinutes(in); got != want {
			t.Fatalf("formatMinutes(%d) = %q, want %q", in, got, want)
		}
	}
}
