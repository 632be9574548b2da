// Command chronopactctl is the operator tool for a chronopact deployment.
//
//	chronopactctl leaderboard [-db path] [-limit N] [-no-color]
//	chronopactctl migrations [-db path] [-no-color]
//	chronopactctl hash-token <token>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	httptransport "github.com/example/chronopact/internal/http"
	"github.com/example/chronopact/internal/logging"
	"github.com/example/chronopact/internal/persistence"
	"github.com/example/chronopact/internal/persistence/sqlite"
	"github.com/example/chronopact/internal/persistence/sqlite/migration"
)

const usage = `usage:
  chronopactctl leaderboard [-db path] [-limit N] [-no-color]
  chronopactctl migrations [-db path] [-no-color]
  chronopactctl hash-token <token>`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "chronopactctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "leaderboard":
		return leaderboardCommand(ctx, args[1:], stdout, stderr)
	case "migrations":
		return migrationsCommand(ctx, args[1:], stdout, stderr)
	case "hash-token":
		return hashTokenCommand(args[1:], stdout)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func leaderboardCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", defaultDBPath(), "SQLite database path")
	limit := fs.Int("limit", sqlite.DefaultLeaderboardLimit, "number of rows to show")
	noColor := fs.Bool("no-color", false, "disable colored output")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *limit <= 0 {
		return fmt.Errorf("%w: -limit must be positive", errUsage)
	}
	if *noColor {
		color.NoColor = true
	}

	storage, err := openExisting(*dbPath)
	if err != nil {
		return err
	}
	defer storage.Close()
	if err := storage.Migrate(ctx); err != nil {
		return err
	}

	rows, err := storage.Stats().Leaderboard(ctx, *limit)
	if err != nil {
		return fmt.Errorf("read leaderboard: %w", err)
	}
	printLeaderboard(stdout, rows)
	return nil
}

func migrationsCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrations", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", defaultDBPath(), "SQLite database path")
	noColor := fs.Bool("no-color", false, "disable colored output")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *noColor {
		color.NoColor = true
	}

	storage, err := openExisting(*dbPath)
	if err != nil {
		return err
	}
	defer storage.Close()

	status, err := storage.SchemaStatus(ctx)
	if err != nil {
		return err
	}
	printSchemaStatus(stdout, status)
	return nil
}

// openExisting opens path only when the file already exists.
func openExisting(path string) (*sqlite.Storage, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	return sqlite.Open(path, logging.Discard())
}

func printSchemaStatus(w io.Writer, status migration.Status) {
	headerColor := color.New(color.FgHiCyan, color.Bold)
	appliedColor := color.New(color.FgGreen)
	pendingColor := color.New(color.FgYellow, color.Bold)

	version := status.CurrentVersion
	if version == "" {
		version = "none"
	}
	headerColor.Fprintf(w, "[Schema] current version %s\n", version)
	for _, m := range status.Applied {
		appliedColor.Fprintf(w, "applied  %s  %s  %dms\n", m.Version, m.AppliedAt.Format(time.RFC3339), m.ExecutionTime.Milliseconds())
	}
	for _, m := range status.Pending {
		pendingColor.Fprintf(w, "pending  %s  %s\n", m.Version, m.Description)
	}
}

func defaultDBPath() string {
	if path := strings.TrimSpace(os.Getenv("CHRONOPACT_SQLITE_PATH")); path != "" {
		return path
	}
	return "chronopact.db"
}

func printLeaderboard(w io.Writer, rows []persistence.UserStats) {
	headerColor := color.New(color.FgHiCyan, color.Bold)
	worstColor := color.New(color.FgRed, color.Bold)
	wastedColor := color.New(color.FgHiMagenta)
	waitingColor := color.New(color.FgGreen)
	dimColor := color.New(color.FgWhite)

	headerColor.Fprintln(w, "[Chronopact Leaderboard]")
	if len(rows) == 0 {
		dimColor.Fprintln(w, "nobody has wasted anyone's time yet")
		return
	}

	headerColor.Fprintf(w, "%-4s %-24s %8s %8s %8s %8s\n", "#", "user", "wasted", "waiting", "settled", "no-show")
	for i, row := range rows {
		name := fmt.Sprintf("%-24s", row.UserID)
		if i == 0 && row.WastedMinutes > 0 {
			name = worstColor.Sprint(name)
		}
		fmt.Fprintf(w, "%-4d %s %s %s %8d %8d\n",
			i+1,
			name,
			wastedColor.Sprintf("%8s", formatMinutes(row.WastedMinutes)),
			waitingColor.Sprintf("%8s", formatMinutes(row.WaitingMinutes)),
			row.Settled,
			row.NoShows,
		)
	}
}

// formatMinutes renders minutes as 45m or 3h05m.
func formatMinutes(minutes int) string {
	d := time.Duration(minutes) * time.Minute
	if d < time.Hour {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}

func hashTokenCommand(args []string, stdout io.Writer) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("%w: hash-token takes exactly one token", errUsage)
	}
	hash, err := httptransport.HashToken(args[0], httptransport.DefaultArgon2idParams)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}
	fmt.Fprintln(stdout, hash)
	return nil
}
