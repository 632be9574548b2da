package migration

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

// Runner applies pending migrations from a file system in version order.
type Runner struct {
	fsys     fs.FS
	dir      string
	executor Executor
	logger   *slog.Logger
}

// NewRunner creates a runner reading migrations from dir of fsys. A nil logger
// uses slog.Default.
func NewRunner(fsys fs.FS, dir string, executor Executor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		fsys:     fsys,
		dir:      dir,
		executor: executor,
		logger:   logger.With("component", "migration"),
	}
}

// Run executes all pending migrations and returns how many were applied. An
// applied migration whose checksum no longer matches its file aborts the run.
func (r *Runner) Run(ctx context.Context) (int, error) {
	status, err := r.Status(ctx)
	if err != nil {
		return 0, err
	}
	if len(status.Pending) == 0 {
		r.logger.DebugContext(ctx, "schema up to date", "version", status.CurrentVersion)
		return 0, nil
	}

	for i, m := range status.Pending {
		started := time.Now()
		if err := r.executor.ExecuteMigration(ctx, m); err != nil {
			r.logger.ErrorContext(ctx, "migration failed", "version", m.Version, "file", m.FilePath, "error", err)
			return i, NewMigrationError(m.Version, m.FilePath, "execute migration", fmt.Errorf("%w: %w", ErrMigrationFailed, err))
		}
		elapsed := time.Since(started)
		if err := r.executor.RecordMigration(ctx, m, elapsed); err != nil {
			return i, NewMigrationError(m.Version, m.FilePath, "record migration", err)
		}
		r.logger.InfoContext(ctx, "migration applied",
			"version", m.Version,
			"description", m.Description,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	return len(status.Pending), nil
}

// Status reports the applied and pending migrations.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	if err := r.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, fmt.Errorf("failed to initialize version table: %w", err)
	}
	available, err := Scan(r.fsys, r.dir)
	if err != nil {
		return Status{}, err
	}
	applied, err := r.executor.GetAppliedVersions(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get applied versions: %w", err)
	}

	sums := make(map[string]string, len(applied))
	for _, a := range applied {
		sums[a.Version] = a.Checksum
	}

	status := Status{Applied: applied}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	for _, m := range available {
		sum, ok := sums[m.Version]
		if !ok {
			status.Pending = append(status.Pending, m)
			continue
		}
		if sum != "" && sum != m.Checksum {
			return Status{}, NewMigrationError(m.Version, m.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}
	return status, nil
}
