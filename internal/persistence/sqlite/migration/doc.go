// Package migration versions the SQLite schema.
//
// Migration files follow the {version}_{description}.sql convention and are
// embedded into the binary (see Embedded). Applied versions are tracked in a
// schema_migrations table together with the sha256 checksum of the file, so a
// file edited after it was applied is reported instead of silently skipped.
//
// Example usage:
//
//	runner := migration.NewRunner(migration.Embedded, migration.EmbeddedDir, migration.NewSQLiteExecutor(db), logger)
//	if _, err := runner.Run(ctx); err != nil {
//		return err
//	}
package migration
