package database

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"time"
)

const upSuffix = ".up.sql"

// migration is one forward schema change. Its version is the
// YYYYMMDD_HHMMSS prefix of the file name.
type migration struct {
	version string
	file    string
}

// Migrate runs, oldest first, every *.up.sql at the root of fsys whose
// version is not yet recorded in schema_migrations. Each file commits on its
// own, so a failure keeps earlier ones and a re-run resumes at the failed
// file. Down files are kept for manual rollback and never run.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	if fsys == nil {
		return nil
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	todo, err := db.pendingMigrations(ctx, fsys)
	if err != nil {
		return err
	}
	for _, m := range todo {
		sql, err := fs.ReadFile(fsys, m.file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", m.file, err)
		}
		if err := db.apply(ctx, m.version, string(sql)); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.file, err)
		}
	}
	return nil
}

func (db *DB) pendingMigrations(ctx context.Context, fsys fs.FS) ([]migration, error) {
	files, err := migrationFiles(fsys)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		done[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}

	var todo []migration
	for _, m := range files {
		if !done[m.version] {
			todo = append(todo, m)
		}
	}
	return todo, nil
}

// migrationFiles lists the forward migrations in fsys in version order.
// fs.Glob returns names sorted, and the version leads each name.
func migrationFiles(fsys fs.FS) ([]migration, error) {
	names, err := fs.Glob(fsys, "*"+upSuffix)
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	files := make([]migration, 0, len(names))
	for _, name := range names {
		version, ok := migrationVersion(name)
		if !ok {
			continue
		}
		files = append(files, migration{version: version, file: name})
	}
	return files, nil
}

// migrationVersion extracts "YYYYMMDD_HHMMSS" from
// "YYYYMMDD_HHMMSS_description.up.sql".
func migrationVersion(name string) (string, bool) {
	parts := strings.SplitN(strings.TrimSuffix(name, upSuffix), "_", 3)
	if len(parts) != 3 || len(parts[0]) != 8 || len(parts[1]) != 6 || parts[2] == "" {
		return "", false
	}
	return parts[0] + "_" + parts[1], true
}

func (db *DB) apply(ctx context.Context, version, sql string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}
