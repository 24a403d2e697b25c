// Package database provides SQLite storage for the switch service.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Forward schema migrations from an fs.FS of versioned .up.sql files
//   - Connection lifecycle and health checks
//
// The only persistent data is the switch state history; the database can be
// deleted at any time without affecting switch behaviour.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql. A matching
// .down.sql may sit beside it for manual rollback. New columns must be
// NULLABLE or have DEFAULT values.
package database
