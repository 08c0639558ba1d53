// Package database provides SQLite connectivity for the weather core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations (up/down pairs, applied in version order)
//   - Connection lifecycle and health checks
//
// The schema holds three tables: sensors (discovered sensor metadata),
// entity_snapshots (one persisted attribute blob per entity) and
// entity_history (append-only value changes).
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
