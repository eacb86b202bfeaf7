// Package database provides SQLite connectivity for the pool bridge.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Embedded, versioned schema migrations
//   - Transaction helpers
//
// The bridge keeps only the latest observed state per pool device, so the
// schema is small and writes are one batched upsert per refresh.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql, and are additive: new columns must be nullable or
// carry a default.
package database
