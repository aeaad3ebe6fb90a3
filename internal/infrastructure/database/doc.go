// Package database provides SQLite connectivity and schema migrations for Pulse Core.
//
// The store holds lesson sessions and their results, the sample history of
// the active lesson, the latest reading per device, and the user roster.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive. Each version has a .up.sql file and, where it can
// be reversed, a .down.sql file.
package database
