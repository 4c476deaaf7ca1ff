// Package database provides SQLite connectivity for the facility service.
//
// This package manages:
//   - The connection, opened through a go-sqlite3 driver that carries the
//     SQL functions registered with RegisterFunction (fuzzy search scoring)
//   - Schema migrations from an embedded filesystem
//   - Foreign key enforcement and STRICT tables
//
// All queries use parameterised statements. The database file is chmod 0600.
//
// The pool holds one connection. Callers must drain a *sql.Rows before
// issuing the next query on the same goroutine or they will block.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Tests open database.MemoryPath for an isolated, throwaway schema.
package database
