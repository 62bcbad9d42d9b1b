package config

import (
	"database/sql"
	"time"
)

// OptimizeDatabaseConnection applies connection pool settings suited to a
// single-writer sqlite database under concurrent allocators.
func OptimizeDatabaseConnection(db *sql.DB) {
	db.SetMaxOpenConns(10)                 // Limit concurrent connections
	db.SetMaxIdleConns(5)                  // Keep some connections alive
	db.SetConnMaxLifetime(5 * time.Minute) // Recycle connections periodically
	db.SetConnMaxIdleTime(1 * time.Minute) // Close idle connections after 1 minute
}

// ApplyPragmaOptimizations applies SQLite-specific pragmas. busy_timeout
// makes lock waits surface as SQLITE_BUSY only after five seconds, which
// the allocation retry loop then absorbs.
func ApplyPragmaOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous = NORMAL", // Balance between safety and performance
		"PRAGMA busy_timeout = 5000",  // Wait for writer locks before reporting busy
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY", // Store temporary tables in memory
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return err
		}
	}

	return nil
}
