package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// txRetryMax bounds the optimistic retry loop for contended allocations.
const txRetryMax = 16

// inTx runs fn inside a single transaction and commits it if fn succeeds.
// The rollback in the deferred path is a no-op once Commit has run.
func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// inTxRetry runs fn inside a transaction and retries it on serialization
// conflicts, up to txRetryMax attempts. Any other failure aborts the loop
// immediately. A spent budget is reported as ErrResourceExhausted; the
// warning log distinguishes contention from true key space exhaustion.
func inTxRetry(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < txRetryMax; attempt++ {
		err := inTx(ctx, db, fn)
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		lastErr = err
	}

	logrus.WithFields(logrus.Fields{
		"attempts": txRetryMax,
		"error":    lastErr,
	}).Warn("transaction retry budget exhausted, abandoning allocation")
	return fmt.Errorf("%w: transaction retry budget of %d attempts spent under contention", ErrResourceExhausted, txRetryMax)
}

// isSerializationError reports whether err is a transient conflict between
// concurrent transactions. Busy/locked come from sqlite's lock manager;
// unique and primary key violations cover two allocators racing to insert
// the same identifier, which the next attempt resolves by searching again.
func isSerializationError(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED,
		sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
