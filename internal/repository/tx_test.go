package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netpool/internal/testutil"
)

// uniqueViolation provokes a real constraint error from the driver so the
// classifier and retry loop are tested against what sqlite actually returns.
func uniqueViolation(t *testing.T, db *sql.DB) error {
	t.Helper()

	_, err := db.Exec("INSERT INTO tunnel_key_assignments (network_id, tunnel_key) VALUES ('net-a', 1)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO tunnel_key_assignments (network_id, tunnel_key) VALUES ('net-b', 1)")
	require.Error(t, err)

	_, cleanupErr := db.Exec("DELETE FROM tunnel_key_assignments")
	require.NoError(t, cleanupErr)
	return err
}

func TestIsSerializationError(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestIsSerializationError")
	defer cleanup()

	conflict := uniqueViolation(t, db)
	assert.True(t, isSerializationError(conflict))

	assert.False(t, isSerializationError(errors.New("boom")))
	assert.False(t, isSerializationError(ErrResourceExhausted))

	// Classification survives error wrapping
	_, err := db.Exec("SELECT FROM nothing")
	require.Error(t, err)
	assert.False(t, isSerializationError(err))
}

func TestInTx_RollsBackOnError(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestInTx_RollsBackOnError")
	defer cleanup()

	boom := errors.New("boom")
	err := inTx(context.Background(), db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO tunnel_key_assignments (network_id, tunnel_key) VALUES ('net-a', 1)"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM tunnel_key_assignments").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestInTxRetry_RetriesConflicts(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestInTxRetry_RetriesConflicts")
	defer cleanup()

	conflict := uniqueViolation(t, db)

	attempts := 0
	err := inTxRetry(context.Background(), db, func(tx *sql.Tx) error {
		attempts++
		if attempts < 4 {
			return conflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
}

func TestInTxRetry_BudgetExhausted(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestInTxRetry_BudgetExhausted")
	defer cleanup()

	conflict := uniqueViolation(t, db)

	attempts := 0
	err := inTxRetry(context.Background(), db, func(tx *sql.Tx) error {
		attempts++
		return conflict
	})
	require.ErrorIs(t, err, ErrResourceExhausted)
	assert.Equal(t, txRetryMax, attempts)
}

func TestInTxRetry_NonRetryableFailsImmediately(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestInTxRetry_NonRetryableFailsImmediately")
	defer cleanup()

	boom := errors.New("boom")
	attempts := 0
	err := inTxRetry(context.Background(), db, func(tx *sql.Tx) error {
		attempts++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}
