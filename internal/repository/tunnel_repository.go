package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"netpool/internal/domain"
)

// errKeySpaceFull signals that no unused key exists between a search start
// and the range maximum. Allocation wraps to the range minimum once before
// declaring the pool exhausted.
var errKeySpaceFull = errors.New("no unused tunnel key at or above search start")

// TunnelKeyRepository allocates globally unique encapsulation keys from a
// rolling cursor, under bounded optimistic-transaction retry.
type TunnelKeyRepository interface {
	// ConfigureRange replaces the allocation range. An invalid range is
	// logged and ignored, keeping the previous one.
	ConfigureRange(min, max int64)

	// Range returns the currently configured allocation range.
	Range() domain.TunnelKeyRange

	// Allocate assigns the next free key to a network. Returns
	// ErrResourceExhausted when the key space is full or the retry budget
	// was spent on serialization conflicts.
	Allocate(ctx context.Context, networkID uuid.UUID) (int64, error)

	// Release removes every key assignment held by the network. The
	// cursor is left untouched. Releasing a network with no assignment is
	// a no-op.
	Release(ctx context.Context, networkID uuid.UUID) error

	// FindAll lists every key assignment ordered by key.
	FindAll(ctx context.Context) ([]domain.TunnelKeyAssignment, error)
}

// tunnelKeyRepositoryImpl implements TunnelKeyRepository
type tunnelKeyRepositoryImpl struct {
	db *sql.DB

	mu       sync.RWMutex
	keyRange domain.TunnelKeyRange
}

// NewTunnelKeyRepository creates a tunnel key repository covering the full
// hard-limit key space until ConfigureRange narrows it.
func NewTunnelKeyRepository(db *sql.DB) TunnelKeyRepository {
	return &tunnelKeyRepositoryImpl{
		db:       db,
		keyRange: domain.DefaultTunnelKeyRange(),
	}
}

// ConfigureRange replaces the allocation range, keeping the previous one
// when the new values are invalid.
func (r *tunnelKeyRepositoryImpl) ConfigureRange(min, max int64) {
	keyRange, err := domain.NewTunnelKeyRange(min, max)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"min": min,
			"max": max,
		}).Warn("invalid tunnel key range, keeping previous configuration")
		return
	}

	r.mu.Lock()
	r.keyRange = keyRange
	r.mu.Unlock()
}

// Range returns the currently configured allocation range
func (r *tunnelKeyRepositoryImpl) Range() domain.TunnelKeyRange {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keyRange
}

// Allocate assigns the next free key at or after the cursor to a network
func (r *tunnelKeyRepositoryImpl) Allocate(ctx context.Context, networkID uuid.UUID) (int64, error) {
	keyRange := r.Range()

	var key int64
	err := inTxRetry(ctx, r.db, func(tx *sql.Tx) error {
		lastKey, err := loadCursor(ctx, tx, keyRange)
		if err != nil {
			return err
		}

		newKey, err := findFreeKey(ctx, tx, lastKey, keyRange)
		if errors.Is(err, errKeySpaceFull) {
			// Wrap once: the space past the cursor is used up, so reuse
			// keys freed below it.
			newKey, err = findFreeKey(ctx, tx, keyRange.Min, keyRange)
			if errors.Is(err, errKeySpaceFull) {
				return fmt.Errorf("%w: no key free in range %d-%d", ErrResourceExhausted, keyRange.Min, keyRange.Max)
			}
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tunnel_key_assignments (network_id, tunnel_key) VALUES (?, ?)",
			networkID.String(), newKey); err != nil {
			return fmt.Errorf("failed to insert key assignment: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE tunnel_key_cursor SET last_key = ?", newKey); err != nil {
			return fmt.Errorf("failed to advance cursor: %w", err)
		}

		key = newKey
		return nil
	})
	if err != nil {
		return 0, err
	}
	return key, nil
}

// Release removes every key assignment held by a network
func (r *tunnelKeyRepositoryImpl) Release(ctx context.Context, networkID uuid.UUID) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM tunnel_key_assignments WHERE network_id = ?",
			networkID.String()); err != nil {
			return fmt.Errorf("failed to delete key assignments: %w", err)
		}
		return nil
	})
}

// FindAll lists every key assignment ordered by key
func (r *tunnelKeyRepositoryImpl) FindAll(ctx context.Context) ([]domain.TunnelKeyAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT network_id, tunnel_key FROM tunnel_key_assignments ORDER BY tunnel_key ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list key assignments: %w", err)
	}
	defer rows.Close()

	var assignments []domain.TunnelKeyAssignment
	for rows.Next() {
		var rawID string
		var assignment domain.TunnelKeyAssignment
		if err := rows.Scan(&rawID, &assignment.TunnelKey); err != nil {
			return nil, fmt.Errorf("failed to scan key assignment: %w", err)
		}
		assignment.NetworkID, err = uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse network id %q: %w", rawID, err)
		}
		assignments = append(assignments, assignment)
	}
	return assignments, rows.Err()
}

// loadCursor reads the singleton search cursor, creating it at the range
// minimum when missing. Duplicate rows left behind by racing transactions
// are collapsed to the maximum surviving value, clamped back to the range
// minimum if it exceeds the configured maximum.
func loadCursor(ctx context.Context, tx *sql.Tx, keyRange domain.TunnelKeyRange) (int64, error) {
	rows, err := tx.QueryContext(ctx, "SELECT last_key FROM tunnel_key_cursor")
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}
	var values []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan cursor: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}
	rows.Close()

	switch len(values) {
	case 0:
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tunnel_key_cursor (last_key) VALUES (?)", keyRange.Min); err != nil {
			return 0, fmt.Errorf("failed to initialize cursor: %w", err)
		}
		return keyRange.Min, nil
	case 1:
		return values[0], nil
	}

	lastKey := values[0]
	for _, v := range values[1:] {
		if v > lastKey {
			lastKey = v
		}
	}
	if lastKey > keyRange.Max {
		lastKey = keyRange.Min
	}
	logrus.WithFields(logrus.Fields{
		"rows":     len(values),
		"last_key": lastKey,
	}).Warn("repairing duplicated tunnel key cursor")

	if _, err := tx.ExecContext(ctx, "DELETE FROM tunnel_key_cursor"); err != nil {
		return 0, fmt.Errorf("failed to repair cursor: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO tunnel_key_cursor (last_key) VALUES (?)", lastKey); err != nil {
		return 0, fmt.Errorf("failed to repair cursor: %w", err)
	}
	return lastKey, nil
}

// findFreeKey returns the lowest unassigned key at or after from. It walks
// the contiguous assigned run beginning at from over an ordered scan, so
// the common case reads a single row. from itself is returned when it is
// unassigned, which is what makes a fresh cursor hand out the range
// minimum first and a released cursor key reusable.
func findFreeKey(ctx context.Context, tx *sql.Tx, from int64, keyRange domain.TunnelKeyRange) (int64, error) {
	if from < keyRange.Min {
		from = keyRange.Min
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT tunnel_key FROM tunnel_key_assignments WHERE tunnel_key >= ? ORDER BY tunnel_key ASC", from)
	if err != nil {
		return 0, fmt.Errorf("failed to scan key assignments: %w", err)
	}
	defer rows.Close()

	next := from
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return 0, fmt.Errorf("failed to scan key: %w", err)
		}
		if k > next {
			// First gap in the assigned run.
			break
		}
		next = k + 1
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan key assignments: %w", err)
	}

	if next > keyRange.Max {
		return 0, errKeySpaceFull
	}
	return next, nil
}
