package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"netpool/internal/domain"
)

// VlanRepository defines pool operations for VLAN segment identifiers.
// Every mutating operation runs inside a single transaction.
type VlanRepository interface {
	// SyncRanges reconciles the persisted pool with a new range
	// configuration. Calling it twice with the same configuration is a
	// no-op.
	SyncRanges(ctx context.Context, ranges domain.VlanRanges) error

	// ReserveNextFree allocates the lowest free VLAN id on the given
	// physical network. Returns ErrPoolExhausted when none is free.
	ReserveNextFree(ctx context.Context, physicalNetwork string) (domain.VlanSlot, error)

	// ReserveSpecific allocates an explicitly requested VLAN id. Ids
	// outside the configured ranges are permitted and get a fresh
	// allocated row. Returns ErrVlanInUse when the id is already taken.
	ReserveSpecific(ctx context.Context, physicalNetwork string, vlanID int64) error

	// Release frees a VLAN id. Ids inside the current ranges are marked
	// free and kept; ids outside are deleted. Releasing an unknown id is
	// a no-op.
	Release(ctx context.Context, physicalNetwork string, vlanID int64, ranges domain.VlanRanges) error

	// FindState returns the persisted slot for an id.
	// Returns ErrNotFound if no row exists.
	FindState(ctx context.Context, physicalNetwork string, vlanID int64) (domain.VlanSlot, error)
}

// vlanRepositoryImpl implements VlanRepository
type vlanRepositoryImpl struct {
	db *sql.DB
}

// NewVlanRepository creates a new VLAN pool repository
func NewVlanRepository(db *sql.DB) VlanRepository {
	return &vlanRepositoryImpl{
		db: db,
	}
}

// SyncRanges diffs the persisted slots of every physical network against
// the new configuration: missing in-range ids are inserted free, free rows
// that fell out of range are deleted, and allocated rows are never removed
// even when their range (or whole physical network) is gone.
func (r *vlanRepositoryImpl) SyncRanges(ctx context.Context, ranges domain.VlanRanges) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		existing, err := loadSlotStates(ctx, tx)
		if err != nil {
			return err
		}

		insert, err := tx.PrepareContext(ctx, "INSERT INTO vlan_slots (physical_network, vlan_id, allocated) VALUES (?, ?, 0)")
		if err != nil {
			return fmt.Errorf("failed to prepare slot insert: %w", err)
		}
		defer insert.Close()

		del, err := tx.PrepareContext(ctx, "DELETE FROM vlan_slots WHERE physical_network = ? AND vlan_id = ?")
		if err != nil {
			return fmt.Errorf("failed to prepare slot delete: %w", err)
		}
		defer del.Close()

		for physicalNetwork, netRanges := range ranges {
			wanted := make(map[int64]struct{})
			for _, vr := range netRanges {
				for id := vr.Min; id <= vr.Max; id++ {
					wanted[id] = struct{}{}
				}
			}

			current := existing[physicalNetwork]
			for id := range wanted {
				if _, ok := current[id]; !ok {
					if _, err := insert.ExecContext(ctx, physicalNetwork, id); err != nil {
						return fmt.Errorf("failed to add slot %s/%d: %w", physicalNetwork, id, err)
					}
				}
			}
			for id, allocated := range current {
				if _, ok := wanted[id]; !ok && !allocated {
					if _, err := del.ExecContext(ctx, physicalNetwork, id); err != nil {
						return fmt.Errorf("failed to remove slot %s/%d: %w", physicalNetwork, id, err)
					}
				}
			}
		}

		// Physical networks that vanished from the configuration keep only
		// their allocated rows as orphans.
		for physicalNetwork, current := range existing {
			if _, ok := ranges[physicalNetwork]; ok {
				continue
			}
			for id, allocated := range current {
				if !allocated {
					if _, err := del.ExecContext(ctx, physicalNetwork, id); err != nil {
						return fmt.Errorf("failed to remove slot %s/%d: %w", physicalNetwork, id, err)
					}
				}
			}
		}

		return nil
	})
}

// ReserveNextFree allocates the lowest free VLAN id on a physical network
func (r *vlanRepositoryImpl) ReserveNextFree(ctx context.Context, physicalNetwork string) (domain.VlanSlot, error) {
	var slot domain.VlanSlot
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		var vlanID int64
		err := tx.QueryRowContext(ctx,
			"SELECT vlan_id FROM vlan_slots WHERE physical_network = ? AND allocated = 0 ORDER BY vlan_id ASC LIMIT 1",
			physicalNetwork).Scan(&vlanID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: no free vlan on physical network %q", ErrPoolExhausted, physicalNetwork)
		}
		if err != nil {
			return fmt.Errorf("failed to select free slot: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			"UPDATE vlan_slots SET allocated = 1 WHERE physical_network = ? AND vlan_id = ? AND allocated = 0",
			physicalNetwork, vlanID)
		if err != nil {
			return fmt.Errorf("failed to reserve slot: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%w: slot %s/%d reserved concurrently", ErrVlanInUse, physicalNetwork, vlanID)
		}

		slot = domain.VlanSlot{PhysicalNetwork: physicalNetwork, VlanID: vlanID, Allocated: true}
		return nil
	})
	if err != nil {
		return domain.VlanSlot{}, err
	}
	return slot, nil
}

// ReserveSpecific allocates an explicitly requested VLAN id
func (r *vlanRepositoryImpl) ReserveSpecific(ctx context.Context, physicalNetwork string, vlanID int64) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		var allocated bool
		err := tx.QueryRowContext(ctx,
			"SELECT allocated FROM vlan_slots WHERE physical_network = ? AND vlan_id = ?",
			physicalNetwork, vlanID).Scan(&allocated)
		switch {
		case err == sql.ErrNoRows:
			// Out-of-pool reservation: the configured ranges are advisory
			// for explicit requests, not a hard boundary.
			_, err = tx.ExecContext(ctx,
				"INSERT INTO vlan_slots (physical_network, vlan_id, allocated) VALUES (?, ?, 1)",
				physicalNetwork, vlanID)
			if err != nil {
				return fmt.Errorf("failed to create out-of-pool slot: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("failed to look up slot: %w", err)
		case allocated:
			return fmt.Errorf("%w: vlan %d on physical network %q", ErrVlanInUse, vlanID, physicalNetwork)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE vlan_slots SET allocated = 1 WHERE physical_network = ? AND vlan_id = ?",
			physicalNetwork, vlanID)
		if err != nil {
			return fmt.Errorf("failed to reserve slot: %w", err)
		}
		return nil
	})
}

// Release frees or deletes a VLAN id depending on the current ranges
func (r *vlanRepositoryImpl) Release(ctx context.Context, physicalNetwork string, vlanID int64, ranges domain.VlanRanges) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		var result sql.Result
		var err error
		if ranges.Contains(physicalNetwork, vlanID) {
			result, err = tx.ExecContext(ctx,
				"UPDATE vlan_slots SET allocated = 0 WHERE physical_network = ? AND vlan_id = ?",
				physicalNetwork, vlanID)
		} else {
			// Orphan or out-of-pool reservation: drop the row entirely.
			result, err = tx.ExecContext(ctx,
				"DELETE FROM vlan_slots WHERE physical_network = ? AND vlan_id = ?",
				physicalNetwork, vlanID)
		}
		if err != nil {
			return fmt.Errorf("failed to release slot: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			logrus.WithFields(logrus.Fields{
				"physical_network": physicalNetwork,
				"vlan_id":          vlanID,
			}).Warn("released vlan has no slot row")
		}
		return nil
	})
}

// FindState returns the persisted slot for an id
func (r *vlanRepositoryImpl) FindState(ctx context.Context, physicalNetwork string, vlanID int64) (domain.VlanSlot, error) {
	var slot domain.VlanSlot
	err := r.db.QueryRowContext(ctx,
		"SELECT physical_network, vlan_id, allocated FROM vlan_slots WHERE physical_network = ? AND vlan_id = ?",
		physicalNetwork, vlanID).Scan(&slot.PhysicalNetwork, &slot.VlanID, &slot.Allocated)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.VlanSlot{}, ErrNotFound
		}
		return domain.VlanSlot{}, fmt.Errorf("failed to find slot: %w", err)
	}
	return slot, nil
}

// loadSlotStates reads every persisted slot grouped by physical network,
// mapping vlan id to its allocated flag.
func loadSlotStates(ctx context.Context, tx *sql.Tx) (map[string]map[int64]bool, error) {
	rows, err := tx.QueryContext(ctx, "SELECT physical_network, vlan_id, allocated FROM vlan_slots")
	if err != nil {
		return nil, fmt.Errorf("failed to load slots: %w", err)
	}
	defer rows.Close()

	states := make(map[string]map[int64]bool)
	for rows.Next() {
		var physicalNetwork string
		var vlanID int64
		var allocated bool
		if err := rows.Scan(&physicalNetwork, &vlanID, &allocated); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		if states[physicalNetwork] == nil {
			states[physicalNetwork] = make(map[int64]bool)
		}
		states[physicalNetwork][vlanID] = allocated
	}
	return states, rows.Err()
}
