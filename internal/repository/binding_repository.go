package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"netpool/internal/domain"
)

// NetworkBindingRepository defines operations for the association between
// a tenant network and the VLAN slot it consumed
type NetworkBindingRepository interface {
	Repository[domain.NetworkBinding, uuid.UUID]
}

// bindingRepositoryImpl implements NetworkBindingRepository
type bindingRepositoryImpl struct {
	db *sql.DB
}

// NewNetworkBindingRepository creates a new network binding repository
func NewNetworkBindingRepository(db *sql.DB) NetworkBindingRepository {
	return &bindingRepositoryImpl{
		db: db,
	}
}

// Save creates or updates the binding for a network
func (r *bindingRepositoryImpl) Save(ctx context.Context, binding domain.NetworkBinding) (domain.NetworkBinding, error) {
	if binding.NetworkID == uuid.Nil {
		return domain.NetworkBinding{}, fmt.Errorf("network ID is required")
	}
	if binding.PhysicalNetwork == "" {
		return domain.NetworkBinding{}, fmt.Errorf("physical network is required")
	}

	query := `
		INSERT INTO network_bindings (network_id, physical_network, vlan_id)
		VALUES (?, ?, ?)
		ON CONFLICT(network_id) DO UPDATE SET
			physical_network = excluded.physical_network,
			vlan_id = excluded.vlan_id`

	_, err := r.db.ExecContext(ctx, query,
		binding.NetworkID.String(), binding.PhysicalNetwork, binding.VlanID)
	if err != nil {
		return domain.NetworkBinding{}, fmt.Errorf("failed to save network binding: %w", err)
	}

	return binding, nil
}

// FindByID finds the binding for a network
func (r *bindingRepositoryImpl) FindByID(ctx context.Context, networkID uuid.UUID) (domain.NetworkBinding, error) {
	var binding domain.NetworkBinding
	var rawID string
	err := r.db.QueryRowContext(ctx,
		"SELECT network_id, physical_network, vlan_id FROM network_bindings WHERE network_id = ?",
		networkID.String()).Scan(&rawID, &binding.PhysicalNetwork, &binding.VlanID)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.NetworkBinding{}, ErrNotFound
		}
		return domain.NetworkBinding{}, fmt.Errorf("failed to find network binding: %w", err)
	}

	binding.NetworkID, err = uuid.Parse(rawID)
	if err != nil {
		return domain.NetworkBinding{}, fmt.Errorf("failed to parse network id %q: %w", rawID, err)
	}
	return binding, nil
}

// FindAll lists every binding ordered by physical network and VLAN id
func (r *bindingRepositoryImpl) FindAll(ctx context.Context) ([]domain.NetworkBinding, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT network_id, physical_network, vlan_id FROM network_bindings ORDER BY physical_network, vlan_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list network bindings: %w", err)
	}
	defer rows.Close()

	var bindings []domain.NetworkBinding
	for rows.Next() {
		var rawID string
		var binding domain.NetworkBinding
		if err := rows.Scan(&rawID, &binding.PhysicalNetwork, &binding.VlanID); err != nil {
			return nil, fmt.Errorf("failed to scan network binding: %w", err)
		}
		binding.NetworkID, err = uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse network id %q: %w", rawID, err)
		}
		bindings = append(bindings, binding)
	}
	return bindings, rows.Err()
}

// DeleteByID removes the binding for a network
func (r *bindingRepositoryImpl) DeleteByID(ctx context.Context, networkID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM network_bindings WHERE network_id = ?", networkID.String())
	if err != nil {
		return fmt.Errorf("failed to delete network binding: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ExistsByID checks whether a network has a binding
func (r *bindingRepositoryImpl) ExistsByID(ctx context.Context, networkID uuid.UUID) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM network_bindings WHERE network_id = ?", networkID.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check network binding existence: %w", err)
	}
	return count > 0, nil
}
