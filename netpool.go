// Package netpool allocates and reclaims network segmentation identifiers
// for a multi-tenant network virtualization control plane: per-physical-
// network 802.1Q VLAN tags and globally unique encapsulation tunnel keys.
// State lives in a transactional sqlite database; every operation either
// fully succeeds or leaves the pool unchanged.
package netpool

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"netpool/internal/domain"
	"netpool/internal/repository"
)

// Re-exported domain types, so callers never import internal packages.
type (
	VlanRange           = domain.VlanRange
	VlanRanges          = domain.VlanRanges
	TunnelKeyRange      = domain.TunnelKeyRange
	VlanSlot            = domain.VlanSlot
	NetworkBinding      = domain.NetworkBinding
	TunnelKeyAssignment = domain.TunnelKeyAssignment
)

// Failure kinds, checked with errors.Is().
var (
	ErrNotFound          = repository.ErrNotFound
	ErrPoolExhausted     = repository.ErrPoolExhausted
	ErrVlanInUse         = repository.ErrVlanInUse
	ErrResourceExhausted = repository.ErrResourceExhausted
	ErrInvalidRange      = domain.ErrInvalidRange
)

// NewVlanRange validates and builds a VLAN id range.
func NewVlanRange(min, max int64) (VlanRange, error) {
	return domain.NewVlanRange(min, max)
}

// Allocator is the identifier allocation engine. It is safe for use from
// any number of concurrent request handlers; correctness rests on the
// underlying store's transaction isolation.
type Allocator struct {
	vlans    repository.VlanRepository
	bindings repository.NetworkBindingRepository
	tunnels  repository.TunnelKeyRepository
}

// New creates an allocator over an initialized database (schema already
// migrated, see internal/config.Config.InitializeDatabase).
func New(db *sql.DB) *Allocator {
	return &Allocator{
		vlans:    repository.NewVlanRepository(db),
		bindings: repository.NewNetworkBindingRepository(db),
		tunnels:  repository.NewTunnelKeyRepository(db),
	}
}

// SyncVlanRanges reconciles the persisted VLAN pool with a new range
// configuration. Newly in-range ids appear as free slots, free slots that
// fell out of range are removed, and allocated slots are always preserved.
// Re-running with an identical configuration is a no-op.
func (a *Allocator) SyncVlanRanges(ctx context.Context, ranges VlanRanges) error {
	return a.vlans.SyncRanges(ctx, ranges)
}

// ReserveNextFreeVlan allocates the lowest free VLAN id on the given
// physical network. Fails with ErrPoolExhausted when none remains.
func (a *Allocator) ReserveNextFreeVlan(ctx context.Context, physicalNetwork string) (VlanSlot, error) {
	return a.vlans.ReserveNextFree(ctx, physicalNetwork)
}

// ReserveSpecificVlan allocates an explicitly requested VLAN id, creating
// an out-of-pool slot when the id lies outside every configured range.
// Fails with ErrVlanInUse when the id is already taken.
func (a *Allocator) ReserveSpecificVlan(ctx context.Context, physicalNetwork string, vlanID int64) error {
	return a.vlans.ReserveSpecific(ctx, physicalNetwork, vlanID)
}

// ReleaseVlan frees a VLAN id under the given current configuration:
// in-range ids stay in the pool marked free, out-of-range ids lose their
// row. Releasing an unknown id is a no-op.
func (a *Allocator) ReleaseVlan(ctx context.Context, physicalNetwork string, vlanID int64, ranges VlanRanges) error {
	return a.vlans.Release(ctx, physicalNetwork, vlanID, ranges)
}

// GetVlanState returns the persisted slot for an id, or ErrNotFound when
// no row exists.
func (a *Allocator) GetVlanState(ctx context.Context, physicalNetwork string, vlanID int64) (VlanSlot, error) {
	return a.vlans.FindState(ctx, physicalNetwork, vlanID)
}

// AddNetworkBinding records which VLAN slot a tenant network consumed.
func (a *Allocator) AddNetworkBinding(ctx context.Context, networkID uuid.UUID, physicalNetwork string, vlanID int64) error {
	_, err := a.bindings.Save(ctx, NetworkBinding{
		NetworkID:       networkID,
		PhysicalNetwork: physicalNetwork,
		VlanID:          vlanID,
	})
	return err
}

// GetNetworkBinding returns the VLAN slot bound to a tenant network, or
// ErrNotFound.
func (a *Allocator) GetNetworkBinding(ctx context.Context, networkID uuid.UUID) (NetworkBinding, error) {
	return a.bindings.FindByID(ctx, networkID)
}

// DeleteNetworkBinding removes a tenant network's binding.
func (a *Allocator) DeleteNetworkBinding(ctx context.Context, networkID uuid.UUID) error {
	return a.bindings.DeleteByID(ctx, networkID)
}

// ConfigureTunnelKeyRange replaces the tunnel key allocation range. An
// invalid range is logged and ignored, keeping the previous one.
func (a *Allocator) ConfigureTunnelKeyRange(min, max int64) {
	a.tunnels.ConfigureRange(min, max)
}

// TunnelKeyRangeInUse returns the currently configured tunnel key range.
func (a *Allocator) TunnelKeyRangeInUse() TunnelKeyRange {
	return a.tunnels.Range()
}

// AllocateTunnelKey assigns the next free tunnel key to a tenant network.
// Fails with ErrResourceExhausted when the key space is full or the
// transaction retry budget was spent on contention.
func (a *Allocator) AllocateTunnelKey(ctx context.Context, networkID uuid.UUID) (int64, error) {
	return a.tunnels.Allocate(ctx, networkID)
}

// ReleaseTunnelKey removes every tunnel key held by a tenant network.
func (a *Allocator) ReleaseTunnelKey(ctx context.Context, networkID uuid.UUID) error {
	return a.tunnels.Release(ctx, networkID)
}

// ListTunnelKeys lists every tunnel key assignment ordered by key.
func (a *Allocator) ListTunnelKeys(ctx context.Context) ([]TunnelKeyAssignment, error) {
	return a.tunnels.FindAll(ctx)
}
