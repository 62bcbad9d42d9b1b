package domain

import "github.com/google/uuid"

// VlanSlot represents one (physical network, VLAN id) pair in the allocation pool
type VlanSlot struct {
	PhysicalNetwork string // Physical network the VLAN id is scoped to
	VlanID          int64  // 802.1Q VLAN tag
	Allocated       bool   // Whether the slot is currently reserved
}

// NetworkBinding associates a tenant network with the VLAN slot it consumed
type NetworkBinding struct {
	NetworkID       uuid.UUID // Tenant network identifier
	PhysicalNetwork string    // Physical network of the bound slot
	VlanID          int64     // VLAN id of the bound slot
}

// TunnelKeyAssignment records a tunnel key held by a tenant network
type TunnelKeyAssignment struct {
	NetworkID uuid.UUID // Tenant network identifier
	TunnelKey int64     // Globally unique encapsulation key
}

// TunnelKeyCursor is the singleton search cursor for tunnel key allocation.
// It holds the most recently allocated key; the next search starts from it.
type TunnelKeyCursor struct {
	LastKey int64
}
