package domain

import (
	"errors"
	"fmt"
)

// Hard limits for segmentation identifiers. VLAN tags are 12 bits with 0
// and 4095 reserved by 802.1Q; tunnel key 0 carries special meaning on the
// wire and is never allocated.
const (
	VlanIDMin = 1
	VlanIDMax = 4094

	TunnelKeyMinHard = 1
	TunnelKeyMaxHard = 0xffffffff
)

// ErrInvalidRange is returned when a range violates its hard limits or has
// min greater than max. Can be checked with errors.Is().
var ErrInvalidRange = errors.New("invalid identifier range")

// VlanRange is an inclusive [Min, Max] span of VLAN ids.
type VlanRange struct {
	Min int64
	Max int64
}

// NewVlanRange validates and builds a VLAN id range.
func NewVlanRange(min, max int64) (VlanRange, error) {
	if min > max {
		return VlanRange{}, fmt.Errorf("%w: min %d greater than max %d", ErrInvalidRange, min, max)
	}
	if min < VlanIDMin || max > VlanIDMax {
		return VlanRange{}, fmt.Errorf("%w: vlan range %d:%d outside %d-%d", ErrInvalidRange, min, max, VlanIDMin, VlanIDMax)
	}
	return VlanRange{Min: min, Max: max}, nil
}

// Contains reports whether id falls inside the range.
func (r VlanRange) Contains(id int64) bool {
	return id >= r.Min && id <= r.Max
}

// VlanRanges maps a physical network name to its configured VLAN id ranges.
type VlanRanges map[string][]VlanRange

// Contains reports whether id is covered by any configured range of the
// given physical network.
func (vr VlanRanges) Contains(physicalNetwork string, id int64) bool {
	for _, r := range vr[physicalNetwork] {
		if r.Contains(id) {
			return true
		}
	}
	return false
}

// TunnelKeyRange is the single global [Min, Max] span for tunnel keys.
type TunnelKeyRange struct {
	Min int64
	Max int64
}

// NewTunnelKeyRange validates and builds a tunnel key range.
func NewTunnelKeyRange(min, max int64) (TunnelKeyRange, error) {
	if min < TunnelKeyMinHard || max > TunnelKeyMaxHard || min > max {
		return TunnelKeyRange{}, fmt.Errorf("%w: tunnel key range %d:%d", ErrInvalidRange, min, max)
	}
	return TunnelKeyRange{Min: min, Max: max}, nil
}

// DefaultTunnelKeyRange returns the full hard-limit key space.
func DefaultTunnelKeyRange() TunnelKeyRange {
	return TunnelKeyRange{Min: TunnelKeyMinHard, Max: TunnelKeyMaxHard}
}

// Contains reports whether key falls inside the range.
func (r TunnelKeyRange) Contains(key int64) bool {
	return key >= r.Min && key <= r.Max
}
