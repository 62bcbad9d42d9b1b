package repository

import "errors"

// Common repository errors that can be checked with errors.Is()
var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when attempting to create an entity that already exists
	ErrDuplicate = errors.New("entity already exists")

	// ErrPoolExhausted is returned when no free VLAN id remains inside the
	// configured ranges of a physical network
	ErrPoolExhausted = errors.New("vlan pool exhausted")

	// ErrVlanInUse is returned when a specific VLAN id is already allocated
	ErrVlanInUse = errors.New("vlan id already in use")

	// ErrResourceExhausted is returned when the tunnel key space is fully
	// allocated, or when the transaction retry budget ran out under
	// contention. Callers must treat both the same way; the log line tells
	// them apart.
	ErrResourceExhausted = errors.New("tunnel key space exhausted")
)
