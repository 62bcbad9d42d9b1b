package netpool

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netpool/internal/testutil"
)

func newTestAllocator(t *testing.T, name string) *Allocator {
	t.Helper()

	db, cleanup := testutil.SetupTestDBWithMigrations(t, name)
	t.Cleanup(cleanup)
	return New(db)
}

func TestAllocator_VlanLifecycle(t *testing.T) {
	alloc := newTestAllocator(t, "TestAllocator_VlanLifecycle")
	ctx := context.Background()

	r, err := NewVlanRange(100, 104)
	require.NoError(t, err)
	ranges := VlanRanges{"physnet1": {r}}

	require.NoError(t, alloc.SyncVlanRanges(ctx, ranges))

	// Drain the pool
	networkID := uuid.New()
	var first VlanSlot
	for i := 0; i < 5; i++ {
		slot, err := alloc.ReserveNextFreeVlan(ctx, "physnet1")
		require.NoError(t, err)
		if i == 0 {
			first = slot
			require.NoError(t, alloc.AddNetworkBinding(ctx, networkID, slot.PhysicalNetwork, slot.VlanID))
		}
	}
	_, err = alloc.ReserveNextFreeVlan(ctx, "physnet1")
	assert.ErrorIs(t, err, ErrPoolExhausted)

	// The binding resolves back to the consumed slot
	binding, err := alloc.GetNetworkBinding(ctx, networkID)
	require.NoError(t, err)
	assert.Equal(t, first.VlanID, binding.VlanID)
	assert.Equal(t, "physnet1", binding.PhysicalNetwork)

	// Tear the network down: binding first, then the slot
	require.NoError(t, alloc.DeleteNetworkBinding(ctx, networkID))
	require.NoError(t, alloc.ReleaseVlan(ctx, "physnet1", first.VlanID, ranges))

	state, err := alloc.GetVlanState(ctx, "physnet1", first.VlanID)
	require.NoError(t, err)
	assert.False(t, state.Allocated)

	again, err := alloc.ReserveNextFreeVlan(ctx, "physnet1")
	require.NoError(t, err)
	assert.Equal(t, first.VlanID, again.VlanID)
}

func TestAllocator_SpecificVlanOutsideRanges(t *testing.T) {
	alloc := newTestAllocator(t, "TestAllocator_SpecificVlanOutsideRanges")
	ctx := context.Background()

	r, err := NewVlanRange(100, 104)
	require.NoError(t, err)
	ranges := VlanRanges{"physnet1": {r}}
	require.NoError(t, alloc.SyncVlanRanges(ctx, ranges))

	require.NoError(t, alloc.ReserveSpecificVlan(ctx, "physnet1", 2000))
	err = alloc.ReserveSpecificVlan(ctx, "physnet1", 2000)
	assert.ErrorIs(t, err, ErrVlanInUse)

	// Out-of-range release removes the slot entirely
	require.NoError(t, alloc.ReleaseVlan(ctx, "physnet1", 2000, ranges))
	_, err = alloc.GetVlanState(ctx, "physnet1", 2000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAllocator_TunnelKeyLifecycle(t *testing.T) {
	alloc := newTestAllocator(t, "TestAllocator_TunnelKeyLifecycle")
	ctx := context.Background()

	alloc.ConfigureTunnelKeyRange(1, 100)

	// Invalid reconfiguration keeps the working range
	alloc.ConfigureTunnelKeyRange(100, 1)
	assert.Equal(t, TunnelKeyRange{Min: 1, Max: 100}, alloc.TunnelKeyRangeInUse())

	networkA := uuid.New()
	networkB := uuid.New()

	keyA, err := alloc.AllocateTunnelKey(ctx, networkA)
	require.NoError(t, err)
	keyB, err := alloc.AllocateTunnelKey(ctx, networkB)
	require.NoError(t, err)
	assert.NotEqual(t, keyA, keyB)
	assert.NotZero(t, keyA)

	keys, err := alloc.ListTunnelKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, keyA, keys[0].TunnelKey)
	assert.Equal(t, networkA, keys[0].NetworkID)

	require.NoError(t, alloc.ReleaseTunnelKey(ctx, networkA))
	keys, err = alloc.ListTunnelKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, networkB, keys[0].NetworkID)
}
