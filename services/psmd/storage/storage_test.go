package storage

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"psmswap/crypto"
	"psmswap/curve"
	"psmswap/permission"
	"psmswap/pool"
)

func openTestDB(t *testing.T) *Storage {
	t.Helper()
	store, err := Open("file:psmd_test?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testPool(t *testing.T) *pool.Pool {
	t.Helper()
	id := pool.DerivePoolID("USDX", "SUSDX", "storage-test")
	swapCurve, err := curve.NewSwapCurve(curve.NewRedemptionRateCurve(
		uint256.MustFromDecimal("1000000001547125957863212448"),
		curve.NewRay(), 1_700_000_000, nil,
	))
	require.NoError(t, err)
	return &pool.Pool{
		ID:              id,
		TokenA:          "USDX",
		TokenB:          "SUSDX",
		ReserveA:        uint256.NewInt(5_000_000),
		ReserveB:        uint256.NewInt(4_000_000),
		PoolTokenSupply: uint256.NewInt(9_000_000),
		Curve:           swapCurve,
	}
}

func testAuthority(fill byte) crypto.Address {
	b := make([]byte, 20)
	for i := range b {
		b[i] = fill
	}
	return crypto.NewAddress(crypto.PSMPrefix, b)
}

func TestPoolRoundTrip(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	p := testPool(t)

	missing, err := store.GetPool(ctx, p.ID)
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, store.PutPool(ctx, p.ID, p))

	loaded, err := store.GetPool(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "USDX", loaded.TokenA)
	require.True(t, loaded.ReserveA.Eq(p.ReserveA))
	require.True(t, loaded.ReserveB.Eq(p.ReserveB))
	require.True(t, loaded.PoolTokenSupply.Eq(p.PoolTokenSupply))

	redemption, ok := loaded.Curve.Calculator.(*curve.RedemptionRateCurve)
	require.True(t, ok)
	require.Equal(t, uint64(1_700_000_000), redemption.Rho)
}

func TestPoolUpsertReplacesState(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	p := testPool(t)
	require.NoError(t, store.PutPool(ctx, p.ID, p))

	p.ReserveA = uint256.NewInt(6_000_000)
	require.NoError(t, store.PutPool(ctx, p.ID, p))

	loaded, err := store.GetPool(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, loaded.ReserveA.Eq(uint256.NewInt(6_000_000)))
}

func TestPermissionRoundTrip(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	p := testPool(t)
	authority := testAuthority(0x42)

	missing, err := store.GetPermission(ctx, p.ID, authority)
	require.NoError(t, err)
	require.Nil(t, missing)

	record := permission.NewRecord(p.ID, authority, false, true)
	require.NoError(t, store.PutPermission(ctx, record))

	loaded, err := store.GetPermission(ctx, p.ID, authority)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.True(t, loaded.CanUpdateParameters)
	require.False(t, loaded.SuperAdmin)

	// Amending overwrites in place.
	require.NoError(t, store.PutPermission(ctx, permission.NewRecord(p.ID, authority, false, false)))
	loaded, err = store.GetPermission(ctx, p.ID, authority)
	require.NoError(t, err)
	require.False(t, loaded.CanUpdateParameters)

	records, err := store.ListPermissions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestRateUpdateAuditLog(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	p := testPool(t)
	authority := testAuthority(0x42)

	id1, err := store.RecordRateUpdate(ctx, p.ID, "digest-1", authority.String(), "1", 100, "1", "accepted")
	require.NoError(t, err)
	require.NotEmpty(t, id1)
	_, err = store.RecordRateUpdate(ctx, p.ID, "digest-2", authority.String(), "2", 200, "2", "rejected")
	require.NoError(t, err)

	records, err := store.RecentRateUpdates(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "rejected", records[0].Outcome)
	require.Equal(t, uint64(200), records[0].Rho)
}
