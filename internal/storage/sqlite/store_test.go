package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"poolwatch/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewStore(db)
	require.NoError(t, store.Setup(context.Background()))
	return store
}

func TestEmptyStoreZeroValues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	count, err := store.CountBlocks(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	sum, err := store.SumEarnings(ctx)
	require.NoError(t, err)
	require.Zero(t, sum)

	_, found, err := store.LastBlock(ctx)
	require.NoError(t, err)
	require.False(t, found)

	blocks, err := store.BlocksAfter(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, blocks)

	_, found, err = store.LastSnapshot(ctx)
	require.NoError(t, err)
	require.False(t, found)

	totals, err := store.AllSnapshots(ctx)
	require.NoError(t, err)
	require.Empty(t, totals)
}

func TestBlockEarningLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	earning := model.BlockEarning{
		Time:           1700000000,
		BlockHash:      "hash1",
		EarnedSats:     1000,
		PoolFee:        20,
		TimeAddedFirst: 1700000100,
		TimeUpdated:    1700000100,
	}
	require.NoError(t, store.InsertBlockEarning(ctx, earning))

	got, found, err := store.GetBlockEarning(ctx, "hash1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, earning, got)

	_, found, err = store.GetBlockEarning(ctx, "unknown")
	require.NoError(t, err)
	require.False(t, found)

	revised := earning
	revised.EarnedSats = 1500
	revised.TimeUpdated = 1700000600
	require.NoError(t, store.UpdateBlockEarning(ctx, revised))

	got, found, err = store.GetBlockEarning(ctx, "hash1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1500), got.EarnedSats)
	require.Equal(t, int64(1700000100), got.TimeAddedFirst)
	require.Equal(t, int64(1700000600), got.TimeUpdated)

	count, err := store.CountBlocks(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestBlocksAfterOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, e := range []model.BlockEarning{
		{Time: 300, BlockHash: "c", EarnedSats: 3},
		{Time: 100, BlockHash: "a", EarnedSats: 1},
		{Time: 200, BlockHash: "b", EarnedSats: 2},
	} {
		require.NoError(t, store.InsertBlockEarning(ctx, e))
	}

	blocks, err := store.BlocksAfter(ctx, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	require.Equal(t, "a", blocks[0].BlockHash)
	require.Equal(t, "b", blocks[1].BlockHash)
	require.Equal(t, "c", blocks[2].BlockHash)

	// strictly greater than the boundary
	blocks, err = store.BlocksAfter(ctx, 200)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Equal(t, "c", blocks[0].BlockHash)

	blocks, err = store.BlocksAfter(ctx, 300)
	require.NoError(t, err)
	require.Empty(t, blocks)

	last, found, err := store.LastBlock(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "c", last.BlockHash)

	sum, err := store.SumEarnings(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(6), sum)
}

func TestSnapshotQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	snaps := []model.EarningSnapshot{
		{Time: 100, Estimated: 10, AccountedUnpaid: 20, AccountedPaid: 30},
		{Time: 200, Estimated: 11, AccountedUnpaid: 21, AccountedPaid: 31},
		{Time: 300, Estimated: 12, AccountedUnpaid: 22, AccountedPaid: 32},
	}
	for _, snap := range snaps {
		require.NoError(t, store.InsertSnapshot(ctx, snap))
	}

	last, found, err := store.LastSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, snaps[2], last)

	before, found, err := store.LastSnapshotBefore(ctx, 300)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, snaps[1], before)

	_, found, err = store.LastSnapshotBefore(ctx, 100)
	require.NoError(t, err)
	require.False(t, found)

	totals, err := store.AllSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 3)
	require.Equal(t, model.SnapshotTotals{Total: 60, Paid: 30}, totals[100])
	require.Equal(t, model.SnapshotTotals{Total: 66, Paid: 32}, totals[300])
}

func TestSnapshotsNotDeduplicated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	snap := model.EarningSnapshot{Time: 100, Estimated: 1}
	require.NoError(t, store.InsertSnapshot(ctx, snap))
	require.NoError(t, store.InsertSnapshot(ctx, snap))

	var count int64
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM earn_snapshots`).Scan(&count))
	require.Equal(t, int64(2), count)
}
