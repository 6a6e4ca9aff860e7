package broker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/containersharder/internal/broker"
	"github.com/dreamware/containersharder/internal/shardrange"
)

func testInfo() broker.Info {
	return broker.Info{
		Account:       "AUTH_test",
		Container:     "c",
		RootAccount:   "AUTH_test",
		RootContainer: "c",
	}
}

func TestNewMemoryBrokerStartsUnsharded(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemoryBroker(testInfo())

	state, err := b.GetDBState(ctx)
	require.NoError(t, err)
	assert.Equal(t, broker.DBStateUnsharded, state)

	isRoot, err := b.IsRootContainer(ctx)
	require.NoError(t, err)
	assert.True(t, isRoot)

	_, err = b.GetOwnShardRange(ctx)
	assert.ErrorIs(t, err, broker.ErrNoOwnShardRange)
}

func TestMergeShardRangesIsTimestampKeyed(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemoryBroker(testInfo())

	older := shardrange.ShardRange{Account: ".shards_a", Container: "s1", Lower: "", Upper: "m", Timestamp: shardrange.FromSeconds(1), State: shardrange.StateCreated}
	newer := older
	newer.State = shardrange.StateActive
	newer.Timestamp = shardrange.FromSeconds(2)
	stale := older
	stale.State = shardrange.StateFound
	stale.Timestamp = shardrange.FromSeconds(0)

	require.NoError(t, b.MergeShardRanges(ctx, []shardrange.ShardRange{older}))
	require.NoError(t, b.MergeShardRanges(ctx, []shardrange.ShardRange{newer}))
	require.NoError(t, b.MergeShardRanges(ctx, []shardrange.ShardRange{stale}))

	ranges, err := b.GetShardRanges(ctx, broker.ShardRangeQuery{})
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, shardrange.StateActive, ranges[0].State)
}

func TestGetShardRangesFiltersByStateAndDeleted(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemoryBroker(testInfo())

	active := shardrange.ShardRange{Account: ".shards_a", Container: "s1", Lower: "", Upper: "m", Timestamp: shardrange.Now(), State: shardrange.StateActive}
	deleted := shardrange.ShardRange{Account: ".shards_a", Container: "s2", Lower: "m", Upper: "", Timestamp: shardrange.Now(), State: shardrange.StateSharded, Deleted: true}
	require.NoError(t, b.MergeShardRanges(ctx, []shardrange.ShardRange{active, deleted}))

	onlyActive, err := b.GetShardRanges(ctx, broker.ShardRangeQuery{States: []shardrange.State{shardrange.StateActive}})
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, "s1", onlyActive[0].Container)

	withDeleted, err := b.GetShardRanges(ctx, broker.ShardRangeQuery{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, withDeleted, 2)
}

func TestMergeItemsAndGetObjectsRespectsMarkers(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemoryBroker(testInfo())

	rows := []broker.ObjectRow{
		{Name: "a", Timestamp: shardrange.FromSeconds(1)},
		{Name: "b", Timestamp: shardrange.FromSeconds(1)},
		{Name: "c", Timestamp: shardrange.FromSeconds(1)},
	}
	require.NoError(t, b.MergeItems(ctx, rows))

	// The marker is an inclusive lower bound: marker "b" keeps "b" and skips "a".
	got, err := b.GetObjects(ctx, 10, "b", "", 0, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, "c", got[1].Name)
}

func TestMergeItemsKeepsTombstoneOverOlderLiveRow(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemoryBroker(testInfo())

	live := broker.ObjectRow{Name: "a", Timestamp: shardrange.FromSeconds(1)}
	tombstone := broker.ObjectRow{Name: "a", Timestamp: shardrange.FromSeconds(2), Deleted: true}
	require.NoError(t, b.MergeItems(ctx, []broker.ObjectRow{live}))
	require.NoError(t, b.MergeItems(ctx, []broker.ObjectRow{tombstone}))

	got, err := b.GetObjects(ctx, 10, "", "", 0, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Deleted)
}

func TestRemoveObjectsDeletesWithinRange(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemoryBroker(testInfo())
	require.NoError(t, b.MergeItems(ctx, []broker.ObjectRow{
		{Name: "a"}, {Name: "m"}, {Name: "z"},
	}))

	require.NoError(t, b.RemoveObjects(ctx, "a", "z", 0))

	got, err := b.GetObjects(ctx, 10, "", "", 0, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "z", got[0].Name)
}

func TestFindShardRangesChunksRemainingObjects(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemoryBroker(testInfo())
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, b.MergeItems(ctx, []broker.ObjectRow{{Name: name}}))
	}

	found, lastFound, err := b.FindShardRanges(ctx, 2, 0, nil)
	require.NoError(t, err)
	assert.True(t, lastFound)
	require.Len(t, found, 3)
	assert.Equal(t, "", found[0].Lower)
	assert.Equal(t, "", found[len(found)-1].Upper)
}

func TestFindShardRangesRespectsLimitAndReportsNotLastFound(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemoryBroker(testInfo())
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, b.MergeItems(ctx, []broker.ObjectRow{{Name: name}}))
	}

	found, lastFound, err := b.FindShardRanges(ctx, 2, 1, nil)
	require.NoError(t, err)
	assert.False(t, lastFound)
	require.Len(t, found, 1)
}

func TestCleaveContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemoryBroker(testInfo())

	ctx0, err := b.LoadCleaveContext(ctx)
	require.NoError(t, err)
	assert.False(t, ctx0.Done)

	require.NoError(t, b.DumpCleaveContext(ctx, broker.CleaveContext{Cursor: "m", Done: true}))
	got, err := b.LoadCleaveContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m", got.Cursor)
	assert.True(t, got.Done)
}

func TestShardingInfoRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemoryBroker(testInfo())

	_, ok, err := b.GetShardingInfo(ctx, "Scan-Done")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.UpdateShardingInfo(ctx, map[string]string{"Scan-Done": "true"}))
	v, ok, err := b.GetShardingInfo(ctx, "Scan-Done")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "true", v)
}

func TestSharderLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemoryBroker(testInfo())

	release, err := b.SharderLock(ctx)
	require.NoError(t, err)

	_, err = b.SharderLock(ctx)
	assert.ErrorIs(t, err, broker.ErrLocked)

	release()

	release2, err := b.SharderLock(ctx)
	require.NoError(t, err)
	release2()
}

func TestGetBrokersDefaultsToSelf(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemoryBroker(testInfo())

	brokers, err := b.GetBrokers(ctx)
	require.NoError(t, err)
	require.Len(t, brokers, 1)
	assert.Same(t, b, brokers[0])
}
