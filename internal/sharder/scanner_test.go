package sharder_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/containersharder/internal/broker"
	"github.com/dreamware/containersharder/internal/shardrange"
	"github.com/dreamware/containersharder/internal/sharder"
)

func rootInfo() broker.Info {
	return broker.Info{Account: "AUTH_test", Container: "root", RootAccount: "AUTH_test", RootContainer: "root"}
}

func putObjects(t *testing.T, br *broker.MemoryBroker, names ...string) {
	t.Helper()
	rows := make([]broker.ObjectRow, 0, len(names))
	for _, n := range names {
		rows = append(rows, broker.ObjectRow{Name: n, Timestamp: shardrange.Now()})
	}
	require.NoError(t, br.MergeItems(context.Background(), rows))
}

func TestScanDiscoversRangesAndMarksScanDone(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	root := reg.put(rootInfo())
	putObjects(t, root, "a", "m", "z")

	cfg := sharder.DefaultConfig()
	cfg.ShardContainerSize = 2
	cfg.ShardScannerBatchSize = 10

	stats := sharder.NewStats(nil)
	err := sharder.Scan(ctx, root, cfg, rootInfo(), true, &fakeReporter{registry: reg}, stats)
	require.NoError(t, err)

	found, err := root.GetShardRanges(ctx, broker.ShardRangeQuery{States: []shardrange.State{shardrange.StateFound}})
	require.NoError(t, err)
	assert.NotEmpty(t, found)

	done, err := sharder.ScanDone(ctx, root)
	require.NoError(t, err)
	assert.True(t, done)
	assert.EqualValues(t, 1, stats.Scanned.Attempted)
	assert.EqualValues(t, 1, stats.Scanned.Success)
}

func TestScanReportsNewRangesToRootWhenNotRoot(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	shardInfo := broker.Info{Account: ".shards_AUTH_test", Container: "shard-0", RootAccount: "AUTH_test", RootContainer: "root"}
	shard := reg.put(shardInfo)
	reg.put(rootInfo())
	putObjects(t, shard, "a", "m")

	cfg := sharder.DefaultConfig()
	cfg.ShardContainerSize = 1

	stats := sharder.NewStats(nil)
	require.NoError(t, sharder.Scan(ctx, shard, cfg, shardInfo, false, &fakeReporter{registry: reg}, stats))

	root := reg.get("AUTH_test", "root")
	reported, err := root.GetShardRanges(ctx, broker.ShardRangeQuery{States: []shardrange.State{shardrange.StateFound}})
	require.NoError(t, err)
	assert.NotEmpty(t, reported)
}
