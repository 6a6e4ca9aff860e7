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

func TestCreateShardContainersAdvancesToCreated(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	root := reg.put(rootInfo())

	ts := shardrange.Now()
	require.NoError(t, root.MergeShardRanges(ctx, []shardrange.ShardRange{
		{Account: ".shards_AUTH_test", Container: "s0", Lower: "", Upper: "n", Timestamp: ts, State: shardrange.StateFound},
		{Account: ".shards_AUTH_test", Container: "s1", Lower: "n", Upper: "", Timestamp: ts, State: shardrange.StateFound},
	}))

	cfg := sharder.DefaultConfig()
	require.NoError(t, sharder.CreateShardContainers(ctx, root, cfg, rootInfo(), true, &fakeReporter{registry: reg}, sharder.NewStats(nil)))

	created, err := root.GetShardRanges(ctx, broker.ShardRangeQuery{States: []shardrange.State{shardrange.StateCreated}})
	require.NoError(t, err)
	assert.Len(t, created, 2)

	s0 := reg.get(".shards_AUTH_test", "s0")
	require.NotNil(t, s0)
}

func TestCreateShardContainersStopsAtFirstQuorumFailure(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	root := reg.put(rootInfo())

	ts := shardrange.Now()
	require.NoError(t, root.MergeShardRanges(ctx, []shardrange.ShardRange{
		{Account: ".shards_AUTH_test", Container: "s0", Lower: "", Upper: "n", Timestamp: ts, State: shardrange.StateFound},
		{Account: ".shards_AUTH_test", Container: "s1", Lower: "n", Upper: "", Timestamp: ts, State: shardrange.StateFound},
	}))

	cfg := sharder.DefaultConfig()
	// A quorum failure halts the create loop, but must not fail the whole
	// call -- ranges already CREATED in a prior cycle still need
	// replicating and cleaving this cycle.
	err := sharder.CreateShardContainers(ctx, root, cfg, rootInfo(), true, failingReporter{}, sharder.NewStats(nil))
	require.NoError(t, err)

	stillFound, err := root.GetShardRanges(ctx, broker.ShardRangeQuery{States: []shardrange.State{shardrange.StateFound}})
	require.NoError(t, err)
	assert.Len(t, stillFound, 2)
}
