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

func TestFindShrinkCandidatesPairsUndersizedNeighbor(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	root := reg.put(rootInfo())

	ts := shardrange.Now()
	first := shardrange.ShardRange{
		Account: ".shards_AUTH_test", Container: "s0", Lower: "", Upper: "m",
		Timestamp: ts, State: shardrange.StateActive, StateTimestamp: ts, ObjectCount: 100,
	}
	second := shardrange.ShardRange{
		Account: ".shards_AUTH_test", Container: "s1", Lower: "m", Upper: "",
		Timestamp: ts, State: shardrange.StateActive, StateTimestamp: ts, ObjectCount: 5,
	}
	require.NoError(t, root.MergeShardRanges(ctx, []shardrange.ShardRange{first, second}))
	reg.put(broker.Info{Account: first.Account, Container: first.Container})
	reg.put(broker.Info{Account: second.Account, Container: second.Container})

	cfg := sharder.DefaultConfig()
	cfg.ShardShrinkPoint = 10
	cfg.ShardShrinkMergePoint = 1000
	cfg.ShardContainerSize = 100

	reporter := &fakeReporter{registry: reg}
	require.NoError(t, sharder.FindShrinkCandidates(ctx, root, cfg, rootInfo(), reporter))

	rootRanges, err := root.GetShardRanges(ctx, broker.ShardRangeQuery{
		States: []shardrange.State{shardrange.StateShrinking, shardrange.StateExpanding},
	})
	require.NoError(t, err)
	require.Len(t, rootRanges, 2)

	var donorSeen, acceptorSeen bool
	for _, r := range rootRanges {
		switch r.Container {
		case "s1":
			assert.Equal(t, shardrange.StateShrinking, r.State)
			donorSeen = true
		case "s0":
			assert.Equal(t, shardrange.StateExpanding, r.State)
			acceptorSeen = true
		default:
			t.Fatalf("unexpected range %s paired", r.Container)
		}
	}
	assert.True(t, donorSeen, "s1 (undersized) must become the donor")
	assert.True(t, acceptorSeen, "s0 must become the acceptor")

	acceptorBroker := reg.get(first.Account, first.Container)
	require.NotNil(t, acceptorBroker)
	acceptorOwn, err := acceptorBroker.GetShardRanges(ctx, broker.ShardRangeQuery{
		States: []shardrange.State{shardrange.StateExpanding},
	})
	require.NoError(t, err)
	require.Len(t, acceptorOwn, 1)

	donorBroker := reg.get(second.Account, second.Container)
	require.NotNil(t, donorBroker)
	donorSide, err := donorBroker.GetShardRanges(ctx, broker.ShardRangeQuery{
		States:         []shardrange.State{shardrange.StateActive, shardrange.StateShrinking},
		IncludeDeleted: true,
	})
	require.NoError(t, err)
	var widened *shardrange.ShardRange
	for i := range donorSide {
		if donorSide[i].Container == "s0" {
			widened = &donorSide[i]
		}
	}
	require.NotNil(t, widened, "donor must receive the widened acceptor range")
	assert.Equal(t, first.Lower, widened.Lower)
	assert.EqualValues(t, first.ObjectCount+second.ObjectCount, widened.ObjectCount)
}

func TestFindShrinkCandidatesSkipsNoneUndersized(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	root := reg.put(rootInfo())

	ts := shardrange.Now()
	first := shardrange.ShardRange{
		Account: ".shards_AUTH_test", Container: "s0", Lower: "", Upper: "m",
		Timestamp: ts, State: shardrange.StateActive, StateTimestamp: ts, ObjectCount: 500,
	}
	second := shardrange.ShardRange{
		Account: ".shards_AUTH_test", Container: "s1", Lower: "m", Upper: "",
		Timestamp: ts, State: shardrange.StateActive, StateTimestamp: ts, ObjectCount: 500,
	}
	require.NoError(t, root.MergeShardRanges(ctx, []shardrange.ShardRange{first, second}))

	cfg := sharder.DefaultConfig()
	cfg.ShardShrinkPoint = 10
	cfg.ShardShrinkMergePoint = 1000
	cfg.ShardContainerSize = 100

	reporter := &fakeReporter{registry: reg}
	require.NoError(t, sharder.FindShrinkCandidates(ctx, root, cfg, rootInfo(), reporter))

	unchanged, err := root.GetShardRanges(ctx, broker.ShardRangeQuery{States: []shardrange.State{shardrange.StateActive}})
	require.NoError(t, err)
	assert.Len(t, unchanged, 2)
}

func TestFindShrinkCandidatesSingleShardMergesIntoOwnRange(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	root := reg.put(rootInfo())

	ts := shardrange.Now()
	require.NoError(t, root.SetOwnShardRange(ctx, shardrange.ShardRange{
		Account: rootInfo().Account, Container: rootInfo().Container,
		Lower: "", Upper: "", Timestamp: ts, State: shardrange.StateSharded, StateTimestamp: ts,
	}))

	lastShard := shardrange.ShardRange{
		Account: ".shards_AUTH_test", Container: "s0", Lower: "", Upper: "",
		Timestamp: ts, State: shardrange.StateActive, StateTimestamp: ts, ObjectCount: 3,
	}
	require.NoError(t, root.MergeShardRanges(ctx, []shardrange.ShardRange{lastShard}))
	reg.put(broker.Info{Account: lastShard.Account, Container: lastShard.Container})

	cfg := sharder.DefaultConfig()
	cfg.ShardShrinkPoint = 10
	cfg.ShardShrinkMergePoint = 1000

	reporter := &fakeReporter{registry: reg}
	require.NoError(t, sharder.FindShrinkCandidates(ctx, root, cfg, rootInfo(), reporter))

	donorBroker := reg.get(lastShard.Account, lastShard.Container)
	require.NotNil(t, donorBroker)
	donorSide, err := donorBroker.GetShardRanges(ctx, broker.ShardRangeQuery{
		States: []shardrange.State{shardrange.StateShrinking},
	})
	require.NoError(t, err)
	require.Len(t, donorSide, 1)
	assert.Equal(t, "s0", donorSide[0].Container)
}
