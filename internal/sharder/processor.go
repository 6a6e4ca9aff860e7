package sharder

import (
	"context"

	"github.com/dreamware/containersharder/internal/broker"
	"github.com/dreamware/containersharder/internal/ring"
	"github.com/dreamware/containersharder/internal/shardrange"
	"github.com/dreamware/containersharder/internal/workerpool"
)

// Deps bundles the per-cycle collaborators ProcessBroker needs beyond the
// broker itself and the configuration. The cycle driver builds a fresh set
// of Deps for each local broker it processes, through its DepsFor callback.
type Deps struct {
	Leader     bool
	Reporter   RootReporter
	Factory    BrokerFactory
	Ring       ring.Ring
	Replicator Replicator
	Pool       *workerpool.Pool
	Cache      *DestinationCache
	Stats      *Stats
}

// ProcessBroker runs one cycle of the per-broker state machine (§4.5)
// against br. It always sweeps misplaced objects first, including for a
// deleted broker, and returns immediately afterward if br is deleted.
//
// "Leader" in deps means this broker is the primary replica and auto_shard
// is enabled; non-leaders still cleave, sweep, and report.
func ProcessBroker(ctx context.Context, br broker.Broker, cfg Config, deps Deps) error {
	deps.Stats.Visited.attempt()

	info, err := br.GetInfo(ctx)
	if err != nil {
		deps.Stats.Visited.fail()
		return err
	}
	isRoot, err := br.IsRootContainer(ctx)
	if err != nil {
		deps.Stats.Visited.fail()
		return err
	}

	if err := SweepMisplaced(ctx, br, cfg, info, isRoot, deps.Factory, deps.Reporter, deps.Replicator, deps.Cache, deps.Stats); err != nil {
		deps.Stats.Visited.fail()
		return err
	}

	deleted, err := br.IsDeleted(ctx)
	if err != nil {
		deps.Stats.Visited.fail()
		return err
	}
	if deleted {
		deps.Stats.Visited.ok()
		return nil
	}

	dbState, err := br.GetDBState(ctx)
	if err != nil {
		deps.Stats.Visited.fail()
		return err
	}

	if err := runStateMachine(ctx, br, cfg, info, isRoot, dbState, deps); err != nil {
		deps.Stats.Visited.fail()
		return err
	}

	if !isRoot {
		if err := reportAllRanges(ctx, br, info, deps.Reporter); err != nil {
			deps.Stats.Visited.fail()
			return err
		}
	}

	deps.Stats.Visited.ok()
	return nil
}

func runStateMachine(ctx context.Context, br broker.Broker, cfg Config, info broker.Info, isRoot bool, dbState broker.DBState, deps Deps) error {
	switch dbState {
	case broker.DBStateUnsharded, broker.DBStateCollapsed:
		return processUnshardedOrCollapsed(ctx, br, cfg, isRoot, deps.Leader)
	case broker.DBStateSharding:
		return processSharding(ctx, br, cfg, info, isRoot, deps)
	case broker.DBStateSharded:
		if isRoot && deps.Leader {
			return FindShrinkCandidates(ctx, br, cfg, info, deps.Reporter)
		}
		return nil
	default:
		return nil
	}
}

func processUnshardedOrCollapsed(ctx context.Context, br broker.Broker, cfg Config, isRoot bool, leader bool) error {
	own, err := br.GetOwnShardRange(ctx)
	if err != nil {
		return err
	}

	if leader && isRoot && own.State != shardrange.StateSharding && own.ObjectCount >= cfg.ShardContainerSize {
		own.State = shardrange.StateSharding
		own.StateTimestamp = shardrange.Now()
		return br.SetOwnShardRange(ctx, own)
	}

	ranges, err := br.GetShardRanges(ctx, broker.ShardRangeQuery{})
	if err != nil {
		return err
	}
	if len(ranges) > 0 {
		return br.SetShardingState(ctx, shardrange.Now())
	}

	if own.State == shardrange.StateSharding || own.State == shardrange.StateShrinking {
		if err := br.UpdateShardingInfo(ctx, map[string]string{scanDoneKey: "false"}); err != nil {
			return err
		}
		return br.SetShardingState(ctx, shardrange.Now())
	}

	return nil
}

func processSharding(ctx context.Context, br broker.Broker, cfg Config, info broker.Info, isRoot bool, deps Deps) error {
	if deps.Leader {
		done, err := ScanDone(ctx, br)
		if err != nil {
			return err
		}
		if !done {
			if err := Scan(ctx, br, cfg, info, isRoot, deps.Reporter, deps.Stats); err != nil {
				return err
			}
		}
		if err := CreateShardContainers(ctx, br, cfg, info, isRoot, deps.Reporter, deps.Stats); err != nil {
			return err
		}
	}

	if deps.Replicator != nil {
		if err := deps.Replicator.Replicate(ctx, br); err != nil {
			return err
		}
	}

	complete, err := Cleave(ctx, br, cfg, info, isRoot, deps.Ring, deps.Factory, deps.Replicator, deps.Pool, deps.Stats)
	if err != nil {
		return err
	}

	done, err := ScanDone(ctx, br)
	if err != nil {
		return err
	}
	if !done || !complete {
		return nil
	}

	return finishSharding(ctx, br, isRoot)
}

// finishSharding promotes every CLEAVED range to ACTIVE, marks the
// broker's own range SHARDED, and -- for a non-root shard -- tombstones it
// so the root's next report removes it from the namespace listing.
func finishSharding(ctx context.Context, br broker.Broker, isRoot bool) error {
	cleaved, err := br.GetShardRanges(ctx, broker.ShardRangeQuery{States: []shardrange.State{shardrange.StateCleaved}})
	if err != nil {
		return err
	}
	if len(cleaved) > 0 {
		now := shardrange.Now()
		for i := range cleaved {
			cleaved[i].State = shardrange.StateActive
			cleaved[i].StateTimestamp = now
		}
		if err := br.MergeShardRanges(ctx, cleaved); err != nil {
			return err
		}
	}

	own, err := br.GetOwnShardRange(ctx)
	if err != nil {
		return err
	}
	own.State = shardrange.StateSharded
	own.StateTimestamp = shardrange.Now()
	if !isRoot {
		own.Deleted = true
		own.Timestamp = shardrange.Now()
	}
	if err := br.SetOwnShardRange(ctx, own); err != nil {
		return err
	}

	return br.SetShardedState(ctx)
}

func reportAllRanges(ctx context.Context, br broker.Broker, info broker.Info, reporter RootReporter) error {
	ranges, err := br.GetShardRanges(ctx, broker.ShardRangeQuery{IncludeOwn: true, IncludeDeleted: true})
	if err != nil {
		return err
	}
	if len(ranges) == 0 {
		return nil
	}
	_, err = reporter.SendShardRanges(ctx, info.RootAccount, info.RootContainer, ranges, nil)
	return err
}
