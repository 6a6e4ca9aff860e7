package sharder

import (
	"context"

	"github.com/dreamware/containersharder/internal/broker"
	"github.com/dreamware/containersharder/internal/ring"
	"github.com/dreamware/containersharder/internal/shardrange"
	"github.com/dreamware/containersharder/internal/workerpool"
)

// containerListingLimit bounds the page size used when copying object rows
// from a source broker into a shard broker during a cleave (§4.8 step 3d).
const containerListingLimit = 10000

// Replicator pushes a locally-modified broker's database out to its peer
// replicas. A nil Replicator makes Cleave skip replication, which is
// sufficient for the in-memory reference broker used by tests.
type Replicator interface {
	Replicate(ctx context.Context, br broker.Broker) error
}

// Cleave advances br's cleave_context by up to cfg.ShardBatchSize ranges
// (§4.8). It returns true iff every range currently due for cleaving was
// completed by this call -- including the trivial case where there was
// nothing left to do.
func Cleave(ctx context.Context, br broker.Broker, cfg Config, info broker.Info, isRoot bool, r ring.Ring, factory BrokerFactory, repl Replicator, pool *workerpool.Pool, stats *Stats) (bool, error) {
	cc, err := br.LoadCleaveContext(ctx)
	if err != nil {
		return false, err
	}
	if cc.Done {
		return true, nil
	}

	todo, err := br.GetShardRanges(ctx, broker.ShardRangeQuery{
		Marker: cc.Cursor,
		States: []shardrange.State{shardrange.StateCreated, shardrange.StateCleaved, shardrange.StateActive},
	})
	if err != nil {
		return false, err
	}
	if len(todo) == 0 {
		return true, nil
	}

	own, err := br.GetOwnShardRange(ctx)
	if err != nil {
		return false, err
	}

	batch := todo
	if len(batch) > cfg.ShardBatchSize {
		batch = batch[:cfg.ShardBatchSize]
	}

	sources, err := br.GetBrokers(ctx)
	if err != nil {
		return false, err
	}
	if len(sources) == 0 {
		sources = []broker.Broker{br}
	}

	var lastDone shardrange.ShardRange
	for _, rng := range batch {
		stats.Cleaved.attempt()

		partition := r.GetPartition(rng.Account, rng.Container)
		if len(r.GetNodes(partition)) == 0 {
			stats.Cleaved.fail()
			return false, ErrDeviceUnavailable
		}

		shardBr, err := OpenOrCreate(ctx, factory, rng.Account, rng.Container, broker.Info{
			Account:            rng.Account,
			Container:          rng.Container,
			StoragePolicyIndex: info.StoragePolicyIndex,
			RootAccount:        info.RootAccount,
			RootContainer:      info.RootContainer,
		})
		if err != nil {
			stats.Cleaved.fail()
			return false, err
		}
		if err := shardBr.SetOwnShardRange(ctx, rng); err != nil {
			stats.Cleaved.fail()
			return false, err
		}

		release, err := shardBr.SharderLock(ctx)
		if err != nil {
			stats.Cleaved.fail()
			return false, err
		}
		err = cleaveOneRange(ctx, br, shardBr, own, rng, isRoot, sources, info.StoragePolicyIndex)
		release()
		if err != nil {
			stats.Cleaved.fail()
			return false, err
		}

		if repl != nil {
			target := shardBr
			pool.Spawn(func() error { return repl.Replicate(ctx, target) })
		}

		lastDone = rng
		stats.Cleaved.ok()
	}

	for _, replErr := range pool.Wait() {
		_ = replErr // best-effort: replication failures are retried by the inherited replicator, not by the cleaver
	}

	cc.Cursor = lastDone.Upper
	if cc.Cursor == own.Upper {
		cc.Done = true
	}
	if err := br.DumpCleaveContext(ctx, cc); err != nil {
		return false, err
	}

	return len(batch) == len(todo), nil
}

func cleaveOneRange(ctx context.Context, br, shardBr broker.Broker, own, rng shardrange.ShardRange, isRoot bool, sources []broker.Broker, policyIndex int) error {
	for _, source := range sources {
		marker := rng.Lower
		for {
			rows, err := source.GetObjects(ctx, containerListingLimit, marker, rng.Upper, policyIndex, true)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				break
			}
			if err := shardBr.MergeItems(ctx, rows); err != nil {
				return err
			}
			marker = rows[len(rows)-1].Name + "\x00"
			if len(rows) < containerListingLimit {
				break
			}
		}
	}

	isShrink := rng.Includes(own) && own.State != shardrange.StateSharded
	if isShrink {
		tombstone := own
		tombstone.Deleted = true
		tombstone.State = shardrange.StateSharded
		tombstone.StateTimestamp = shardrange.Now()
		if err := br.MergeShardRanges(ctx, []shardrange.ShardRange{tombstone}); err != nil {
			return err
		}
		if err := shardBr.MergeShardRanges(ctx, []shardrange.ShardRange{tombstone}); err != nil {
			return err
		}
		return nil
	}

	if rng.State == shardrange.StateCreated {
		freshInfo, err := shardBr.GetInfo(ctx)
		if err != nil {
			return err
		}
		rows, err := shardBr.GetObjects(ctx, 1<<30, "", "", freshInfo.StoragePolicyIndex, false)
		if err != nil {
			return err
		}
		updated := rng
		updated.ObjectCount = int64(len(rows))
		var bytesUsed int64
		for _, row := range rows {
			bytesUsed += row.Size
		}
		updated.BytesUsed = bytesUsed
		if isRoot {
			updated.State = shardrange.StateActive
		} else {
			updated.State = shardrange.StateCleaved
		}
		updated.StateTimestamp = shardrange.Now()
		if err := br.MergeShardRanges(ctx, []shardrange.ShardRange{updated}); err != nil {
			return err
		}
	}

	return nil
}
