package sharder

import (
	"context"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/containersharder/internal/broker"
	"github.com/dreamware/containersharder/internal/shardrange"
)

// DestinationCache bounds repeated root-listing fetches across misplaced
// sweeps within a single cycle (§4.10): only the root's own, locally
// available shard-range listing is cached -- a shard's "newest" fetch
// always bypasses it, since that read has to observe whatever the root
// produced most recently, not what this process cached moments ago.
type DestinationCache = lru.Cache[string, []shardrange.ShardRange]

// NewDestinationCache builds a cache sized for size distinct roots.
func NewDestinationCache(size int) (*DestinationCache, error) {
	return lru.New[string, []shardrange.ShardRange](size)
}

type misplacedBatch struct {
	dest shardrange.ShardRange
	rows []broker.ObjectRow
}

// SweepMisplaced relocates object rows outside br's owned namespace to
// their correct destination container (§4.10). It is a no-op when own is
// EXPANDING (the acceptor of an in-flight shrink must not reject cleaved
// rows arriving through the normal cleave path) or when br is deleted.
func SweepMisplaced(ctx context.Context, br broker.Broker, cfg Config, info broker.Info, isRoot bool, factory BrokerFactory, reporter RootReporter, repl Replicator, cache *DestinationCache, stats *Stats) error {
	deleted, err := br.IsDeleted(ctx)
	if err != nil {
		return err
	}
	if deleted {
		return nil
	}

	own, err := br.GetOwnShardRange(ctx)
	if err != nil {
		return err
	}
	if own.State == shardrange.StateExpanding {
		return nil
	}

	queries, err := misplacedQueries(ctx, br, own)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		return nil
	}

	dest, err := destinationRanges(ctx, br, info, isRoot, reporter, cache)
	if err != nil {
		return err
	}
	sort.Slice(dest, func(i, j int) bool { return dest[i].Lower < dest[j].Lower })

	batches := make(map[string]*misplacedBatch)
	var order []string

	for _, q := range queries {
		stats.Misplaced.attempt()
		if err := sweepOneQuery(ctx, br, info, own, q[0], q[1], dest, batches, &order); err != nil {
			stats.Misplaced.fail()
			return err
		}
		stats.Misplaced.ok()
	}

	for _, key := range order {
		b := batches[key]
		targetBr, err := OpenOrCreate(ctx, factory, b.dest.Account, b.dest.Container, broker.Info{
			Account:            b.dest.Account,
			Container:          b.dest.Container,
			StoragePolicyIndex: info.StoragePolicyIndex,
			RootAccount:        info.RootAccount,
			RootContainer:      info.RootContainer,
		})
		if err != nil {
			return err
		}
		if err := targetBr.MergeItems(ctx, b.rows); err != nil {
			return err
		}
		if repl != nil {
			if err := repl.Replicate(ctx, targetBr); err != nil {
				logrus.WithError(err).WithField("destination", b.dest.Name()).Warn("misplaced-object replication failed, rows stay queued for retry")
				continue
			}
		}
		if err := br.RemoveObjects(ctx, b.dest.Lower, b.dest.Upper, info.StoragePolicyIndex); err != nil {
			return err
		}
	}

	return nil
}

func misplacedQueries(ctx context.Context, br broker.Broker, own shardrange.ShardRange) ([][2]string, error) {
	state, err := br.GetDBState(ctx)
	if err != nil {
		return nil, err
	}

	if state == broker.DBStateSharded {
		return [][2]string{{"", ""}}, nil
	}

	if state == broker.DBStateSharding {
		cc, err := br.LoadCleaveContext(ctx)
		if err != nil {
			return nil, err
		}
		if cc.Cursor != "" {
			queries := [][2]string{{"", cc.Cursor}}
			if own.Upper != "" {
				queries = append(queries, [2]string{own.Upper, ""})
			}
			return queries, nil
		}
	}

	var queries [][2]string
	if own.Lower != "" {
		queries = append(queries, [2]string{"", own.Lower})
	}
	if own.Upper != "" {
		queries = append(queries, [2]string{own.Upper, ""})
	}
	return queries, nil
}

func destinationRanges(ctx context.Context, br broker.Broker, info broker.Info, isRoot bool, reporter RootReporter, cache *DestinationCache) ([]shardrange.ShardRange, error) {
	if !isRoot {
		ranges, err := reporter.FetchShardRanges(ctx, info.RootAccount, info.RootContainer, true)
		if err != nil {
			return nil, err
		}
		return ranges, nil
	}

	key := info.RootAccount + "/" + info.RootContainer
	if cache != nil {
		if cached, ok := cache.Get(key); ok {
			return cached, nil
		}
	}
	ranges, err := br.GetShardRanges(ctx, broker.ShardRangeQuery{States: []shardrange.State{shardrange.StateActive}})
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.Add(key, ranges)
	}
	return ranges, nil
}

func sweepOneQuery(ctx context.Context, br broker.Broker, info broker.Info, own shardrange.ShardRange, lower, upper string, dest []shardrange.ShardRange, batches map[string]*misplacedBatch, order *[]string) error {
	destIdx := 0
	marker := lower
	ownName := own.Name()

	for {
		rows, err := br.GetObjects(ctx, containerListingLimit, marker, upper, info.StoragePolicyIndex, true)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		for _, row := range rows {
			for destIdx < len(dest) && dest[destIdx].Upper != "" && row.Name >= dest[destIdx].Upper {
				destIdx++
			}
			if destIdx >= len(dest) || (dest[destIdx].Lower != "" && row.Name < dest[destIdx].Lower) {
				logrus.WithField("object", row.Name).Warn("misplaced object has no destination shard range yet")
				continue
			}

			d := dest[destIdx]
			if d.Name() == ownName {
				continue
			}

			key := d.Name()
			b, ok := batches[key]
			if !ok {
				b = &misplacedBatch{dest: d}
				batches[key] = b
				*order = append(*order, key)
			}
			b.rows = append(b.rows, row)
		}

		marker = rows[len(rows)-1].Name + "\x00"
		if len(rows) < containerListingLimit {
			return nil
		}
	}
}
