package sharder

import (
	"context"
	"strconv"
	"time"

	"github.com/dreamware/containersharder/internal/broker"
	"github.com/dreamware/containersharder/internal/shardrange"
)

// olderTick is the timestamp offset subtracted from a freshly discovered
// range before its first report, so the brand-new, empty shard doesn't
// briefly look shrink-eligible to anyone reading it before its own stats
// land (§4.7).
const olderTick = time.Microsecond

// CreateShardContainers sends every FOUND range in br to its shard
// container's replicas, headers carrying the sharding sysmeta the new
// container needs to recognise itself as a shard. Quorum success bumps the
// range to CREATED both locally and on the root; the first quorum failure
// stops the create loop so later ranges never advance past a failed
// predecessor, preserving the cleaver's linear-progress invariant -- but it
// does not fail the whole call, since ranges already CREATED in a prior
// cycle still need replicating and cleaving this cycle.
func CreateShardContainers(ctx context.Context, br broker.Broker, cfg Config, info broker.Info, isRoot bool, reporter RootReporter, stats *Stats) error {
	found, err := br.GetShardRanges(ctx, broker.ShardRangeQuery{States: []shardrange.State{shardrange.StateFound}})
	if err != nil {
		return err
	}

	for _, r := range found {
		stats.Created.attempt()

		older := r
		older.Timestamp = r.Timestamp.Add(-olderTick)

		headers := map[string]string{
			"X-Backend-Storage-Policy-Index":    strconv.Itoa(info.StoragePolicyIndex),
			"X-Container-Sysmeta-Shard-Root":    info.RootAccount + "/" + info.RootContainer,
			"X-Container-Sysmeta-Sharding":      "True",
		}

		ok, err := reporter.SendShardRanges(ctx, r.Account, r.Container, []shardrange.ShardRange{older}, headers)
		if err != nil {
			stats.Created.fail()
			return err
		}
		if !ok {
			stats.Created.fail()
			break
		}

		r.State = shardrange.StateCreated
		r.StateTimestamp = shardrange.Now()
		if err := br.MergeShardRanges(ctx, []shardrange.ShardRange{r}); err != nil {
			stats.Created.fail()
			return err
		}
		if !isRoot {
			if _, err := reporter.SendShardRanges(ctx, info.RootAccount, info.RootContainer, []shardrange.ShardRange{r}, nil); err != nil {
				stats.Created.fail()
				return err
			}
		}

		stats.Created.ok()
	}

	return nil
}
