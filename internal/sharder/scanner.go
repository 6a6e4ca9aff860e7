package sharder

import (
	"context"

	"github.com/dreamware/containersharder/internal/broker"
	"github.com/dreamware/containersharder/internal/shardrange"
)

// scanDoneKey is the sharding-info key recording that the scanner has
// walked the entire object table and found every split point (§4.4, §4.6).
const scanDoneKey = "Scan-Done"

// Scan calls Broker.FindShardRanges for the next batch of split points,
// names and merges them as FOUND shard ranges, reports new ranges to the
// root when br is not itself the root, and marks Scan-Done once the
// broker's last_found bool says there is nothing left to discover (§4.6).
//
// An empty batch with lastFound=false is a soft failure: the scanner
// leaves no trace and is retried next cycle.
func Scan(ctx context.Context, br broker.Broker, cfg Config, info broker.Info, isRoot bool, reporter RootReporter, stats *Stats) error {
	stats.Scanned.attempt()

	existing, err := br.GetShardRanges(ctx, broker.ShardRangeQuery{})
	if err != nil {
		stats.Scanned.fail()
		return err
	}

	found, lastFound, err := br.FindShardRanges(ctx, cfg.ScanTargetSize(), cfg.ShardScannerBatchSize, existing)
	if err != nil {
		stats.Scanned.fail()
		return err
	}

	if len(found) == 0 && !lastFound {
		stats.Scanned.fail()
		return nil
	}

	if len(found) > 0 {
		ts := shardrange.Now()
		newRanges := make([]shardrange.ShardRange, 0, len(found))
		for _, f := range found {
			account, container := shardrange.MakePath(
				cfg.AutoCreateAccountPrefix+"shards_"+info.RootAccount,
				info.RootContainer,
				info.Container,
				ts,
				f.Index,
			)
			newRanges = append(newRanges, shardrange.ShardRange{
				Account:        account,
				Container:      container,
				Lower:          f.Lower,
				Upper:          f.Upper,
				Timestamp:      ts,
				State:          shardrange.StateFound,
				StateTimestamp: ts,
				MetaTimestamp:  ts,
				ObjectCount:    f.ObjectCount,
				BytesUsed:      f.BytesUsed,
			})
		}

		if err := br.MergeShardRanges(ctx, newRanges); err != nil {
			stats.Scanned.fail()
			return err
		}

		if !isRoot {
			if ok, err := reporter.SendShardRanges(ctx, info.RootAccount, info.RootContainer, newRanges, nil); err != nil || !ok {
				stats.Scanned.fail()
				if err != nil {
					return err
				}
				return nil
			}
		}
	}

	if lastFound {
		if err := br.UpdateShardingInfo(ctx, map[string]string{scanDoneKey: "true"}); err != nil {
			stats.Scanned.fail()
			return err
		}
	}

	stats.Scanned.ok()
	return nil
}

// ScanDone reports whether the broker has recorded Scan-Done=true.
func ScanDone(ctx context.Context, br broker.Broker) (bool, error) {
	v, ok, err := br.GetShardingInfo(ctx, scanDoneKey)
	if err != nil || !ok {
		return false, err
	}
	return v == "true", nil
}
