package sharder

import (
	"context"
	"sort"

	"github.com/dreamware/containersharder/internal/broker"
	"github.com/dreamware/containersharder/internal/shardrange"
)

// FindShrinkCandidates pairs adjacent undersized shards on a SHARDED root
// for merging (§4.9). Callers gate this to root-and-leader brokers; the
// function itself does not check either condition.
func FindShrinkCandidates(ctx context.Context, br broker.Broker, cfg Config, info broker.Info, reporter RootReporter) error {
	ranges, err := br.GetShardRanges(ctx, broker.ShardRangeQuery{
		States: []shardrange.State{shardrange.StateActive, shardrange.StateShrinking, shardrange.StateExpanding},
	})
	if err != nil {
		return err
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Lower < ranges[j].Lower })

	if len(ranges) == 1 {
		own, err := br.GetOwnShardRange(ctx)
		if err != nil {
			return err
		}
		return pairDonorAcceptor(ctx, br, reporter, ranges[0], own)
	}

	usedAsAcceptor := make(map[string]bool)
	usedAsDonor := make(map[string]bool)
	shrinkSize, mergeSize := cfg.ShrinkSize(), cfg.MergeSize()

	for i := 0; i+1 < len(ranges); i++ {
		left, right := ranges[i], ranges[i+1]

		if usedAsAcceptor[left.Name()] || usedAsDonor[left.Name()] || usedAsAcceptor[right.Name()] || usedAsDonor[right.Name()] {
			continue
		}

		// Whichever neighbor is undersized donates into the other, so a
		// shard can donate backward as well as forward -- the last shard in
		// the namespace has no successor to donate forward into. When both
		// sides qualify, the left one donates. §4.9 only allows an ACTIVE or SHRINKING
		// range to donate, and only an ACTIVE or EXPANDING range to accept.
		var donor, acceptor shardrange.ShardRange
		switch {
		case left.State == shardrange.StateShrinking && acceptorEligible(right):
			donor, acceptor = left, right
		case right.State == shardrange.StateShrinking && acceptorEligible(left):
			donor, acceptor = right, left
		case left.ObjectCount < shrinkSize && left.ObjectCount+right.ObjectCount < mergeSize &&
			donorEligible(left) && acceptorEligible(right):
			donor, acceptor = left, right
		case right.ObjectCount < shrinkSize && left.ObjectCount+right.ObjectCount < mergeSize &&
			donorEligible(right) && acceptorEligible(left):
			donor, acceptor = right, left
		default:
			continue
		}

		if err := pairDonorAcceptor(ctx, br, reporter, donor, acceptor); err != nil {
			return err
		}
		usedAsDonor[donor.Name()] = true
		usedAsAcceptor[acceptor.Name()] = true
	}

	return nil
}

// donorEligible reports whether r may donate into a neighbor (§4.9: only
// ACTIVE or SHRINKING ranges donate).
func donorEligible(r shardrange.ShardRange) bool {
	return r.State == shardrange.StateActive || r.State == shardrange.StateShrinking
}

// acceptorEligible reports whether r may accept a donor's namespace (§4.9:
// only ACTIVE or EXPANDING ranges accept).
func acceptorEligible(r shardrange.ShardRange) bool {
	return r.State == shardrange.StateActive || r.State == shardrange.StateExpanding
}

// unionLower returns the lower of two lower bounds under empty-is-unbounded
// (-∞) semantics, so widening a range to cover both never narrows it.
func unionLower(a, b string) string {
	if a == "" || b == "" {
		return ""
	}
	if a < b {
		return a
	}
	return b
}

// unionUpper returns the greater of two upper bounds under empty-is-unbounded
// (+∞) semantics.
func unionUpper(a, b string) string {
	if a == "" || b == "" {
		return ""
	}
	if a > b {
		return a
	}
	return b
}

// pairDonorAcceptor marks donor SHRINKING and acceptor EXPANDING, reports
// the acceptor to itself, and sends the donor a copy of the acceptor
// widened to cover the donor's namespace plus the donor's own tombstone
// intent, headers forcing the donor straight into a scan-done cleave
// without rescanning (§4.9).
func pairDonorAcceptor(ctx context.Context, br broker.Broker, reporter RootReporter, donor, acceptor shardrange.ShardRange) error {
	now := shardrange.Now()

	newAcceptor := acceptor
	newAcceptor.State = shardrange.StateExpanding
	newAcceptor.StateTimestamp = now

	newDonor := donor
	newDonor.State = shardrange.StateShrinking
	newDonor.StateTimestamp = now

	if err := br.MergeShardRanges(ctx, []shardrange.ShardRange{newAcceptor, newDonor}); err != nil {
		return err
	}

	if _, err := reporter.SendShardRanges(ctx, acceptor.Account, acceptor.Container, []shardrange.ShardRange{newAcceptor}, nil); err != nil {
		return err
	}

	widenedAcceptor := acceptor
	widenedAcceptor.Timestamp = donor.StateTimestamp
	widenedAcceptor.Lower = unionLower(acceptor.Lower, donor.Lower)
	widenedAcceptor.Upper = unionUpper(acceptor.Upper, donor.Upper)
	widenedAcceptor.State = shardrange.StateActive
	widenedAcceptor.ObjectCount = donor.ObjectCount + acceptor.ObjectCount
	widenedAcceptor.BytesUsed = donor.BytesUsed + acceptor.BytesUsed

	headers := map[string]string{
		"X-Container-Sysmeta-Shard-Scan-Done": "true",
		"X-Container-Sysmeta-Shard-Epoch":     donor.StateTimestamp.String(),
	}
	_, err := reporter.SendShardRanges(ctx, donor.Account, donor.Container, []shardrange.ShardRange{widenedAcceptor, newDonor}, headers)
	return err
}
