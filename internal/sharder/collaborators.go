package sharder

import (
	"context"

	"github.com/dreamware/containersharder/internal/broker"
	"github.com/dreamware/containersharder/internal/shardrange"
)

// RootReporter is the subset of internal/reportclient.Client the sharder
// depends on. *reportclient.Client satisfies this interface directly;
// tests substitute a fake that writes straight into a root
// broker.MemoryBroker instead of going over HTTP.
type RootReporter interface {
	SendShardRanges(ctx context.Context, account, container string, ranges []shardrange.ShardRange, headers map[string]string) (bool, error)
	FetchShardRanges(ctx context.Context, rootAccount, rootContainer string, newest bool) ([]shardrange.ShardRange, error)
}

// BrokerFactory opens or creates the local broker for a shard container
// identified by account/container. The cleaver uses it to materialise
// handoff brokers for newly discovered shard ranges; the misplaced-object
// mover uses it to reach sibling shard brokers directly (the root and any
// shard hosted on this same process).
type BrokerFactory interface {
	Open(ctx context.Context, account, container string) (broker.Broker, bool, error)
	Create(ctx context.Context, account, container string, info broker.Info) (broker.Broker, error)
}

// OpenOrCreate opens account/container if it already exists locally,
// otherwise creates it with info.
func OpenOrCreate(ctx context.Context, f BrokerFactory, account, container string, info broker.Info) (broker.Broker, error) {
	if br, ok, err := f.Open(ctx, account, container); err != nil {
		return nil, err
	} else if ok {
		return br, nil
	}
	return f.Create(ctx, account, container, info)
}
