package sharder_test

import (
	"context"
	"sync"

	"github.com/dreamware/containersharder/internal/broker"
	"github.com/dreamware/containersharder/internal/shardrange"
)

// testRegistry is an in-process directory of broker.MemoryBroker instances
// keyed by account/container, standing in for the set of local and
// handoff databases a real sharder process would open on disk.
type testRegistry struct {
	mu    sync.Mutex
	store map[string]*broker.MemoryBroker
}

func newTestRegistry() *testRegistry {
	return &testRegistry{store: make(map[string]*broker.MemoryBroker)}
}

func (r *testRegistry) put(info broker.Info) *broker.MemoryBroker {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := info.Account + "/" + info.Container
	if existing, ok := r.store[key]; ok {
		return existing
	}
	br := broker.NewMemoryBroker(info)
	r.store[key] = br
	return br
}

func (r *testRegistry) Open(ctx context.Context, account, container string) (broker.Broker, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	br, ok := r.store[account+"/"+container]
	if !ok {
		return nil, false, nil
	}
	return br, true, nil
}

func (r *testRegistry) Create(ctx context.Context, account, container string, info broker.Info) (broker.Broker, error) {
	info.Account, info.Container = account, container
	return r.put(info), nil
}

func (r *testRegistry) get(account, container string) *broker.MemoryBroker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store[account+"/"+container]
}

// fakeReporter implements sharder.RootReporter directly against a
// testRegistry, skipping HTTP entirely: SendShardRanges merges into
// whichever broker the destination account/container names (creating it
// if this is its first report, as a real shard-container PUT would), and
// FetchShardRanges reads straight from the named broker.
type fakeReporter struct {
	registry *testRegistry
}

func (f *fakeReporter) SendShardRanges(ctx context.Context, account, container string, ranges []shardrange.ShardRange, headers map[string]string) (bool, error) {
	br, ok, err := f.registry.Open(ctx, account, container)
	if err != nil {
		return false, err
	}
	if !ok {
		br, err = f.registry.Create(ctx, account, container, broker.Info{Account: account, Container: container})
		if err != nil {
			return false, err
		}
	}
	if err := br.MergeShardRanges(ctx, ranges); err != nil {
		return false, err
	}
	if len(headers) > 0 {
		if err := br.UpdateShardingInfo(ctx, headers); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (f *fakeReporter) FetchShardRanges(ctx context.Context, rootAccount, rootContainer string, newest bool) ([]shardrange.ShardRange, error) {
	br, ok, err := f.registry.Open(ctx, rootAccount, rootContainer)
	if err != nil || !ok {
		return nil, err
	}
	return br.GetShardRanges(ctx, broker.ShardRangeQuery{States: []shardrange.State{shardrange.StateActive}})
}

// failingReporter always reports quorum failure, for exercising the
// "quorum failure on create" disposition.
type failingReporter struct{}

func (failingReporter) SendShardRanges(ctx context.Context, account, container string, ranges []shardrange.ShardRange, headers map[string]string) (bool, error) {
	return false, nil
}

func (failingReporter) FetchShardRanges(ctx context.Context, rootAccount, rootContainer string, newest bool) ([]shardrange.ShardRange, error) {
	return nil, nil
}
