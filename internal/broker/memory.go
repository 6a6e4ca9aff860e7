package broker

import (
	"context"
	"sort"
	"sync"

	"github.com/dreamware/containersharder/internal/shardrange"
)

// MemoryBroker is an in-memory reference implementation of Broker, guarded
// by a sync.RWMutex in the style of internal/storage's MemoryStore. It is
// not a production database: FindShardRanges uses object count as its only
// sizing signal, and nothing here is durable across process restarts. It
// exists so the sharder's processor, cleaver, scanner, and misplaced-object
// mover have something real to drive in tests and so cmd/brokerctl has
// something to host.
type MemoryBroker struct {
	mu sync.RWMutex

	info    Info
	deleted bool
	dbState DBState

	ownRange    shardrange.ShardRange
	hasOwnRange bool

	ranges  map[string]shardrange.ShardRange // keyed by ShardRange.Name()
	objects map[string]ObjectRow             // keyed by ObjectRow.Name

	cleave   CleaveContext
	sharding map[string]string

	locked bool

	sourceBrokers []Broker
}

// NewMemoryBroker creates an empty broker for the given container identity,
// starting in UNSHARDED state with no own shard range.
func NewMemoryBroker(info Info) *MemoryBroker {
	return &MemoryBroker{
		info:     info,
		dbState:  DBStateUnsharded,
		ranges:   make(map[string]shardrange.ShardRange),
		objects:  make(map[string]ObjectRow),
		sharding: make(map[string]string),
	}
}

func (b *MemoryBroker) GetInfo(ctx context.Context) (Info, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info, nil
}

func (b *MemoryBroker) IsDeleted(ctx context.Context) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.deleted, nil
}

// SetDeleted marks the broker's container as deleted. Exposed for tests
// driving the processor's "deleted broker still sweeps misplaced objects"
// path; real brokers learn this from the container's own tombstone state.
func (b *MemoryBroker) SetDeleted(deleted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = deleted
}

func (b *MemoryBroker) IsRootContainer(ctx context.Context) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info.Account == b.info.RootAccount && b.info.Container == b.info.RootContainer, nil
}

func (b *MemoryBroker) GetDBState(ctx context.Context) (DBState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dbState, nil
}

func (b *MemoryBroker) SetShardingState(ctx context.Context, epoch shardrange.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dbState = DBStateSharding
	if b.hasOwnRange {
		b.ownRange.Epoch = epoch
	}
	return nil
}

func (b *MemoryBroker) SetShardedState(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dbState = DBStateSharded
	return nil
}

func (b *MemoryBroker) GetOwnShardRange(ctx context.Context) (shardrange.ShardRange, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasOwnRange {
		return shardrange.ShardRange{}, ErrNoOwnShardRange
	}
	return b.ownRange, nil
}

func (b *MemoryBroker) SetOwnShardRange(ctx context.Context, r shardrange.ShardRange) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ownRange = r
	b.hasOwnRange = true
	return nil
}

// mergeOneRange is the timestamp-keyed merge rule shared by MergeShardRanges
// and by own-range updates: an incoming record only replaces the stored one
// when its timestamp is not older, so replays and retries are no-ops.
func mergeOneRange(existing map[string]shardrange.ShardRange, r shardrange.ShardRange) {
	key := r.Name()
	if cur, ok := existing[key]; !ok || !cur.Timestamp.After(r.Timestamp) {
		existing[key] = r
	}
}

func (b *MemoryBroker) MergeShardRanges(ctx context.Context, ranges []shardrange.ShardRange) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range ranges {
		mergeOneRange(b.ranges, r)
	}
	return nil
}

func (b *MemoryBroker) GetShardRanges(ctx context.Context, q ShardRangeQuery) ([]shardrange.ShardRange, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	wantState := make(map[shardrange.State]bool, len(q.States))
	for _, s := range q.States {
		wantState[s] = true
	}

	var out []shardrange.ShardRange
	for _, r := range b.ranges {
		if q.ExcludeOthers {
			continue
		}
		if !q.IncludeDeleted && r.Deleted {
			continue
		}
		if len(wantState) > 0 && !wantState[r.State] {
			continue
		}
		if q.Marker != "" && r.Lower < q.Marker {
			continue
		}
		out = append(out, r)
	}
	if q.IncludeOwn && b.hasOwnRange {
		if q.IncludeDeleted || !b.ownRange.Deleted {
			if len(wantState) == 0 || wantState[b.ownRange.State] {
				out = append(out, b.ownRange)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

func (b *MemoryBroker) GetObjects(ctx context.Context, limit int, marker, endMarker string, policyIndex int, includeDeleted bool) ([]ObjectRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var names []string
	for name := range b.objects {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []ObjectRow
	for _, name := range names {
		if marker != "" && name < marker {
			continue
		}
		if endMarker != "" && name >= endMarker {
			continue
		}
		row := b.objects[name]
		if row.StoragePolicyIndex != policyIndex {
			continue
		}
		if row.Deleted && !includeDeleted {
			continue
		}
		out = append(out, row)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (b *MemoryBroker) MergeItems(ctx context.Context, objs []ObjectRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range objs {
		cur, ok := b.objects[o.Name]
		if !ok || !cur.Timestamp.After(o.Timestamp) {
			b.objects[o.Name] = o
		}
	}
	return nil
}

func (b *MemoryBroker) RemoveObjects(ctx context.Context, lower, upper string, policyIndex int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, row := range b.objects {
		if row.StoragePolicyIndex != policyIndex {
			continue
		}
		if name < lower {
			continue
		}
		if upper != "" && name >= upper {
			continue
		}
		delete(b.objects, name)
	}
	return nil
}

// FindShardRanges proposes split points by grouping non-deleted object
// names, skipping any already covered by existing, into chunks of roughly
// targetSize objects, returning up to limit chunks. lastFound reports
// whether every remaining object was consumed by the chunks returned.
func (b *MemoryBroker) FindShardRanges(ctx context.Context, targetSize int64, limit int, existing []shardrange.ShardRange) ([]FoundRange, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if targetSize <= 0 {
		targetSize = 1
	}

	var names []string
	for name, row := range b.objects {
		if row.Deleted {
			continue
		}
		covered := false
		for _, r := range existing {
			if (r.Lower == "" || name >= r.Lower) && (r.Upper == "" || name < r.Upper) {
				covered = true
				break
			}
		}
		if !covered {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var found []FoundRange
	lower := ""
	for _, r := range existing {
		if r.Upper != "" && (lower == "" || r.Upper > lower) {
			lower = r.Upper
		}
	}

	idx := 0
	for len(names) > 0 && (limit <= 0 || len(found) < limit) {
		n := int(targetSize)
		if n > len(names) {
			n = len(names)
		}
		chunk := names[:n]
		names = names[n:]

		upper := ""
		if len(names) > 0 {
			upper = chunk[len(chunk)-1]
			// The successor range's lower bound must equal this chunk's
			// upper bound, so upper is exclusive of chunk's own last name:
			// use the first remaining name as the true split point.
			upper = names[0]
		}

		found = append(found, FoundRange{
			Lower:       lower,
			Upper:       upper,
			ObjectCount: int64(len(chunk)),
			Index:       idx,
		})
		lower = upper
		idx++
	}

	return found, len(names) == 0, nil
}

func (b *MemoryBroker) LoadCleaveContext(ctx context.Context) (CleaveContext, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cleave, nil
}

func (b *MemoryBroker) DumpCleaveContext(ctx context.Context, c CleaveContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleave = c
	return nil
}

func (b *MemoryBroker) GetShardingInfo(ctx context.Context, key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.sharding[key]
	return v, ok, nil
}

func (b *MemoryBroker) UpdateShardingInfo(ctx context.Context, values map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range values {
		b.sharding[k] = v
	}
	return nil
}

// SetSourceBrokers configures the result of GetBrokers for tests exercising
// the cleaver's "copy from every source, frozen plus fresh" path. With none
// configured, GetBrokers returns the broker itself as its only source.
func (b *MemoryBroker) SetSourceBrokers(brokers []Broker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sourceBrokers = brokers
}

func (b *MemoryBroker) GetBrokers(ctx context.Context) ([]Broker, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.sourceBrokers) > 0 {
		out := make([]Broker, len(b.sourceBrokers))
		copy(out, b.sourceBrokers)
		return out, nil
	}
	return []Broker{b}, nil
}

func (b *MemoryBroker) SharderLock(ctx context.Context) (func(), error) {
	b.mu.Lock()
	if b.locked {
		b.mu.Unlock()
		return nil, ErrLocked
	}
	b.locked = true
	b.mu.Unlock()

	release := func() {
		b.mu.Lock()
		b.locked = false
		b.mu.Unlock()
	}
	return release, nil
}
