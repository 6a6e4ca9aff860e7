package broker

import (
	"context"

	"github.com/dreamware/containersharder/internal/shardrange"
)

// DBState is the owning container database's sharding lifecycle state,
// distinct from the State carried by an individual ShardRange.
type DBState string

const (
	DBStateUnsharded DBState = "UNSHARDED"
	DBStateSharding  DBState = "SHARDING"
	DBStateSharded   DBState = "SHARDED"
	DBStateCollapsed DBState = "COLLAPSED"
)

// Info is the static identity and policy metadata of a broker's container.
type Info struct {
	Account            string
	Container          string
	StoragePolicyIndex int
	RootAccount        string
	RootContainer      string
	RootPath           string
}

// ObjectRow is one row of the container's object listing: either a live
// object or a delete tombstone (Deleted true).
type ObjectRow struct {
	Name               string
	Timestamp          shardrange.Timestamp
	Size               int64
	ContentType        string
	ETag               string
	Deleted            bool
	StoragePolicyIndex int
}

// ShardRangeQuery narrows GetShardRanges: a zero value returns every
// non-deleted range regardless of state.
type ShardRangeQuery struct {
	States []shardrange.State
	// Marker excludes any range whose Lower is strictly before Marker --
	// the cleaver resumes from cleave_context.cursor by passing cursor
	// here directly, so the range that starts exactly at cursor is kept.
	Marker         string
	IncludeOwn     bool
	IncludeDeleted bool
	ExcludeOthers  bool
}

// FoundRange is one candidate split point returned by FindShardRanges,
// before it has been assigned a name or merged as a ShardRange.
type FoundRange struct {
	Lower       string
	Upper       string
	ObjectCount int64
	BytesUsed   int64
	Index       int
}

// CleaveContext is the cleaver's persistent progress record: the upper
// bound of the last range successfully cleaved, and whether cleaving has
// finished entirely. It is replicated alongside the broker so any replica
// can resume a cleave left incomplete by a crash.
type CleaveContext struct {
	Cursor string
	Done   bool
}

// Broker is the contract the sharder requires of a local container
// database. Every method that could block on I/O takes a context first.
type Broker interface {
	GetInfo(ctx context.Context) (Info, error)
	IsDeleted(ctx context.Context) (bool, error)
	IsRootContainer(ctx context.Context) (bool, error)

	GetDBState(ctx context.Context) (DBState, error)
	SetShardingState(ctx context.Context, epoch shardrange.Timestamp) error
	SetShardedState(ctx context.Context) error

	GetOwnShardRange(ctx context.Context) (shardrange.ShardRange, error)
	SetOwnShardRange(ctx context.Context, r shardrange.ShardRange) error
	MergeShardRanges(ctx context.Context, ranges []shardrange.ShardRange) error
	GetShardRanges(ctx context.Context, q ShardRangeQuery) ([]shardrange.ShardRange, error)

	// GetObjects lists rows with name >= marker (when marker is non-empty)
	// and name < endMarker (when endMarker is non-empty). Pass
	// lastRow.Name+"\x00" as the next call's marker to resume after a
	// short page without re-returning the last row.
	GetObjects(ctx context.Context, limit int, marker, endMarker string, policyIndex int, includeDeleted bool) ([]ObjectRow, error)
	MergeItems(ctx context.Context, objs []ObjectRow) error
	RemoveObjects(ctx context.Context, lower, upper string, policyIndex int) error

	FindShardRanges(ctx context.Context, targetSize int64, limit int, existing []shardrange.ShardRange) ([]FoundRange, bool, error)

	LoadCleaveContext(ctx context.Context) (CleaveContext, error)
	DumpCleaveContext(ctx context.Context, c CleaveContext) error

	GetShardingInfo(ctx context.Context, key string) (string, bool, error)
	UpdateShardingInfo(ctx context.Context, values map[string]string) error

	// GetBrokers returns, for a broker in SHARDING state, the ordered set
	// of source databases (the frozen pre-split db plus any fresher
	// fragment) that together hold the pre-cleave contents.
	GetBrokers(ctx context.Context) ([]Broker, error)

	// SharderLock acquires the scoped lock preventing concurrent cleaves
	// into this broker. Callers must defer release() immediately.
	SharderLock(ctx context.Context) (release func(), err error)
}
