package broker

import "github.com/cockroachdb/errors"

// ErrLocked is returned by SharderLock when another caller already holds
// the lock.
var ErrLocked = errors.New("broker: sharding lock already held")

// ErrNoOwnShardRange is returned by GetOwnShardRange before one has ever
// been set.
var ErrNoOwnShardRange = errors.New("broker: no own shard range set")
