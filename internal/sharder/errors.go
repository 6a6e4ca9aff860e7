package sharder

import "github.com/cockroachdb/errors"

// ErrQuorumNotReached mirrors reportclient's sentinel for the sharder's own
// disposition table (§7): a shard range that fails quorum on create stays
// FOUND/un-advanced rather than erroring the cycle, so CreateShardContainers
// itself only halts its create loop on this condition. The sentinel remains
// exported for other RootReporter-backed callers that need to recognise the
// same disposition.
var ErrQuorumNotReached = errors.New("sharder: quorum not reached")

// ErrDeviceUnavailable is returned when the cleaver cannot locate a local
// handoff partition for a shard; the cycle for that broker returns false
// and the range is retried next cycle.
var ErrDeviceUnavailable = errors.New("sharder: device unavailable")

// ErrNoOwnShardRange names a broker with no own shard range set. No
// function in this package returns it; brokers report that case with
// broker.ErrNoOwnShardRange.
var ErrNoOwnShardRange = errors.New("sharder: broker has no own shard range")
