package reportclient

import "github.com/cockroachdb/errors"

// ErrQuorumNotReached names the condition of fewer than quorum replicas
// accepting a write. SendShardRanges does not return it: it reports that
// case as a false result with a nil error.
var ErrQuorumNotReached = errors.New("reportclient: quorum not reached")

// ErrNoDevices is returned when the ring has no devices for a partition.
var ErrNoDevices = errors.New("reportclient: no devices available for partition")
