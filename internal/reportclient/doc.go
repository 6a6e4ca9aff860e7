// Package reportclient is the thin internal-client wrapper the sharder
// uses to report shard ranges to the root container's replicas and to
// fetch the root's own shard-range listing back.
//
// # Overview
//
// The real internal client (swift.common.internal_client) is a full
// retrying HTTP client used throughout Swift for many kinds of requests;
// this package implements only the two operations the sharder needs from
// it (§4.3 of the sharder spec): a quorum-write fan-out and a
// newest-aware single-node read. Retries per request are driven by
// cenkalti/backoff rather than a hand-rolled loop, and the fan-out to
// every replica uses internal/workerpool so the degree of parallelism is
// capped the same way every other concurrent operation in this module is.
//
// Per-node failures during a quorum write are only counted toward quorum
// (the caller sees the overall true/false result) and never abort the other in-flight
// requests -- one slow or dead replica must not block, or corrupt the
// result for, the rest.
package reportclient
