// Package shardrange implements the namespace algebra at the heart of the
// container sharder: the ShardRange value type plus the predicates used to
// detect gaps, overlaps, and ordering between the namespaces owned by child
// containers.
//
// # Overview
//
// A ShardRange describes the half-open namespace `[Lower, Upper)` owned by
// one child container, along with the bookkeeping (state, timestamps,
// object/byte counts) needed to drive the sharder's state machine and the
// range analyser. ShardRange is a plain value type: every method that would
// "change" a range returns a new value rather than mutating the receiver,
// which keeps it safe to share across the worker pool described in
// internal/workerpool.
//
// # Ordering
//
// Bounds are compared lexicographically on UTF-8 bytes, with the empty
// string standing for -∞ (as a lower bound) or +∞ (as an upper bound).
// Ranges sort by (Lower, Timestamp) so that, for a fixed Lower, newer
// edits sort after older ones -- the order the range analyser's _build
// step relies on.
//
// # See Also
//
//   - internal/analyser: reconstructs the authoritative path of ranges
//     for a root container from a multiset with conflicting timestamps.
//   - internal/broker: the consumed database contract that stores and
//     retrieves ShardRange rows.
package shardrange
