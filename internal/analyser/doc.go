// Package analyser reconstructs the authoritative shard-range history of a
// root container from a multiset of ranges carrying conflicting timestamps.
//
// # Overview
//
// Replication and retried writes mean a root container's shard-range table
// can, at any instant, hold the debris of more than one attempt at
// splitting the same namespace: an old pair of ranges from a first scan
// alongside a newer pair from a retried one, say. Analyse walks that
// debris and produces every distinct end-to-end (or partial) path through
// it, newest first, so the caller can act on the newest complete path and
// treat everything else as leftover history to reconcile or discard.
//
// # Algorithm
//
// Ranges are modelled as nodes in a DAG: node A has an edge to node B when
// A.Upper == B.Lower. Rather than back-pointers between heap-allocated
// nodes (which Go's garbage collector handles fine, but which make the
// graph awkward to reason about and to reset between calls), the graph is
// built as a flat arena: each node's outgoing edges are tracked through a
// shared slice pointer keyed by bound value, so the construction pass can
// attach a range to its eventual children before or after those children
// are themselves discovered, without ever rewriting a parent pointer.
//
// Once built, the DAG is walked depth-first from every root (a range whose
// Lower is "", i.e. the sentinel "-∞ root" list) and every gap
// (a node whose Lower failed to match anything during the build and so was
// never reachable from a root). Each walk produces one primary path plus,
// at every fork, a side path recorded independently. Paths are classified
// complete (terminal Upper == "") or incomplete, and incomplete paths that
// pick up after a real lower bound are spliced onto a plausible
// predecessor. When two paths tie on their maximum timestamp, the analyser
// compares what is unique to each relative to the others and gives every
// tied path's timestamp an integer offset in that order, the winner
// receiving the largest, so the newest-first sort is deterministic. The
// offsets live only in the returned paths; nothing carries over to a later
// Analyse call.
//
// Analyse never mutates its input; structural problems (a range with
// Lower >= Upper and a concrete Upper) fail the whole call with
// ErrMalformedRanges rather than silently dropping data.
package analyser
