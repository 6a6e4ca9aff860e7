// Package workerpool implements a bounded "spawn, then wait for all"
// task pool: the concurrency primitive described in §5 of the sharder
// spec, with no shared mutable state between tasks except whatever
// broker or client each task closes over.
//
// # Overview
//
// The health monitor in the teacher repo already shows this shape:
// checkAllNodes fans a goroutine out per node and calls wg.Wait() before
// moving on. Pool generalizes that from "one task per node, no limit" to
// "up to N tasks concurrently, any number submitted", which the
// root-reporting client needs for quorum PUT fan-out (bounded by replica
// count naturally, but still worth capping) and the cleaver needs for
// batching cleave work without spawning unbounded goroutines on a root
// container with thousands of shards.
//
// Every state transition in the per-broker processor's ordering table
// (§4.5) is preceded by a join barrier: nothing proceeds to cleave,
// create, or promote until every concurrently dispatched task from the
// previous step has finished. Wait is that barrier.
package workerpool
