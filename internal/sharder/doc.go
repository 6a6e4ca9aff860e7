// Package sharder drives the per-broker sharding state machine: scanning a
// container for split points, creating shard containers, cleaving object
// rows into them, sweeping misplaced rows to their correct owner, and
// finding shrink candidates once a root is fully sharded.
//
// The package is organised by the phase each file implements (§4.5-§4.10 of
// the sharder design):
//
//	processor.go   the per-cycle state machine (§4.5), orchestrating the rest
//	scanner.go     find and record new split points (§4.6)
//	creation.go    turn FOUND ranges into created shard containers (§4.7)
//	cleaver.go     copy object rows into shard containers (§4.8)
//	shrink.go      pair undersized ACTIVE shards for merging (§4.9)
//	misplaced.go   relocate rows outside a broker's own namespace (§4.10)
//	cycledriver.go enumerate local partitions and dispatch to the processor (§4.4)
//	config.go      recognised options (§6)
//	stats.go       per-cycle counters, recon dump, Prometheus gauges
//	errors.go      typed error values for the dispositions in §7
//
// None of these files talk to a real container database or ring directly;
// they depend on the broker.Broker and ring.Ring interfaces, and on a
// RootReporter for root-container HTTP traffic, so tests can drive the
// whole state machine against broker.MemoryBroker and ring.StaticRing.
package sharder
