// Package ring provides the partition-to-device mapping and local-device
// detection the sharder needs from the cluster's ring, without
// implementing a full production ring (handoff suffix rebalancing, weighted
// region/zone placement, and the on-disk ring file format are all out of
// scope; this module is a contract and a deterministic reference
// implementation, same division of labor as internal/broker).
//
// # Overview
//
// The cycle driver (internal/sharder's CycleDriver) walks local partitions
// and needs three things from the ring: which partition a container's
// identity hashes to, which devices hold that partition's replicas, and
// whether a given device is "this machine" so the driver knows which
// partitions are actually its job to process. The cleaver additionally
// needs a handoff device to host a newly split shard before the ring has
// been told about it.
//
// StaticRing answers all of this from an in-memory device table using
// FNV-1a hashing for partition assignment, in the same style as the
// coordinator's ShardRegistry.GetShardForKey: deterministic, consistent,
// with no external coordination required.
package ring
