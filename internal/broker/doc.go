// Package broker defines the contract the sharder requires of a local
// container database, without implementing one.
//
// # Overview
//
// The real container broker -- object rows, shard-range rows, sysmeta, and
// the db-state/merge/replicate primitives built on top of them -- is an
// external collaborator: a full SQL-backed database engine is out of scope
// for this module, exactly as it is out of scope for the sharder itself.
// What the sharder's processor, cleaver, scanner, and misplaced-object
// mover actually need is a narrow, well-defined contract against which
// they can be driven in tests without a real database.
//
// Broker is that contract. MemoryBroker is a reference implementation
// backed by in-memory maps, guarded by a sync.RWMutex in the same style as
// internal/storage's MemoryStore: it is not meant for production, but it
// gives cmd/brokerctl something to host and the sharder package's tests
// something real to drive.
//
// # Dynamic dispatch
//
// The processor, cleaver, and scanner all hold a Broker interface value,
// never a concrete type: swapping in a SQL-backed implementation later
// requires no change above this package boundary.
package broker
