// Package db provides a standardized interface for key-value database implementations.
// It is the lowest layer of the durable configuration space: the store package
// builds revisioned, compare-and-swap batches on top of it.
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides single key operations (Set, Get, Has, Delete), ordered prefix
//     scans (Scan), atomic batches (Apply) and persistence (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method.
//
//   - Snapshot format: WriteSnapshot and ReadSnapshot define one binary layout
//     shared by all engines, so a raft replica can restore a snapshot that was
//     taken by a replica running a different engine.
//
// Engines:
//
//   - engines/memdb: in-memory, built on xsync.MapOf. Used for tests and for
//     raft replicas (raft itself provides durability there).
//   - engines/boltdb: a single bbolt file. Used by the single node store.
//
// Note on the write index:
//   - All write operations take a write index that serves as a logical timestamp
//     (the raft log index for replicated stores). Implementations must ensure it
//     only increases; lower values passed to SetWriteIdx are ignored.
//
// The testing package (github.com/ValentinKolb/dCtl/lib/db/testing) runs the
// same conformance suite against every engine.
package db
