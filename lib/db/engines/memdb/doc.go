// Package memdb implements db.KVDB in memory.
//
// Single key reads and writes go through a concurrent xsync.MapOf. Batches
// (Apply), scans and snapshots hold an RWMutex so a reader never observes
// half of a batch. Scan sorts keys on every call, which is fine for the
// config store's data volume but not meant for millions of keys.
package memdb
