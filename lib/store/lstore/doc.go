// Package lstore implements a local, single-node store based on the
// store.IStore interface. It is a thin wrapper around any db.KVDB
// implementation with automatic write index management. Whether data survives a
// restart depends on the engine the DBFactory returns (memdb or bolt).
//
// Implementation Details:
//
//   - Write Index Management: The store maintains an atomic counter that increments
//     with each commit. It starts at the write index the engine already holds, so a
//     reopened bolt file keeps counting forward.
//
//   - Commits: A mutex serializes Commit calls. Inside the lock the revision is
//     compared with the expected one and all mutations are applied through a single
//     db.KVDB.Apply call (see store.ApplyBatch). A stale revision fails with a
//     CONFLICT error and leaves the data untouched.
//
//   - Feature Detection: Before executing operations, the store checks if the underlying
//     db.KVDB implementation supports the requested feature through SupportsFeature.
//
// Usage Example:
//
//	factory := func() db.KVDB { return memdb.NewMemDB() }
//	s := lstore.NewLocalStore(factory)
//
//	rev, err := s.Commit(store.WriteBatch{
//	    ExpectedRevision: 0,
//	    Mutations: []store.Mutation{{Key: "doc/pools/6630f1a2c3d4e5f601020304", Value: raw}},
//	})
//
// For deployments with multiple control plane nodes use the dstore package, which
// provides a RAFT-based implementation of the same interface.
package lstore
