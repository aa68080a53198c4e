// Package confstore is the authoritative, versioned, in-memory mirror of the
// control plane configuration.
//
// A Store is created once per process and injected into every service. It
// loads all documents from a store.IStore (local bolt file or the raft backed
// dstore) and keeps them in an immutable Data snapshot. Readers call Data()
// and work on that snapshot without locks, it never changes underneath them.
//
// Writes:
//
//	rev, err := cs.MakeChanges(ctx, confstore.Changes{
//	    Insert: map[model.Collection][]model.Document{
//	        model.Pools: {model.NewPoolDefaults(cs.GenerateID(), "p1", systemID)},
//	    },
//	    Update: map[model.Collection][]confstore.Patch{
//	        model.Systems: {confstore.NewPatch(systemID, map[string]interface{}{"debug_level": 0})},
//	    },
//	})
//
// A batch is all or nothing. It is validated against a private copy of the
// snapshot (document rules, references, unique names), written to the backend
// as a single compare-and-swap batch on the persisted revision counter and
// only then published as the next snapshot. A writer that started from an
// older revision, or lost the race against another process on the same
// backend, gets a retryable errs.Conflict.
//
// Until the first Load succeeded every read and write fails with errs.NotReady.
//
// After a commit the new revision is handed to the Propagator in the
// background. Peers answer with ReloadIfBehind, so other members see the
// change after a short delay. Failed propagation is logged and otherwise
// ignored.
//
// Removing a document never cascades. A system removed with its pools still
// in place leaves those pools dangling until an operator removes them.
package confstore
