// Package dstore replicates the config store backend with the Dragonboat raft
// library. It implements store.IStore for a control plane running on several
// members that share one shard (common.ConfigShardID).
//
// Commits:
//
//	Commit serializes the WriteBatch into an internal.Command carrying the
//	expected revision and the encoded mutations, and proposes it with
//	SyncPropose. The revision check runs inside the state machine
//	(KVStateMachine.Update), so two commits racing on the same revision are
//	ordered by the raft log and the later one fails with CONFLICT on every
//	replica. The raft log index becomes the new revision.
//
// Reads:
//
//	Revision, Get, Has and Scan use SyncRead and observe every committed
//	entry. GetDBInfo uses StaleRead.
//
// Errors:
//
//	ErrSystemBusy is retried a few times with a short pause. A shard without
//	an elected leader answers NOT_READY, which the member's startup loop
//	waits out. State machine return codes are mapped back to lib/errs codes.
//
// Snapshots:
//
//	The state machine streams db.KVDB snapshots (lib/db snapshot format) and
//	restores replicas from them before replaying the log. Replicas keep
//	their data in memory, the raft log is the durable layer.
//
// Single member deployments use lstore instead.
package dstore
