// Package node is the node monitor of the control plane: the in-memory
// view of storage node reports and object counts that read_system and the
// pool service aggregate.
package node
