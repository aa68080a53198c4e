// Package app assembles a control plane member from a common.ServerConfig:
// the durable backend (local or raft replicated), the config store with
// commit propagation to the peers, the rpc registry with every service
// and the rpc server exposing it.
package app
