// Package agents implements hosted_agents, the storage agents run by the
// control plane itself (the demo nodes of a new system).
package agents
