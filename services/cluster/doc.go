// Package cluster implements the services concerning control plane members:
// cluster_server (time, dns and debug level of a member) and
// cluster_internal (the receiving end of commit propagation), plus the
// Propagator that calls cluster_internal on every peer after a commit.
package cluster
