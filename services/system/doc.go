// Package system implements the system service.
//
// create_system runs the provisioning saga (see provision.go): the system
// graph is committed in one batch, the owner account, demo agents and
// host settings are created afterwards through the typed rpc clients, so
// they work the same whether the collaborating services run in this
// process or on a peer. read_system composes the status view from the
// config store and the node, object and account services (read.go).
//
// Collaborators that touch the host (license server, syslog, diagnostics
// archive) are interfaces with default implementations in this package.
package system
