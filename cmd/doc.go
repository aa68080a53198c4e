// Package cmd implements the command-line interface of the dCtl control
// plane. It provides commands for running a member and for calling the
// services of a running cluster.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures a control plane member
//   - system: Provisions, reads and configures tenant systems, issues tokens
//   - pool: Manages the storage pools of a system
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as DCTL_<FLAG> environment variable, .env and
// .env.local are read on startup. See dctl -help for a list of all commands.
package cmd
