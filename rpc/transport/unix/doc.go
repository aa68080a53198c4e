// Package unix provides Unix domain socket connectors for the base
// transport, used when the cli talks to a member on the same host.
//
// Default buffer size: 64 KB.
package unix
