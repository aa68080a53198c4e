// Package transport defines the contract between the rpc layer and the wire.
// A transport moves opaque request and response frames, serialization and
// dispatch happen above it.
//
// Implementations: base (framed stream protocol shared by tcp and unix),
// tcp, unix and http.
package transport
