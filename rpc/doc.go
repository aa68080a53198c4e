// Package rpc is the communication layer between the control plane members
// and their clients. Services are described by method tables with JSON
// schemas for params and replies, and are invoked in process when the
// service is registered locally or over a transport otherwise.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol and the server and client configuration.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization (Binary, JSON, GOB, CBOR).
//
//   - schema: The catalog of params and reply schemas per service method.
//
//   - auth: Session tokens and the per method authorization requirements.
//
//   - server: The service registry (validate, authorize, dispatch) and the
//     rpc server exposing it over a transport.
//
//   - client: Typed calls with local or remote dispatch and futures.
package rpc
