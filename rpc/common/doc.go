// Package common provides the data structures shared by the rpc packages.
//
// Key Components:
//
//   - Message: the envelope of every call and reply. A call names a service
//     and method and carries the auth token and the JSON encoded params. A
//     reply carries either the JSON encoded result or an error code plus
//     message, so lib/errs codes survive the wire.
//
//   - MessageType: call, success, error and ping.
//
//   - ServerConfig: every knob of a control plane member (identity, durable
//     backend, raft parameters, transport, auth, provisioning limits,
//     logging). Provides the conversion to Dragonboat configuration and a
//     sectioned String() for the startup log.
//
//   - ClientConfig: transport, serializer and timeout of an rpc client.
package common
