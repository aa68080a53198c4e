// Package server hosts rpc services.
//
// A Registry binds service descriptors (ServiceDesc) to handlers. Each
// method names an auth requirement, its params and reply schemas come from
// a schema.Catalog. Registry.Invoke is the single entry point for both
// in-process calls (rpc/client dispatches locally when the service is
// registered here) and calls received over the wire:
//
//  1. look up service and method (NOT_FOUND)
//  2. validate the params against the schema (VALIDATION, handler not invoked)
//  3. verify the token and check the requirement (AUTH)
//  4. run the handler with the session in the context, panics become INTERNAL
//  5. encode the reply, schema mismatches of replies are logged
//
// RPCServer connects a Registry to a transport and serializer:
//
//	registry := server.NewRegistry(api.Catalog(), authority)
//	_ = registry.RegisterService(api.NewPoolServiceDesc(poolService))
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(0, 0), serializer.NewBinarySerializer(), registry)
//	err := s.Serve(ctx)
//
// Error codes travel in the reply (common.Message.ErrCode) and are rebuilt
// by the client, so errors.Is(err, errs.ErrConflict) works across members.
package server
