// Package api defines the rpc surface of the control plane.
//
// Every service is a statically typed Go interface (PoolService,
// SystemService, ...) together with
//
//   - a constructor turning an implementation into a server.ServiceDesc
//     (NewPoolServiceDesc, ...) with the auth requirement of each method
//   - a typed client stub over rpc/client (NewPoolClient, ...)
//   - the JSON schemas of params and replies, collected in Catalog()
//
// Schemas are only checked at the wire boundary: the client validates params
// before a call leaves the process, the server validates them again before
// the handler runs. Handlers receive decoded structs.
//
//	registry := server.NewRegistry(api.Catalog(), authority)
//	_ = api.Register(registry, api.NewPoolServiceDesc(pools))
//
//	c := client.New(client.Options{Local: registry})
//	info, err := api.NewPoolClient(c).ReadPool(ctx, "default_pool", client.WithAuthToken(token))
package api
