// Package client calls rpc methods.
//
// A Client dispatches transparently: services registered in the local
// server.Registry are invoked in process, everything else is serialized and
// sent to a peer over the configured transport. Params are validated
// against the schema catalog before either path, so a malformed call fails
// with errs.Validation without reaching any handler. Error codes of remote
// failures are restored from the reply.
//
// Tokens: WithAuthToken sets the token of one call, Options.AuthToken the
// default of the client. Without either, a call made from inside a handler
// forwards the token of the session in its context.
//
// Usage:
//
//	c, err := client.Dial(common.ClientConfig{
//		Transport:     common.ClientTransportConfig{Type: common.TransportTCP, Endpoints: []string{"localhost:8080"}},
//		TimeoutSecond: 5,
//	}, api.Catalog())
//
//	var info api.PoolInfo
//	err = c.Call(ctx, "pool", "read_pool", api.PoolNameParams{Name: "default_pool"}, &info, client.WithAuthToken(token))
//
//	f := c.Go(ctx, "account", "list_accounts", nil, &accounts)
//	err = f.Wait(ctx)
//
// The typed stubs in package api wrap these calls.
package client
