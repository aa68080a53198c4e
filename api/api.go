package api

import (
	"context"
	"sync"

	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/ValentinKolb/dCtl/rpc/schema"
	"github.com/ValentinKolb/dCtl/rpc/server"
)

// Service names
const (
	ServicePool            = "pool"
	ServiceSystem          = "system"
	ServiceAccount         = "account"
	ServiceClusterServer   = "cluster_server"
	ServiceClusterInternal = "cluster_internal"
	ServiceHostedAgents    = "hosted_agents"
	ServiceNode            = "node"
)

// Empty is the params or reply of methods that carry none
type Empty struct{}

// --------------------------------------------------------------------------
// Catalog
// --------------------------------------------------------------------------

var (
	catalogOnce sync.Once
	catalog     *schema.Catalog
)

// Catalog returns the schema catalog of every service in this package. The
// schemas are static, a compile error is a programming error and panics.
func Catalog() *schema.Catalog {
	catalogOnce.Do(func() {
		catalog = schema.NewCatalog()
		for _, m := range methodSchemas {
			if err := catalog.Add(m.service, m.method, m.params, m.reply); err != nil {
				panic(err)
			}
		}
	})
	return catalog
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// method wraps a typed implementation into a server.MethodDesc
func method[P any, R any](name string, req auth.Requirement, fn func(context.Context, *P) (R, error)) server.MethodDesc {
	return server.MethodDesc{
		Name: name,
		Auth: req,
		Handler: func(ctx context.Context, r *server.Request) (interface{}, error) {
			p := new(P)
			if err := r.Bind(p); err != nil {
				return nil, err
			}
			return fn(ctx, p)
		},
	}
}

// call is the typed counterpart of client.Call
func call[R any](ctx context.Context, c *client.Client, service, name string, params interface{}, opts []client.CallOption) (R, error) {
	var reply R
	err := c.Call(ctx, service, name, params, &reply, opts...)
	return reply, err
}

// Register registers all descs on r, stopping at the first error
func Register(r *server.Registry, descs ...server.ServiceDesc) error {
	for _, d := range descs {
		if err := r.RegisterService(d); err != nil {
			return err
		}
	}
	return nil
}
