package api

import (
	"context"

	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/ValentinKolb/dCtl/rpc/server"
)

// --------------------------------------------------------------------------
// hosted_agents
// --------------------------------------------------------------------------

const MethodCreateAgent = "create_agent"

// CreateAgentParams starts Scale agents hosted by the control plane
type CreateAgentParams struct {
	Name         string            `json:"name"`
	Demo         bool              `json:"demo,omitempty"`
	AccessKeys   []model.AccessKey `json:"access_keys,omitempty"`
	Scale        int               `json:"scale"`
	StorageLimit int64             `json:"storage_limit,omitempty"`
}

// HostedAgentsService runs storage agents inside the control plane
type HostedAgentsService interface {
	CreateAgent(ctx context.Context, p *CreateAgentParams) (Empty, error)
}

// NewHostedAgentsServiceDesc binds impl to the hosted_agents service
func NewHostedAgentsServiceDesc(impl HostedAgentsService) server.ServiceDesc {
	return server.ServiceDesc{
		Name: ServiceHostedAgents,
		Methods: []server.MethodDesc{
			method(MethodCreateAgent, auth.SystemAdmin, impl.CreateAgent),
		},
	}
}

// HostedAgentsClient is the typed client of the hosted_agents service
type HostedAgentsClient struct {
	c *client.Client
}

// NewHostedAgentsClient wraps c
func NewHostedAgentsClient(c *client.Client) *HostedAgentsClient {
	return &HostedAgentsClient{c: c}
}

func (h *HostedAgentsClient) CreateAgent(ctx context.Context, params *CreateAgentParams, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, h.c, ServiceHostedAgents, MethodCreateAgent, params, opts)
	return err
}

// --------------------------------------------------------------------------
// node
// --------------------------------------------------------------------------

const MethodSyncMonitorToStore = "sync_monitor_to_store"

// NodeService is the node monitor
type NodeService interface {
	SyncMonitorToStore(ctx context.Context, p *Empty) (Empty, error)
}

// NewNodeServiceDesc binds impl to the node service
func NewNodeServiceDesc(impl NodeService) server.ServiceDesc {
	return server.ServiceDesc{
		Name: ServiceNode,
		Methods: []server.MethodDesc{
			method(MethodSyncMonitorToStore, auth.System, impl.SyncMonitorToStore),
		},
	}
}

// NodeClient is the typed client of the node service
type NodeClient struct {
	c *client.Client
}

// NewNodeClient wraps c
func NewNodeClient(c *client.Client) *NodeClient {
	return &NodeClient{c: c}
}

func (n *NodeClient) SyncMonitorToStore(ctx context.Context, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, n.c, ServiceNode, MethodSyncMonitorToStore, nil, opts)
	return err
}
