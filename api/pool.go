package api

import (
	"context"

	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/ValentinKolb/dCtl/rpc/server"
)

// Pool methods
const (
	MethodCreateNodesPool      = "create_nodes_pool"
	MethodCreateCloudPool      = "create_cloud_pool"
	MethodUpdatePool           = "update_pool"
	MethodListPoolNodes        = "list_pool_nodes"
	MethodReadPool             = "read_pool"
	MethodDeletePool           = "delete_pool"
	MethodAssignNodesToPool    = "assign_nodes_to_pool"
	MethodGetAssociatedBuckets = "get_associated_buckets"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// PoolName selects a pool of the calling system
type PoolName struct {
	Name string `json:"name"`
}

// PoolDefinition is a node pool with its members
type PoolDefinition struct {
	Name  string               `json:"name"`
	Nodes []model.NodeIdentity `json:"nodes"`
}

// CreateCloudPoolParams creates a pool backed by a cloud target
type CreateCloudPoolParams struct {
	Name         string `json:"name"`
	Connection   string `json:"connection"`
	TargetBucket string `json:"target_bucket"`
}

// UpdatePoolParams renames a pool
type UpdatePoolParams struct {
	Name    string `json:"name"`
	NewName string `json:"new_name,omitempty"`
}

// CloudInfo is the cloud target of a pool
type CloudInfo struct {
	Endpoint     string `json:"endpoint"`
	TargetBucket string `json:"target_bucket"`
}

// PoolInfo is the extended view of a pool
type PoolInfo struct {
	Name        string      `json:"name"`
	Nodes       NodesInfo   `json:"nodes"`
	Storage     StorageInfo `json:"storage"`
	Undeletable string      `json:"undeletable,omitempty"`
	DemoPool    bool        `json:"demo_pool,omitempty"`
	CloudInfo   *CloudInfo  `json:"cloud_info,omitempty"`
}

// --------------------------------------------------------------------------
// Service
// --------------------------------------------------------------------------

// PoolService manages the pools of the calling system. All methods require
// the admin role on the system.
type PoolService interface {
	CreateNodesPool(ctx context.Context, p *PoolDefinition) (Empty, error)
	CreateCloudPool(ctx context.Context, p *CreateCloudPoolParams) (Empty, error)
	UpdatePool(ctx context.Context, p *UpdatePoolParams) (Empty, error)
	ListPoolNodes(ctx context.Context, p *PoolName) (*PoolDefinition, error)
	ReadPool(ctx context.Context, p *PoolName) (*PoolInfo, error)
	DeletePool(ctx context.Context, p *PoolName) (Empty, error)
	AssignNodesToPool(ctx context.Context, p *PoolDefinition) (Empty, error)
	GetAssociatedBuckets(ctx context.Context, p *PoolName) ([]string, error)
}

// NewPoolServiceDesc binds impl to the pool service
func NewPoolServiceDesc(impl PoolService) server.ServiceDesc {
	return server.ServiceDesc{
		Name: ServicePool,
		Methods: []server.MethodDesc{
			method(MethodCreateNodesPool, auth.SystemAdmin, impl.CreateNodesPool),
			method(MethodCreateCloudPool, auth.SystemAdmin, impl.CreateCloudPool),
			method(MethodUpdatePool, auth.SystemAdmin, impl.UpdatePool),
			method(MethodListPoolNodes, auth.SystemAdmin, impl.ListPoolNodes),
			method(MethodReadPool, auth.SystemAdmin, impl.ReadPool),
			method(MethodDeletePool, auth.SystemAdmin, impl.DeletePool),
			method(MethodAssignNodesToPool, auth.SystemAdmin, impl.AssignNodesToPool),
			method(MethodGetAssociatedBuckets, auth.SystemAdmin, impl.GetAssociatedBuckets),
		},
	}
}

// PoolClient is the typed client of the pool service
type PoolClient struct {
	c *client.Client
}

// NewPoolClient wraps c
func NewPoolClient(c *client.Client) *PoolClient {
	return &PoolClient{c: c}
}

func (p *PoolClient) CreateNodesPool(ctx context.Context, params *PoolDefinition, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, p.c, ServicePool, MethodCreateNodesPool, params, opts)
	return err
}

func (p *PoolClient) CreateCloudPool(ctx context.Context, params *CreateCloudPoolParams, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, p.c, ServicePool, MethodCreateCloudPool, params, opts)
	return err
}

func (p *PoolClient) UpdatePool(ctx context.Context, params *UpdatePoolParams, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, p.c, ServicePool, MethodUpdatePool, params, opts)
	return err
}

func (p *PoolClient) ListPoolNodes(ctx context.Context, name string, opts ...client.CallOption) (*PoolDefinition, error) {
	return call[*PoolDefinition](ctx, p.c, ServicePool, MethodListPoolNodes, &PoolName{Name: name}, opts)
}

func (p *PoolClient) ReadPool(ctx context.Context, name string, opts ...client.CallOption) (*PoolInfo, error) {
	return call[*PoolInfo](ctx, p.c, ServicePool, MethodReadPool, &PoolName{Name: name}, opts)
}

func (p *PoolClient) DeletePool(ctx context.Context, name string, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, p.c, ServicePool, MethodDeletePool, &PoolName{Name: name}, opts)
	return err
}

func (p *PoolClient) AssignNodesToPool(ctx context.Context, params *PoolDefinition, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, p.c, ServicePool, MethodAssignNodesToPool, params, opts)
	return err
}

func (p *PoolClient) GetAssociatedBuckets(ctx context.Context, name string, opts ...client.CallOption) ([]string, error) {
	return call[[]string](ctx, p.c, ServicePool, MethodGetAssociatedBuckets, &PoolName{Name: name}, opts)
}
