package api

import (
	"context"

	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/ValentinKolb/dCtl/rpc/server"
)

// Cluster methods
const (
	MethodUpdateTimeConfig = "update_time_config"
	MethodUpdateDNSServers = "update_dns_servers"
	MethodSetDebugLevel    = "set_debug_level"
	MethodLoadSystemStore  = "load_system_store"
)

// --------------------------------------------------------------------------
// cluster_server
// --------------------------------------------------------------------------

// TimeConfig sets the clock of the member owning TargetSecret
type TimeConfig struct {
	TargetSecret string `json:"target_secret,omitempty"`
	Timezone     string `json:"timezone"`
	NTPServer    string `json:"ntp_server,omitempty"`
	Epoch        int64  `json:"epoch,omitempty"`
}

type DNSServersParams struct {
	TargetSecret string   `json:"target_secret,omitempty"`
	DNSServers   []string `json:"dns_servers"`
}

// DebugLevelParams sets the debug level of one member, all members when
// TargetSecret is empty
type DebugLevelParams struct {
	TargetSecret string `json:"target_secret,omitempty"`
	Level        int    `json:"level"`
}

// ClusterServerService configures the members of the control plane
type ClusterServerService interface {
	UpdateTimeConfig(ctx context.Context, p *TimeConfig) (Empty, error)
	UpdateDNSServers(ctx context.Context, p *DNSServersParams) (Empty, error)
	SetDebugLevel(ctx context.Context, p *DebugLevelParams) (Empty, error)
}

// NewClusterServerServiceDesc binds impl to the cluster_server service
func NewClusterServerServiceDesc(impl ClusterServerService) server.ServiceDesc {
	return server.ServiceDesc{
		Name: ServiceClusterServer,
		Methods: []server.MethodDesc{
			method(MethodUpdateTimeConfig, auth.SystemAdmin, impl.UpdateTimeConfig),
			method(MethodUpdateDNSServers, auth.SystemAdmin, impl.UpdateDNSServers),
			method(MethodSetDebugLevel, auth.SystemAdmin, impl.SetDebugLevel),
		},
	}
}

// ClusterServerClient is the typed client of the cluster_server service
type ClusterServerClient struct {
	c *client.Client
}

// NewClusterServerClient wraps c
func NewClusterServerClient(c *client.Client) *ClusterServerClient {
	return &ClusterServerClient{c: c}
}

func (s *ClusterServerClient) UpdateTimeConfig(ctx context.Context, params *TimeConfig, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceClusterServer, MethodUpdateTimeConfig, params, opts)
	return err
}

func (s *ClusterServerClient) UpdateDNSServers(ctx context.Context, params *DNSServersParams, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceClusterServer, MethodUpdateDNSServers, params, opts)
	return err
}

func (s *ClusterServerClient) SetDebugLevel(ctx context.Context, params *DebugLevelParams, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceClusterServer, MethodSetDebugLevel, params, opts)
	return err
}

// --------------------------------------------------------------------------
// cluster_internal
// --------------------------------------------------------------------------

// LoadSystemStoreParams announces a committed revision to a peer
type LoadSystemStoreParams struct {
	Revision uint64 `json:"revision"`
}

// ClusterInternalService is called between control plane members
type ClusterInternalService interface {
	LoadSystemStore(ctx context.Context, p *LoadSystemStoreParams) (Empty, error)
}

// NewClusterInternalServiceDesc binds impl to the cluster_internal service
func NewClusterInternalServiceDesc(impl ClusterInternalService) server.ServiceDesc {
	return server.ServiceDesc{
		Name: ServiceClusterInternal,
		Methods: []server.MethodDesc{
			// only triggers a reload from the shared durable store
			method(MethodLoadSystemStore, auth.None, impl.LoadSystemStore),
		},
	}
}

// ClusterInternalClient is the typed client of the cluster_internal service
type ClusterInternalClient struct {
	c *client.Client
}

// NewClusterInternalClient wraps c
func NewClusterInternalClient(c *client.Client) *ClusterInternalClient {
	return &ClusterInternalClient{c: c}
}

func (s *ClusterInternalClient) LoadSystemStore(ctx context.Context, revision uint64, opts ...client.CallOption) error {
	_, err := call[Empty](ctx, s.c, ServiceClusterInternal, MethodLoadSystemStore, &LoadSystemStoreParams{Revision: revision}, opts)
	return err
}
