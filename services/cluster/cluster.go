package cluster

import (
	"context"
	"time"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("cluster")

// --------------------------------------------------------------------------
// cluster_server
// --------------------------------------------------------------------------

// Server implements api.ClusterServerService. Changes are recorded on the
// cluster member documents, the member owning the document applies them to
// its host.
type Server struct {
	store *confstore.Store
}

// NewServer creates the cluster_server service
func NewServer(store *confstore.Store) *Server {
	return &Server{store: store}
}

// targets returns the members addressed by secret: the one owning it, this
// server when it is empty
func (s *Server) targets(d *confstore.Data, op, secret string) ([]*model.Cluster, error) {
	if secret == "" {
		secret = s.store.ServerSecret()
	}
	c, ok := d.ClusterBySecret(secret)
	if !ok {
		return nil, errs.New(errs.NotFound, op, "no cluster member owns the given secret")
	}
	return []*model.Cluster{c}, nil
}

func (s *Server) patchMembers(ctx context.Context, op, secret string, all bool, fields map[string]interface{}) error {
	_, err := s.store.Update(ctx, func(d *confstore.Data) (confstore.Changes, error) {
		var members []*model.Cluster
		if all {
			members = d.Clusters()
		} else {
			var err error
			if members, err = s.targets(d, op, secret); err != nil {
				return confstore.Changes{}, err
			}
		}
		patches := make([]confstore.Patch, 0, len(members))
		for _, c := range members {
			patches = append(patches, confstore.NewPatch(c.ID, fields))
		}
		return confstore.Changes{Update: map[model.Collection][]confstore.Patch{model.Clusters: patches}}, nil
	})
	return err
}

func (s *Server) UpdateTimeConfig(ctx context.Context, p *api.TimeConfig) (api.Empty, error) {
	const op = "cluster_server.update_time_config"
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return api.Empty{}, errs.New(errs.Validation, op, "unknown timezone %q", p.Timezone)
	}
	err := s.patchMembers(ctx, op, p.TargetSecret, false, map[string]interface{}{
		"ntp": map[string]interface{}{"server": p.NTPServer, "timezone": p.Timezone},
	})
	if err == nil {
		log.Infof("%s: timezone %s, ntp %q", op, p.Timezone, p.NTPServer)
	}
	return api.Empty{}, err
}

func (s *Server) UpdateDNSServers(ctx context.Context, p *api.DNSServersParams) (api.Empty, error) {
	const op = "cluster_server.update_dns_servers"
	servers := make([]interface{}, len(p.DNSServers))
	for i, srv := range p.DNSServers {
		servers[i] = srv
	}
	err := s.patchMembers(ctx, op, p.TargetSecret, false, map[string]interface{}{"dns_servers": servers})
	return api.Empty{}, err
}

// SetDebugLevel sets the level of the addressed member, of all members when
// no secret is given
func (s *Server) SetDebugLevel(ctx context.Context, p *api.DebugLevelParams) (api.Empty, error) {
	const op = "cluster_server.set_debug_level"
	err := s.patchMembers(ctx, op, p.TargetSecret, p.TargetSecret == "", map[string]interface{}{"debug_level": p.Level})
	if err == nil {
		log.Infof("%s: debug level %d", op, p.Level)
	}
	return api.Empty{}, err
}

// --------------------------------------------------------------------------
// cluster_internal
// --------------------------------------------------------------------------

// Internal implements api.ClusterInternalService
type Internal struct {
	store *confstore.Store
}

// NewInternal creates the cluster_internal service
func NewInternal(store *confstore.Store) *Internal {
	return &Internal{store: store}
}

// LoadSystemStore reloads the store when a peer committed a newer revision
func (i *Internal) LoadSystemStore(ctx context.Context, p *api.LoadSystemStoreParams) (api.Empty, error) {
	return api.Empty{}, i.store.ReloadIfBehind(ctx, p.Revision)
}
