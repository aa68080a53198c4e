package pool

import (
	"context"
	"sort"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/services/audit"
	"github.com/ValentinKolb/dCtl/services/node"
	"github.com/dustin/go-humanize"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("pool")

// Service implements api.PoolService on the config store
type Service struct {
	store *confstore.Store
	nodes node.Aggregator
	audit audit.Sink
}

// New creates the pool service. sink may be nil.
func New(store *confstore.Store, nodes node.Aggregator, sink audit.Sink) *Service {
	return &Service{store: store, nodes: nodes, audit: sink}
}

// systemOf returns the system of the calling session
func systemOf(ctx context.Context, op string) (string, error) {
	s := auth.FromContext(ctx)
	if s == nil || s.SystemID == "" {
		return "", errs.New(errs.Auth, op, "token is not bound to a system")
	}
	return s.SystemID, nil
}

func (s *Service) find(ctx context.Context, op, name string) (*confstore.Data, *model.Pool, error) {
	system, err := systemOf(ctx, op)
	if err != nil {
		return nil, nil, err
	}
	d, err := s.store.Data()
	if err != nil {
		return nil, nil, err
	}
	p, ok := d.PoolByName(system, name)
	if !ok {
		return nil, nil, errs.New(errs.NotFound, op, "no such pool: %s", name)
	}
	return d, p, nil
}

func (s *Service) record(ctx context.Context, event string, p *model.Pool, desc ...string) {
	if s.audit == nil {
		return
	}
	ev := api.ActivityEvent{
		Event:  event,
		System: p.System,
		Desc:   desc,
		Pool:   &api.EntityRef{ID: p.ID, Name: p.Name},
	}
	if err := s.audit.Record(ctx, ev); err != nil {
		log.Warningf("failed to record %s: %v", event, err)
	}
}

// --------------------------------------------------------------------------
// Create, update, delete
// --------------------------------------------------------------------------

func (s *Service) CreateNodesPool(ctx context.Context, p *api.PoolDefinition) (api.Empty, error) {
	const op = "pool.create_nodes_pool"
	system, err := systemOf(ctx, op)
	if err != nil {
		return api.Empty{}, err
	}
	pool := model.NewPoolDefaults(s.store.GenerateID(), p.Name, system)
	pool.Nodes = append(pool.Nodes, p.Nodes...)

	_, err = s.store.Update(ctx, func(d *confstore.Data) (confstore.Changes, error) {
		ch := confstore.Changes{Insert: map[model.Collection][]model.Document{model.Pools: {pool}}}
		if moves := detach(d, system, pool.ID, p.Nodes); len(moves) > 0 {
			ch.Update = map[model.Collection][]confstore.Patch{model.Pools: moves}
		}
		return ch, nil
	})
	if err != nil {
		return api.Empty{}, err
	}
	s.record(ctx, "pool.create", pool, "Pool "+pool.Name+" was created")
	return api.Empty{}, nil
}

func (s *Service) CreateCloudPool(ctx context.Context, p *api.CreateCloudPoolParams) (api.Empty, error) {
	const op = "pool.create_cloud_pool"
	system, err := systemOf(ctx, op)
	if err != nil {
		return api.Empty{}, err
	}
	pool := model.NewPoolDefaults(s.store.GenerateID(), p.Name, system)
	pool.Nodes = nil
	pool.CloudPoolInfo = &model.CloudPoolInfo{
		Endpoint:     p.Connection,
		TargetBucket: p.TargetBucket,
		Connection:   p.Connection,
	}
	if _, err := s.store.MakeChanges(ctx, confstore.Changes{Insert: map[model.Collection][]model.Document{model.Pools: {pool}}}); err != nil {
		return api.Empty{}, err
	}
	s.record(ctx, "pool.create", pool, "Cloud pool "+pool.Name+" was created on "+p.TargetBucket)
	return api.Empty{}, nil
}

func (s *Service) UpdatePool(ctx context.Context, p *api.UpdatePoolParams) (api.Empty, error) {
	const op = "pool.update_pool"
	if p.NewName == "" || p.NewName == p.Name {
		return api.Empty{}, nil
	}
	_, pool, err := s.find(ctx, op, p.Name)
	if err != nil {
		return api.Empty{}, err
	}
	if pool.DemoPool || pool.Name == model.DefaultPoolName {
		return api.Empty{}, errs.New(errs.Validation, op, "pool %s can not be renamed", pool.Name)
	}
	if _, err := s.store.MakeChanges(ctx, confstore.Changes{Update: map[model.Collection][]confstore.Patch{
		model.Pools: {confstore.NewPatch(pool.ID, map[string]interface{}{"name": p.NewName})},
	}}); err != nil {
		return api.Empty{}, err
	}
	return api.Empty{}, nil
}

// DeletePool removes an empty pool no tier uses. The check and the removal
// run against the same snapshot, a concurrent commit makes the store retry.
func (s *Service) DeletePool(ctx context.Context, p *api.PoolName) (api.Empty, error) {
	const op = "pool.delete_pool"
	system, err := systemOf(ctx, op)
	if err != nil {
		return api.Empty{}, err
	}
	var pool *model.Pool
	_, err = s.store.Update(ctx, func(d *confstore.Data) (confstore.Changes, error) {
		var ok bool
		if pool, ok = d.PoolByName(system, p.Name); !ok {
			return confstore.Changes{}, errs.New(errs.NotFound, op, "no such pool: %s", p.Name)
		}
		if reason := Undeletable(d, pool); reason != "" {
			return confstore.Changes{}, errs.New(errs.InvalidOperation, op, "pool %s can not be deleted: %s", pool.Name, reason)
		}
		return confstore.Changes{Remove: map[model.Collection][]string{model.Pools: {pool.ID}}}, nil
	})
	if err != nil {
		return api.Empty{}, err
	}
	s.record(ctx, "pool.delete", pool, "Pool "+pool.Name+" was deleted")
	return api.Empty{}, nil
}

// AssignNodesToPool moves nodes from their current pools into the named one
// in a single batch
func (s *Service) AssignNodesToPool(ctx context.Context, p *api.PoolDefinition) (api.Empty, error) {
	const op = "pool.assign_nodes_to_pool"
	system, err := systemOf(ctx, op)
	if err != nil {
		return api.Empty{}, err
	}
	var target *model.Pool
	_, err = s.store.Update(ctx, func(d *confstore.Data) (confstore.Changes, error) {
		var ok bool
		if target, ok = d.PoolByName(system, p.Name); !ok {
			return confstore.Changes{}, errs.New(errs.NotFound, op, "no such pool: %s", p.Name)
		}
		if target.IsCloud() {
			return confstore.Changes{}, errs.New(errs.Validation, op, "nodes can not be assigned to cloud pool %s", p.Name)
		}
		patches := detach(d, system, target.ID, p.Nodes)
		nodes := append([]model.NodeIdentity{}, target.Nodes...)
		for _, n := range p.Nodes {
			if indexOf(nodes, n) < 0 {
				nodes = append(nodes, n)
			}
		}
		patches = append(patches, confstore.NewPatch(target.ID, map[string]interface{}{"nodes": nodes}))
		return confstore.Changes{Update: map[model.Collection][]confstore.Patch{model.Pools: patches}}, nil
	})
	if err != nil {
		return api.Empty{}, err
	}
	s.record(ctx, "pool.assign_nodes", target, humanize.Comma(int64(len(p.Nodes)))+" nodes were assigned to pool "+target.Name)
	return api.Empty{}, nil
}

// detach removes nodes from every pool of system except keep
func detach(d *confstore.Data, system, keep string, nodes []model.NodeIdentity) []confstore.Patch {
	var patches []confstore.Patch
	for _, other := range d.PoolsOfSystem(system) {
		if other.ID == keep {
			continue
		}
		remaining := make([]model.NodeIdentity, 0, len(other.Nodes))
		for _, n := range other.Nodes {
			if indexOf(nodes, n) < 0 {
				remaining = append(remaining, n)
			}
		}
		if len(remaining) != len(other.Nodes) {
			patches = append(patches, confstore.NewPatch(other.ID, map[string]interface{}{"nodes": remaining}))
		}
	}
	return patches
}

func indexOf(nodes []model.NodeIdentity, n model.NodeIdentity) int {
	for i, o := range nodes {
		if (n.ID != "" && o.ID == n.ID) || (n.Name != "" && o.Name == n.Name) {
			return i
		}
	}
	return -1
}

// --------------------------------------------------------------------------
// Read
// --------------------------------------------------------------------------

func (s *Service) ListPoolNodes(ctx context.Context, p *api.PoolName) (*api.PoolDefinition, error) {
	_, pool, err := s.find(ctx, "pool.list_pool_nodes", p.Name)
	if err != nil {
		return nil, err
	}
	nodes := append([]model.NodeIdentity{}, pool.Nodes...)
	return &api.PoolDefinition{Name: pool.Name, Nodes: nodes}, nil
}

func (s *Service) ReadPool(ctx context.Context, p *api.PoolName) (*api.PoolInfo, error) {
	d, pool, err := s.find(ctx, "pool.read_pool", p.Name)
	if err != nil {
		return nil, err
	}
	agg, err := s.nodes.AggregateByPool(ctx, pool.System, false)
	if err != nil {
		return nil, err
	}
	info := Info(d, pool, agg.Pool(pool.ID))
	return &info, nil
}

func (s *Service) GetAssociatedBuckets(ctx context.Context, p *api.PoolName) ([]string, error) {
	d, pool, err := s.find(ctx, "pool.get_associated_buckets", p.Name)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, b := range d.BucketsUsingPool(pool) {
		names = append(names, b.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Info projects a pool and its node aggregate
func Info(d *confstore.Data, p *model.Pool, agg node.PoolAggregate) api.PoolInfo {
	info := api.PoolInfo{
		Name:        p.Name,
		Nodes:       agg.Nodes,
		Storage:     agg.Storage,
		Undeletable: Undeletable(d, p),
		DemoPool:    p.DemoPool,
	}
	if info.Storage.Total == nil {
		info.Storage = api.NewStorageInfo()
	}
	if c := p.CloudPoolInfo; c != nil {
		info.CloudInfo = &api.CloudInfo{Endpoint: c.Endpoint, TargetBucket: c.TargetBucket}
	}
	return info
}

// Undeletable returns why p can not be deleted, "" if it can
func Undeletable(d *confstore.Data, p *model.Pool) string {
	if p.DemoPool || p.Name == model.DefaultPoolName {
		return api.UndeletableSystemEntity
	}
	if len(p.Nodes) > 0 {
		return api.UndeletableNotEmpty
	}
	for _, t := range d.TiersOfSystem(p.System) {
		for _, id := range t.Pools {
			if id == p.ID {
				return api.UndeletableInUse
			}
		}
	}
	return ""
}
