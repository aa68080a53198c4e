package node

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"sync"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/dustin/go-humanize"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("node")

// --------------------------------------------------------------------------
// Collaborator interfaces
// --------------------------------------------------------------------------

// Aggregate sums the nodes of a system, in total and per pool id
type Aggregate struct {
	Nodes   api.NodesInfo
	Storage api.StorageInfo
	Pools   map[string]PoolAggregate
}

// PoolAggregate sums the nodes of one pool
type PoolAggregate struct {
	Nodes   api.NodesInfo
	Storage api.StorageInfo
}

// Pool returns the aggregate of pool, zero values when it has no nodes
func (a *Aggregate) Pool(id string) PoolAggregate {
	if p, ok := a.Pools[id]; ok {
		return p
	}
	return PoolAggregate{Storage: api.NewStorageInfo()}
}

// Aggregator answers node queries keyed by system and pool
type Aggregator interface {
	AggregateByPool(ctx context.Context, system string, skipCloud bool) (*Aggregate, error)
}

// ObjectCounter counts the objects of a system per bucket id. The entry ""
// holds objects not attributed to any bucket.
type ObjectCounter interface {
	CountObjects(ctx context.Context, system string) (map[string]*big.Int, error)
}

// --------------------------------------------------------------------------
// Monitor
// --------------------------------------------------------------------------

// Report is the last known state of one storage node
type Report struct {
	Name    string
	System  string
	Pool    string
	Online  bool
	Issues  bool
	Cloud   bool
	Storage api.StorageInfo
}

// Monitor keeps node reports in memory and implements Aggregator,
// ObjectCounter and api.NodeService
type Monitor struct {
	store   *confstore.Store
	nodes   *xsync.MapOf[string, Report] // system/name -> report
	mu      sync.Mutex
	objects map[string]map[string]*big.Int
}

// NewMonitor creates a monitor. store may be nil, SyncMonitorToStore then
// has nothing to compare against.
func NewMonitor(store *confstore.Store) *Monitor {
	return &Monitor{
		store:   store,
		nodes:   xsync.NewMapOf[string, Report](),
		objects: map[string]map[string]*big.Int{},
	}
}

func nodeKey(system, name string) string {
	return system + "/" + name
}

// Report stores the state of a node, replacing an older report
func (m *Monitor) Report(r Report) {
	if r.Storage.Total == nil {
		r.Storage = api.NewStorageInfo()
	}
	m.nodes.Store(nodeKey(r.System, r.Name), r)
}

// Forget drops the report of a node
func (m *Monitor) Forget(system, name string) {
	m.nodes.Delete(nodeKey(system, name))
}

// Nodes returns the reports of a system ordered by name
func (m *Monitor) Nodes(system string) []Report {
	var out []Report
	m.nodes.Range(func(_ string, r Report) bool {
		if r.System == system {
			out = append(out, r)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AggregateByPool sums the reports of system
func (m *Monitor) AggregateByPool(ctx context.Context, system string, skipCloud bool) (*Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Internal, "node.AggregateByPool", err)
	}
	agg := &Aggregate{Storage: api.NewStorageInfo(), Pools: map[string]PoolAggregate{}}
	for _, r := range m.Nodes(system) {
		if skipCloud && r.Cloud {
			continue
		}
		p, ok := agg.Pools[r.Pool]
		if !ok {
			p = PoolAggregate{Storage: api.NewStorageInfo()}
		}
		count(&p.Nodes, r)
		p.Storage.Add(r.Storage)
		agg.Pools[r.Pool] = p

		count(&agg.Nodes, r)
		agg.Storage.Add(r.Storage)
	}
	return agg, nil
}

func count(n *api.NodesInfo, r Report) {
	n.Count++
	if r.Online {
		n.Online++
	}
	if r.Issues {
		n.HasIssues++
	}
}

// SetObjectCount sets the number of objects of bucket ("" for unattributed)
func (m *Monitor) SetObjectCount(system, bucket string, n *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[system] == nil {
		m.objects[system] = map[string]*big.Int{}
	}
	m.objects[system][bucket] = new(big.Int).Set(n)
}

// CountObjects returns copies of the object counts of system
func (m *Monitor) CountObjects(ctx context.Context, system string) (map[string]*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Internal, "node.CountObjects", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*big.Int, len(m.objects[system]))
	for b, n := range m.objects[system] {
		out[b] = new(big.Int).Set(n)
	}
	return out, nil
}

// SyncMonitorToStore drops reports of nodes whose pool no longer exists in
// the configuration of the calling system
func (m *Monitor) SyncMonitorToStore(ctx context.Context, _ *api.Empty) (api.Empty, error) {
	s := auth.FromContext(ctx)
	if s == nil || s.SystemID == "" || m.store == nil {
		return api.Empty{}, nil
	}
	d, err := m.store.Data()
	if err != nil {
		return api.Empty{}, err
	}
	dropped := 0
	capacity := new(big.Int)
	for _, r := range m.Nodes(s.SystemID) {
		if _, ok := d.Pool(r.Pool); ok {
			if r.Storage.Total != nil {
				capacity.Add(capacity, r.Storage.Total)
			}
			continue
		}
		m.Forget(r.System, r.Name)
		dropped++
	}
	log.Infof("sync_monitor_to_store %s: dropped %d nodes, %s capacity monitored", s.SystemID, dropped, humanize.BigBytes(capacity))
	return api.Empty{}, nil
}

// CollectDiagnostics returns the last report of a node as JSON
func (m *Monitor) CollectDiagnostics(ctx context.Context, system, name string) ([]byte, error) {
	const op = "node.CollectDiagnostics"
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Internal, op, err)
	}
	r, ok := m.nodes.Load(nodeKey(system, name))
	if !ok {
		return nil, errs.New(errs.NotFound, op, "no such node %s", name)
	}
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.Internal, op, err)
	}
	return raw, nil
}
