package agents

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/services/node"
	"github.com/dustin/go-humanize"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("agents")

// Agent is a storage agent hosted inside the control plane
type Agent struct {
	Name         string
	System       string
	Pool         string
	Demo         bool
	StorageLimit int64
}

// Service implements api.HostedAgentsService. Agents are not real storage
// processes: they report themselves as online nodes to the node monitor.
type Service struct {
	store   *confstore.Store
	monitor *node.Monitor

	mu     sync.Mutex
	agents []Agent
}

// New creates the hosted_agents service
func New(store *confstore.Store, monitor *node.Monitor) *Service {
	return &Service{store: store, monitor: monitor}
}

// CreateAgent starts p.Scale agents in the calling system. Demo agents join
// the demo pool, the others the default pool.
func (s *Service) CreateAgent(ctx context.Context, p *api.CreateAgentParams) (api.Empty, error) {
	const op = "hosted_agents.create_agent"
	session := auth.FromContext(ctx)
	if session == nil || session.SystemID == "" {
		return api.Empty{}, errs.New(errs.Auth, op, "no system in session")
	}
	d, err := s.store.Data()
	if err != nil {
		return api.Empty{}, err
	}
	poolName := model.DefaultPoolName
	if p.Demo {
		poolName = model.DemoPoolName
	}
	pool, ok := d.PoolByName(session.SystemID, poolName)
	if !ok {
		return api.Empty{}, errs.New(errs.NotFound, op, "system has no pool %s", poolName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	first := len(s.agents)
	for i := 0; i < p.Scale; i++ {
		a := Agent{
			Name:         fmt.Sprintf("%s-agent-%d", p.Name, first+i),
			System:       session.SystemID,
			Pool:         pool.ID,
			Demo:         p.Demo,
			StorageLimit: p.StorageLimit,
		}
		s.agents = append(s.agents, a)
		if s.monitor != nil {
			storage := api.NewStorageInfo()
			storage.Total.SetInt64(a.StorageLimit)
			storage.Free.SetInt64(a.StorageLimit)
			s.monitor.Report(node.Report{Name: a.Name, System: a.System, Pool: a.Pool, Online: true, Storage: storage})
		}
	}
	log.Infof("%s: started %d agents in pool %s (%s each)", op, p.Scale, poolName, humanize.BigBytes(big.NewInt(p.StorageLimit)))
	return api.Empty{}, nil
}

// Agents returns the agents of system
func (s *Service) Agents(system string) []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Agent
	for _, a := range s.agents {
		if a.System == system {
			out = append(out, a)
		}
	}
	return out
}
