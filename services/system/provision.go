package system

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/lib/saga"
	"github.com/ValentinKolb/dCtl/rpc/client"
)

// provisioning is the state shared by the steps of create_system
type provisioning struct {
	params *api.CreateSystemParams

	accountID      string
	system         *model.System
	changes        confstore.Changes
	allowedBuckets []string
	secret         string
	token          string
}

// CreateSystem provisions a system, its default resources and the owner
// account. Failures after the graph was committed leave the system in place
// and are reported as FATAL_PARTIAL_FAILURE.
func (s *Service) CreateSystem(ctx context.Context, p *api.CreateSystemParams) (*api.TokenReply, error) {
	state := &provisioning{params: p}
	if err := s.provision.Run(ctx, state); err != nil {
		return nil, err
	}
	return &api.TokenReply{Token: state.token}, nil
}

func (s *Service) newProvisioning() *saga.Runner[provisioning] {
	return &saga.Runner[provisioning]{
		Name:        "system.create_system",
		StepTimeout: s.cfg.StepTimeout,
		Orphan: func(st *provisioning) string {
			if st.system == nil {
				return "nothing"
			}
			return fmt.Sprintf("system %s (%s)", st.system.Name, st.system.ID)
		},
		Steps: []saga.Step[provisioning]{
			{Name: "check_limit", Run: s.checkLimit},
			{
				Name: "activate_license",
				Skip: func(*provisioning) bool { return s.cfg.DevMode || s.license == nil },
				Run:  s.activateLicense,
			},
			{Name: "build_graph", Run: s.buildGraph},
			{Name: "commit", Run: s.commitGraph, Commits: true},
			{Name: "create_owner", Run: s.createOwner},
			{
				Name: "create_demo_agents",
				Skip: func(*provisioning) bool { return !s.cfg.DemoMode },
				Run:  s.createDemoAgents,
			},
			{
				Name: "update_time_config",
				Skip: func(st *provisioning) bool { return st.params.TimeConfig == nil },
				Run:  s.updateTimeConfig,
			},
			{
				Name: "update_dns_servers",
				Skip: func(st *provisioning) bool { return len(st.params.DNSServers) == 0 },
				Run:  s.updateDNSServers,
			},
			{
				Name: "update_hostname",
				Skip: func(st *provisioning) bool { return st.params.DNSName == "" },
				Run:  s.updateHostname,
			},
		},
	}
}

// --------------------------------------------------------------------------
// Steps before the commit point
// --------------------------------------------------------------------------

func (s *Service) checkLimit(_ context.Context, _ *provisioning) error {
	d, err := s.store.Data()
	if err != nil {
		return err
	}
	if n := len(d.Systems()); s.cfg.MaxSystems > 0 && n > s.cfg.MaxSystems {
		return errs.New(errs.ResourceLimit, "system.create_system", "too many created systems (%d, limit %d)", n, s.cfg.MaxSystems)
	}
	return nil
}

func (s *Service) activateLicense(ctx context.Context, st *provisioning) error {
	p := st.params
	_, err := s.license.Call(ctx, CommandPerformActivation, ActivationRequest{
		Code:  p.ActivationCode,
		Email: p.Email,
		SystemInfo: map[string]interface{}{
			"name":        p.Name,
			"email":       p.Email,
			"dns_name":    p.DNSName,
			"dns_servers": p.DNSServers,
		},
	})
	return err
}

// buildGraph creates the system with its default pool, tier, policy and
// bucket, plus the demo set in demo mode. Tier and policy names carry a
// timestamp suffix.
func (s *Service) buildGraph(_ context.Context, st *provisioning) error {
	st.accountID = s.store.GenerateID()
	st.system = model.NewSystemDefaults(s.store.GenerateID(), st.params.Name, st.accountID)
	now := s.clock.Now()

	ch := confstore.Changes{Insert: map[model.Collection][]model.Document{
		model.Systems: {st.system},
	}}
	addSet := func(poolName, bucketName string, demo bool) {
		suffixed := model.SuffixedName(bucketName, now)
		pool := model.NewPoolDefaults(s.store.GenerateID(), poolName, st.system.ID)
		tier := model.NewTierDefaults(s.store.GenerateID(), suffixed, st.system.ID, []string{pool.ID})
		policy := model.NewPolicyDefaults(s.store.GenerateID(), suffixed, st.system.ID, []model.TierOrder{{Tier: tier.ID, Order: 0}})
		bucket := model.NewBucketDefaults(s.store.GenerateID(), bucketName, st.system.ID, policy.ID)
		pool.DemoPool = demo
		bucket.DemoBucket = demo

		ch.Insert[model.Pools] = append(ch.Insert[model.Pools], pool)
		ch.Insert[model.Tiers] = append(ch.Insert[model.Tiers], tier)
		ch.Insert[model.TieringPolicies] = append(ch.Insert[model.TieringPolicies], policy)
		ch.Insert[model.Buckets] = append(ch.Insert[model.Buckets], bucket)
		st.allowedBuckets = append(st.allowedBuckets, bucket.ID)
	}
	addSet(model.DefaultPoolName, model.DefaultBucketName, false)
	if s.cfg.DemoMode {
		addSet(model.DemoPoolName, model.DemoBucketName, true)
	}

	st.secret = s.store.ServerSecret()
	if _, ok := s.store.LocalCluster(); !ok {
		ch.Insert[model.Clusters] = []model.Document{
			model.NewClusterDefaults(s.store.GenerateID(), st.secret, s.cfg.ServerAddress),
		}
	}
	st.changes = ch
	return nil
}

// --------------------------------------------------------------------------
// Commit point
// --------------------------------------------------------------------------

func (s *Service) commitGraph(ctx context.Context, st *provisioning) error {
	rev, err := s.store.MakeChanges(ctx, st.changes)
	if err != nil {
		return err
	}
	log.Infof("created system %s (%s) at revision %d", st.system.Name, st.system.ID, rev)
	s.record(ctx, api.ActivityEvent{
		Event:  "conf.create_system",
		System: st.system.ID,
		Actor:  &api.AccountRef{Name: st.params.Name, Email: st.params.Email},
		Desc:   []string{fmt.Sprintf("%s was created by %s", st.system.Name, st.params.Email)},
	})
	return nil
}

// --------------------------------------------------------------------------
// Steps after the commit point
// --------------------------------------------------------------------------

func (s *Service) createOwner(ctx context.Context, st *provisioning) error {
	p := st.params
	reply, err := api.NewAccountClient(s.client).CreateAccount(ctx, &api.CreateAccountParams{
		Name:       p.Name,
		Email:      p.Email,
		Password:   p.Password,
		AccessKeys: p.AccessKeys,
		NewSystemParameters: &api.NewSystemParameters{
			AccountID:      st.accountID,
			AllowedBuckets: st.allowedBuckets,
			NewSystemID:    st.system.ID,
		},
	})
	if err != nil {
		return err
	}
	st.token = reply.Token
	return nil
}

func (s *Service) createDemoAgents(ctx context.Context, st *provisioning) error {
	return api.NewHostedAgentsClient(s.client).CreateAgent(ctx, &api.CreateAgentParams{
		Name:         st.params.Name,
		Demo:         true,
		AccessKeys:   st.params.AccessKeys,
		Scale:        s.cfg.DemoNodes,
		StorageLimit: s.cfg.DemoStorageLimit,
	}, client.WithAuthToken(st.token))
}

func (s *Service) updateTimeConfig(ctx context.Context, st *provisioning) error {
	tc := *st.params.TimeConfig
	tc.TargetSecret = st.secret
	return api.NewClusterServerClient(s.client).UpdateTimeConfig(ctx, &tc, client.WithAuthToken(st.token))
}

func (s *Service) updateDNSServers(ctx context.Context, st *provisioning) error {
	return api.NewClusterServerClient(s.client).UpdateDNSServers(ctx, &api.DNSServersParams{
		TargetSecret: st.secret,
		DNSServers:   st.params.DNSServers,
	}, client.WithAuthToken(st.token))
}

func (s *Service) updateHostname(ctx context.Context, st *provisioning) error {
	return api.NewSystemClient(s.client).UpdateHostname(ctx, st.params.DNSName, client.WithAuthToken(st.token))
}
