package system

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/benbjohnson/clock"
)

// --------------------------------------------------------------------------
// System lifecycle
// --------------------------------------------------------------------------

func (s *Service) UpdateSystem(ctx context.Context, p *api.UpdateSystemParams) (api.Empty, error) {
	_, sys, _, err := s.caller(ctx, "system.update_system")
	if err != nil {
		return api.Empty{}, err
	}
	return api.Empty{}, s.patchSystem(ctx, sys.ID, map[string]interface{}{"name": p.Name})
}

// DeleteSystem removes the system document only. Pools, buckets and roles of
// the system are left to their own services.
func (s *Service) DeleteSystem(ctx context.Context, _ *api.Empty) (api.Empty, error) {
	_, sys, _, err := s.caller(ctx, "system.delete_system")
	if err != nil {
		return api.Empty{}, err
	}
	_, err = s.store.MakeChanges(ctx, confstore.Changes{Remove: map[model.Collection][]string{model.Systems: {sys.ID}}})
	if err == nil {
		log.Infof("deleted system %s (%s)", sys.Name, sys.ID)
	}
	return api.Empty{}, err
}

// ListSystems lists every system for support accounts, the systems an
// account has a role on otherwise. A token bound to a system only lists
// that system.
func (s *Service) ListSystems(ctx context.Context, _ *api.Empty) (*api.SystemList, error) {
	const op = "system.list_systems"
	session := auth.FromContext(ctx)
	d, err := s.store.Data()
	if err != nil {
		return nil, err
	}
	reply := &api.SystemList{Systems: []api.SystemRef{}}
	ref := func(sys *model.System) api.SystemRef { return api.SystemRef{ID: sys.ID, Name: sys.Name} }

	switch {
	case session == nil:
		return nil, errs.New(errs.Auth, op, "list_systems requires authentication with account or system")
	case session.AccountID == "":
		sys, ok := d.System(session.SystemID)
		if !ok {
			return nil, errs.New(errs.NotFound, op, "no such system %s", session.SystemID)
		}
		reply.Systems = append(reply.Systems, ref(sys))
		return reply, nil
	}

	acc, ok := d.Account(session.AccountID)
	if !ok {
		return nil, errs.New(errs.Auth, op, "account of token no longer exists")
	}
	if acc.IsSupport || session.Support {
		for _, sys := range d.Systems() {
			reply.Systems = append(reply.Systems, ref(sys))
		}
		return reply, nil
	}
	seen := map[string]bool{}
	for _, r := range d.RolesByAccount(acc.ID) {
		if seen[r.System] {
			continue
		}
		seen[r.System] = true
		if sys, ok := d.System(r.System); ok {
			reply.Systems = append(reply.Systems, ref(sys))
		}
	}
	sort.Slice(reply.Systems, func(i, j int) bool { return reply.Systems[i].Name < reply.Systems[j].Name })
	return reply, nil
}

// --------------------------------------------------------------------------
// Roles
// --------------------------------------------------------------------------

func (s *Service) AddRole(ctx context.Context, p *api.RoleParams) (api.Empty, error) {
	const op = "system.add_role"
	_, sys, d, err := s.caller(ctx, op)
	if err != nil {
		return api.Empty{}, err
	}
	acc, ok := d.AccountByEmail(p.Email)
	if !ok {
		return api.Empty{}, errs.New(errs.NotFound, op, "no such account email: %s", p.Email)
	}
	role := &model.Role{ID: s.store.GenerateID(), Account: acc.ID, System: sys.ID, Role: p.Role}
	_, err = s.store.MakeChanges(ctx, confstore.Changes{Insert: map[model.Collection][]model.Document{model.Roles: {role}}})
	return api.Empty{}, err
}

func (s *Service) RemoveRole(ctx context.Context, p *api.RoleParams) (api.Empty, error) {
	const op = "system.remove_role"
	_, sys, d, err := s.caller(ctx, op)
	if err != nil {
		return api.Empty{}, err
	}
	acc, ok := d.AccountByEmail(p.Email)
	if !ok {
		return api.Empty{}, errs.New(errs.NotFound, op, "no such account email: %s", p.Email)
	}
	var ids []string
	for _, r := range d.RolesByAccount(acc.ID) {
		if r.System == sys.ID && r.Role == p.Role {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return api.Empty{}, nil
	}
	_, err = s.store.MakeChanges(ctx, confstore.Changes{Remove: map[model.Collection][]string{model.Roles: ids}})
	return api.Empty{}, err
}

// --------------------------------------------------------------------------
// Settings
// --------------------------------------------------------------------------

// SetMaintenanceMode starts a maintenance window of p.Duration minutes
func (s *Service) SetMaintenanceMode(ctx context.Context, p *api.MaintenanceParams) (api.Empty, error) {
	_, sys, _, err := s.caller(ctx, "system.set_maintenance_mode")
	if err != nil {
		return api.Empty{}, err
	}
	till := s.clock.Now().UnixMilli() + int64(p.Duration)*60000
	return api.Empty{}, s.patchSystem(ctx, sys.ID, map[string]interface{}{"maintenance_mode": till})
}

func (s *Service) SetLastStatsReportTime(ctx context.Context, p *api.StatsReportParams) (api.Empty, error) {
	_, sys, _, err := s.caller(ctx, "system.set_last_stats_report_time")
	if err != nil {
		return api.Empty{}, err
	}
	return api.Empty{}, s.patchSystem(ctx, sys.ID, map[string]interface{}{"last_stats_report": p.LastStatsReport})
}

// UpdateN2NConfig replaces the node to node config and lets the node
// monitor pick it up
func (s *Service) UpdateN2NConfig(ctx context.Context, p *model.N2NConfig) (api.Empty, error) {
	_, sys, _, err := s.caller(ctx, "system.update_n2n_config")
	if err != nil {
		return api.Empty{}, err
	}
	log.Infof("update_n2n_config %s: %+v", sys.ID, *p)
	if err := s.patchSystem(ctx, sys.ID, map[string]interface{}{"n2n_config": *p}); err != nil {
		return api.Empty{}, err
	}
	return api.Empty{}, api.NewNodeClient(s.client).SyncMonitorToStore(ctx)
}

func (s *Service) UpdateBaseAddress(ctx context.Context, p *api.BaseAddressParams) (api.Empty, error) {
	session, sys, d, err := s.caller(ctx, "system.update_base_address")
	if err != nil {
		return api.Empty{}, err
	}
	prior := sys.BaseAddress
	if err := s.patchSystem(ctx, sys.ID, map[string]interface{}{"base_address": p.BaseAddress}); err != nil {
		return api.Empty{}, err
	}
	if err := api.NewNodeClient(s.client).SyncMonitorToStore(ctx); err != nil {
		return api.Empty{}, err
	}
	s.record(ctx, api.ActivityEvent{
		Event:  "conf.dns_address",
		System: sys.ID,
		Actor:  actor(d, session),
		Desc:   []string{fmt.Sprintf("DNS Address was changed from %s to %s", prior, p.BaseAddress)},
	})
	return api.Empty{}, nil
}

// UpdateHostname sets the base address to wss://<hostname>:<ssl port>
func (s *Service) UpdateHostname(ctx context.Context, p *api.HostnameParams) (api.Empty, error) {
	base := "wss://" + p.Hostname + ":" + strconv.Itoa(s.cfg.SSLPort)
	return s.UpdateBaseAddress(ctx, &api.BaseAddressParams{BaseAddress: base})
}

// UpdatePhoneHomeConfig sets the phone home proxy, nil removes it
func (s *Service) UpdatePhoneHomeConfig(ctx context.Context, p *api.PhoneHomeParams) (api.Empty, error) {
	_, sys, _, err := s.caller(ctx, "system.update_phone_home_config")
	if err != nil {
		return api.Empty{}, err
	}
	var proxy interface{}
	if p.ProxyAddress != nil {
		proxy = *p.ProxyAddress
	}
	return api.Empty{}, s.patchSystem(ctx, sys.ID, map[string]interface{}{"phone_home_proxy_address": proxy})
}

// PhoneHomeCapacityNotified marks the capacity notification as shown
func (s *Service) PhoneHomeCapacityNotified(ctx context.Context, _ *api.Empty) (api.Empty, error) {
	_, sys, _, err := s.caller(ctx, "system.phone_home_capacity_notified")
	if err != nil {
		return api.Empty{}, err
	}
	return api.Empty{}, s.patchSystem(ctx, sys.ID, map[string]interface{}{
		"freemium_cap": map[string]interface{}{"phone_home_notified": true},
	})
}

// ConfigureRemoteSyslog stores or removes the remote syslog target and
// reloads the syslog configuration of the host
func (s *Service) ConfigureRemoteSyslog(ctx context.Context, p *api.RemoteSyslogParams) (api.Empty, error) {
	const op = "system.configure_remote_syslog"
	_, sys, _, err := s.caller(ctx, op)
	if err != nil {
		return api.Empty{}, err
	}
	var cfg *model.RemoteSyslogConfig
	var value interface{}
	if p.Enabled {
		if p.Protocol == "" || p.Address == "" || p.Port == 0 {
			return api.Empty{}, errs.New(errs.Validation, op, "missing protocol, address or port")
		}
		cfg = &model.RemoteSyslogConfig{Protocol: p.Protocol, Address: p.Address, Port: p.Port}
		value = cfg
	}
	if err := s.patchSystem(ctx, sys.ID, map[string]interface{}{"remote_syslog_config": value}); err != nil {
		return api.Empty{}, err
	}
	if err := s.syslog.Reload(ctx, cfg); err != nil {
		return api.Empty{}, errs.Wrap(errs.Internal, op, err)
	}
	return api.Empty{}, nil
}

// --------------------------------------------------------------------------
// Master state
// --------------------------------------------------------------------------

// masterState tracks whether this server is the cluster master
type masterState struct {
	mu       sync.Mutex
	isMaster bool
	reset    *clock.Timer
}

// SetWebserverMasterState records the master flag of this server. A server
// becoming master resets the debug level of the cluster after the debug
// mode period.
func (s *Service) SetWebserverMasterState(ctx context.Context, p *api.MasterStateParams) (api.Empty, error) {
	session := auth.FromContext(ctx)
	s.master.mu.Lock()
	changed := s.master.isMaster != p.IsMaster
	s.master.isMaster = p.IsMaster
	if changed && s.master.reset != nil {
		s.master.reset.Stop()
		s.master.reset = nil
	}
	if changed && p.IsMaster {
		token := ""
		if session != nil {
			token = session.Token
		}
		s.master.reset = s.clock.AfterFunc(s.cfg.DebugModePeriod, func() {
			err := api.NewClusterServerClient(s.client).SetDebugLevel(context.Background(), &api.DebugLevelParams{Level: 0}, client.WithAuthToken(token))
			if err != nil {
				log.Warningf("failed to reset the debug level: %v", err)
			}
		})
	}
	s.master.mu.Unlock()

	if !changed {
		return api.Empty{}, nil
	}
	log.Infof("this server is master: %v", p.IsMaster)
	if local, ok := s.store.LocalCluster(); ok {
		_, err := s.store.MakeChanges(ctx, confstore.Changes{Update: map[model.Collection][]confstore.Patch{
			model.Clusters: {confstore.NewPatch(local.ID, map[string]interface{}{"is_master": p.IsMaster})},
		}})
		return api.Empty{}, err
	}
	return api.Empty{}, nil
}

// IsMaster reports the last master state set on this server
func (s *Service) IsMaster() bool {
	s.master.mu.Lock()
	defer s.master.mu.Unlock()
	return s.master.isMaster
}
