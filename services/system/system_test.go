package system

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/db"
	"github.com/ValentinKolb/dCtl/lib/db/engines/memdb"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/lib/store/lstore"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/ValentinKolb/dCtl/rpc/server"
	"github.com/ValentinKolb/dCtl/services/account"
	"github.com/ValentinKolb/dCtl/services/agents"
	"github.com/ValentinKolb/dCtl/services/audit"
	"github.com/ValentinKolb/dCtl/services/cluster"
	"github.com/ValentinKolb/dCtl/services/node"
	"github.com/ValentinKolb/dCtl/services/pool"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --------------------------------------------------------------------------
// Harness
// --------------------------------------------------------------------------

type licenseFunc func(ctx context.Context, command string, req ActivationRequest) (string, error)

func (f licenseFunc) Call(ctx context.Context, command string, req ActivationRequest) (string, error) {
	return f(ctx, command, req)
}

type syslogRecorder struct {
	configs []*model.RemoteSyslogConfig
}

func (r *syslogRecorder) Reload(_ context.Context, cfg *model.RemoteSyslogConfig) error {
	r.configs = append(r.configs, cfg)
	return nil
}

type harness struct {
	store     *confstore.Store
	authority *auth.Authority
	client    *client.Client
	monitor   *node.Monitor
	audit     *audit.Log
	agents    *agents.Service
	syslog    *syslogRecorder
	clock     *clock.Mock
	svc       *Service
	systems   *api.SystemClient
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{clock: clock.NewMock(), syslog: &syslogRecorder{}}
	h.clock.Set(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	h.store = confstore.New(confstore.Options{
		Backend:      lstore.NewLocalStore(func() db.KVDB { return memdb.NewMemDB() }),
		ServerSecret: "server-secret",
	})
	require.NoError(t, h.store.Load(context.Background()))

	h.authority = auth.NewAuthority([]byte("test-secret"), 0)
	h.authority.SetRoleResolver(h.store)
	reg := server.NewRegistry(api.Catalog(), h.authority)
	h.client = client.New(client.Options{Local: reg})
	h.monitor = node.NewMonitor(h.store)
	h.audit = audit.NewLog(memdb.NewMemDB(), h.clock)
	h.agents = agents.New(h.store, h.monitor)

	cfg := DefaultConfig()
	cfg.DevMode = true
	cfg.IPAddress = "10.0.0.1"
	cfg.PublicDir = t.TempDir()
	cfg.Version = "5.1.0"
	opts := Options{
		Config:          cfg,
		Store:           h.store,
		Client:          h.client,
		Audit:           h.audit,
		Nodes:           h.monitor,
		Objects:         h.monitor,
		NodeDiagnostics: h.monitor,
		Syslog:          h.syslog,
		Clock:           h.clock,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	h.svc = New(opts)

	require.NoError(t, api.Register(reg,
		api.NewSystemServiceDesc(h.svc),
		api.NewPoolServiceDesc(pool.New(h.store, h.monitor, h.audit)),
		api.NewAccountServiceDesc(account.New(h.store, h.authority, bcrypt.MinCost)),
		api.NewClusterServerServiceDesc(cluster.NewServer(h.store)),
		api.NewClusterInternalServiceDesc(cluster.NewInternal(h.store)),
		api.NewHostedAgentsServiceDesc(h.agents),
		api.NewNodeServiceDesc(h.monitor),
	))
	h.systems = api.NewSystemClient(h.client)
	return h
}

func (h *harness) create(t *testing.T, name, email string) (string, *model.System) {
	t.Helper()
	reply, err := h.systems.CreateSystem(context.Background(), &api.CreateSystemParams{
		Name:     name,
		Email:    email,
		Password: "secret-" + name,
	})
	require.NoError(t, err)
	require.NotEmpty(t, reply.Token)
	d, err := h.store.Data()
	require.NoError(t, err)
	sys, ok := d.SystemByName(name)
	require.True(t, ok)
	return reply.Token, sys
}

func withDemo(o *Options) {
	o.Config.DemoMode = true
	o.Config.DemoNodes = 3
}

// --------------------------------------------------------------------------
// Provisioning
// --------------------------------------------------------------------------

func TestCreateSystem(t *testing.T) {
	h := newHarness(t)
	token, sys := h.create(t, "acme", "admin@acme.io")

	d, err := h.store.Data()
	require.NoError(t, err)

	owner, ok := d.Account(sys.Owner)
	require.True(t, ok)
	assert.Equal(t, "admin@acme.io", owner.Email)
	require.Len(t, d.RolesBySystem(sys.ID), 1)
	assert.Equal(t, model.RoleAdmin, d.RolesBySystem(sys.ID)[0].Role)

	pools := d.PoolsOfSystem(sys.ID)
	require.Len(t, pools, 1)
	assert.Equal(t, model.DefaultPoolName, pools[0].Name)
	buckets := d.BucketsOfSystem(sys.ID)
	require.Len(t, buckets, 1)
	assert.Equal(t, model.DefaultBucketName, buckets[0].Name)
	assert.Equal(t, []string{buckets[0].ID}, owner.AllowedBuckets)
	tiers := d.TiersOfSystem(sys.ID)
	require.Len(t, tiers, 1)
	assert.True(t, strings.HasPrefix(tiers[0].Name, "files#"))

	_, ok = h.store.LocalCluster()
	assert.True(t, ok, "the first system registers this server as cluster member")

	info, err := h.systems.ReadSystem(context.Background(), client.WithAuthToken(token))
	require.NoError(t, err)
	assert.Equal(t, "acme", info.Name)
	assert.Equal(t, "admin@acme.io", info.Owner.Email)
	require.Len(t, info.Buckets, 1)
	assert.Equal(t, tiers[0].Name, info.Buckets[0].Tiering)
	assert.Equal(t, "wss://10.0.0.1:8443", info.BaseAddress)
	assert.Equal(t, model.UpgradeUnavailable, info.Upgrade.Status)
	assert.EqualValues(t, model.DefaultCapTerabytes, info.SystemCap)
	assert.Equal(t, "/public/dctl-setup-5.1.0.exe", info.WebLinks["agent_installer"])
	assert.Equal(t, "/public/dctl-setup-5.1.0", info.WebLinks["linux_agent_installer"])
	assert.Len(t, info.Accounts, 1)

	events, err := h.audit.Read(context.Background(), sys.ID, api.ActivityLogFilter{Event: "conf.create_system"})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCreateSystemWithDemo(t *testing.T) {
	h := newHarness(t, withDemo)
	token, sys := h.create(t, "demo-co", "owner@demo.co")

	d, err := h.store.Data()
	require.NoError(t, err)
	assert.Len(t, d.PoolsOfSystem(sys.ID), 2)
	assert.Len(t, d.BucketsOfSystem(sys.ID), 2)
	demoPool, ok := d.PoolByName(sys.ID, model.DemoPoolName)
	require.True(t, ok)
	assert.True(t, demoPool.DemoPool)
	demoBucket, ok := d.BucketByName(sys.ID, model.DemoBucketName)
	require.True(t, ok)
	assert.True(t, demoBucket.DemoBucket)

	owner, _ := d.Account(sys.Owner)
	assert.Len(t, owner.AllowedBuckets, 2)

	nodes := h.monitor.Nodes(sys.ID)
	require.Len(t, nodes, 3)
	for _, n := range nodes {
		assert.Equal(t, demoPool.ID, n.Pool)
		assert.True(t, n.Online)
	}

	info, err := h.systems.ReadSystem(context.Background(), client.WithAuthToken(token))
	require.NoError(t, err)
	assert.Equal(t, api.NodesInfo{Count: 3, Online: 3}, info.Nodes)
}

func TestCreateSystemLimit(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Config.MaxSystems = 1 })
	h.create(t, "one", "one@example.com")
	h.create(t, "two", "two@example.com")

	_, err := h.systems.CreateSystem(context.Background(), &api.CreateSystemParams{Name: "three", Email: "three@example.com", Password: "x"})
	assert.ErrorIs(t, err, errs.ErrResourceLimit)

	d, err := h.store.Data()
	require.NoError(t, err)
	assert.Len(t, d.Systems(), 2)
}

func TestCreateSystemWithoutLimit(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Config.MaxSystems = 0 })
	for _, name := range []string{"one", "two", "three"} {
		h.create(t, name, name+"@example.com")
	}
	d, err := h.store.Data()
	require.NoError(t, err)
	assert.Len(t, d.Systems(), 3)
}

func TestCreateSystemLicenseRefused(t *testing.T) {
	var commands []string
	h := newHarness(t, func(o *Options) {
		o.Config.DevMode = false
		o.License = licenseFunc(func(_ context.Context, command string, req ActivationRequest) (string, error) {
			commands = append(commands, command)
			return "", errs.New(errs.ExternalDependency, "license."+command, "invalid code %s", req.Code)
		})
	})

	_, err := h.systems.CreateSystem(context.Background(), &api.CreateSystemParams{
		Name: "acme", Email: "a@acme.io", Password: "x", ActivationCode: "bad",
	})
	assert.ErrorIs(t, err, errs.ErrExternalDependency)
	assert.Equal(t, []string{CommandPerformActivation}, commands)

	d, err := h.store.Data()
	require.NoError(t, err)
	assert.Empty(t, d.Systems())
	assert.Empty(t, d.Accounts())

	reply, err := h.systems.ValidateActivation(context.Background(), &api.ActivationParams{Code: "bad"})
	require.NoError(t, err)
	assert.False(t, reply.Valid)
	assert.Equal(t, "invalid code bad", reply.Reason)
}

func TestCreateSystemFailureAfterCommit(t *testing.T) {
	h := newHarness(t)
	_, err := h.systems.CreateSystem(context.Background(), &api.CreateSystemParams{
		Name:       "acme",
		Email:      "a@acme.io",
		Password:   "x",
		TimeConfig: &api.TimeConfig{Timezone: "Mars/Olympus_Mons"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrFatalPartialFailure)
	assert.Contains(t, err.Error(), "update_time_config")

	// the committed graph and the owner stay behind
	d, err := h.store.Data()
	require.NoError(t, err)
	sys, ok := d.SystemByName("acme")
	require.True(t, ok)
	assert.Contains(t, err.Error(), sys.ID)
	_, ok = d.AccountByEmail("a@acme.io")
	assert.True(t, ok)
}

func TestCreateSystemHostSettings(t *testing.T) {
	h := newHarness(t)
	reply, err := h.systems.CreateSystem(context.Background(), &api.CreateSystemParams{
		Name:       "acme",
		Email:      "a@acme.io",
		Password:   "x",
		TimeConfig: &api.TimeConfig{Timezone: "Europe/Berlin", NTPServer: "pool.ntp.org"},
		DNSServers: []string{"8.8.8.8"},
		DNSName:    "storage.acme.io",
	})
	require.NoError(t, err)

	local, ok := h.store.LocalCluster()
	require.True(t, ok)
	require.NotNil(t, local.NTP)
	assert.Equal(t, "Europe/Berlin", local.NTP.Timezone)
	assert.Equal(t, []string{"8.8.8.8"}, local.DNSServers)

	info, err := h.systems.ReadSystem(context.Background(), client.WithAuthToken(reply.Token))
	require.NoError(t, err)
	assert.Equal(t, "wss://storage.acme.io:8443", info.BaseAddress)
	assert.Equal(t, "storage.acme.io", info.DNSName)
	assert.Equal(t, "10.0.0.1", info.IPAddress)
}

// --------------------------------------------------------------------------
// Listing and reading
// --------------------------------------------------------------------------

func TestListSystems(t *testing.T) {
	h := newHarness(t)
	_, acme := h.create(t, "acme", "a@acme.io")
	h.create(t, "globex", "g@globex.io")
	accounts := api.NewAccountClient(h.client)

	token, err := accounts.CreateAuth(context.Background(), &api.CreateAuthParams{Email: "a@acme.io", Password: "secret-acme"})
	require.NoError(t, err)
	list, err := h.systems.ListSystems(context.Background(), client.WithAuthToken(token.Token))
	require.NoError(t, err)
	assert.Equal(t, []api.SystemRef{{ID: acme.ID, Name: "acme"}}, list.Systems)

	hash, err := bcrypt.GenerateFromPassword([]byte("support"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = h.store.MakeChanges(context.Background(), confstore.Changes{Insert: map[model.Collection][]model.Document{
		model.Accounts: {&model.Account{ID: h.store.GenerateID(), Name: "support", Email: "support@dctl.io", Password: string(hash), IsSupport: true}},
	}})
	require.NoError(t, err)
	token, err = accounts.CreateAuth(context.Background(), &api.CreateAuthParams{Email: "support@dctl.io", Password: "support"})
	require.NoError(t, err)
	list, err = h.systems.ListSystems(context.Background(), client.WithAuthToken(token.Token))
	require.NoError(t, err)
	assert.Len(t, list.Systems, 2)

	systemOnly, err := h.authority.Issue(auth.Session{SystemID: acme.ID})
	require.NoError(t, err)
	list, err = h.systems.ListSystems(context.Background(), client.WithAuthToken(systemOnly))
	require.NoError(t, err)
	assert.Equal(t, []api.SystemRef{{ID: acme.ID, Name: "acme"}}, list.Systems)

	_, err = h.systems.ListSystems(context.Background())
	assert.ErrorIs(t, err, errs.ErrAuth)
}

func TestReadSystemObjectCountBeyondFloatPrecision(t *testing.T) {
	h := newHarness(t)
	token, sys := h.create(t, "acme", "a@acme.io")
	d, err := h.store.Data()
	require.NoError(t, err)
	bucket, ok := d.BucketByName(sys.ID, model.DefaultBucketName)
	require.True(t, ok)

	huge := new(big.Int).Lsh(big.NewInt(1), 60)
	huge.Add(huge, big.NewInt(1))
	h.monitor.SetObjectCount(sys.ID, bucket.ID, huge)
	h.monitor.SetObjectCount(sys.ID, "", big.NewInt(2))

	info, err := h.systems.ReadSystem(context.Background(), client.WithAuthToken(token))
	require.NoError(t, err)
	want := new(big.Int).Add(huge, big.NewInt(2))
	assert.Equal(t, 0, want.Cmp(info.Objects), "got %s", info.Objects)
	assert.Equal(t, 0, huge.Cmp(info.Buckets[0].NumObjects))

	raw, err := json.Marshal(info)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"objects":1152921504606846979`)
}

func TestRoles(t *testing.T) {
	h := newHarness(t)
	token, _ := h.create(t, "acme", "a@acme.io")
	h.create(t, "globex", "g@globex.io")

	require.NoError(t, h.systems.AddRole(context.Background(), "g@globex.io", model.RoleViewer, client.WithAuthToken(token)))
	info, err := h.systems.ReadSystem(context.Background(), client.WithAuthToken(token))
	require.NoError(t, err)
	require.Len(t, info.Roles, 2)
	assert.Equal(t, "g@globex.io", info.Roles[1].Account.Email)
	assert.Equal(t, []string{model.RoleViewer}, info.Roles[1].Roles)

	require.NoError(t, h.systems.RemoveRole(context.Background(), "g@globex.io", model.RoleViewer, client.WithAuthToken(token)))
	info, err = h.systems.ReadSystem(context.Background(), client.WithAuthToken(token))
	require.NoError(t, err)
	assert.Len(t, info.Roles, 1)

	err = h.systems.AddRole(context.Background(), "nobody@acme.io", model.RoleUser, client.WithAuthToken(token))
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRemovedRoleIsRevoked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	token, _ := h.create(t, "acme", "a@acme.io")
	h.create(t, "globex", "g@globex.io")

	require.NoError(t, h.systems.AddRole(ctx, "g@globex.io", model.RoleAdmin, client.WithAuthToken(token)))
	reply, err := api.NewAccountClient(h.client).CreateAuth(ctx, &api.CreateAuthParams{
		Email:    "g@globex.io",
		Password: "secret-globex",
		System:   "acme",
	})
	require.NoError(t, err)
	guest := client.WithAuthToken(reply.Token)
	require.NoError(t, h.systems.SetMaintenanceMode(ctx, 10, guest))

	require.NoError(t, h.systems.RemoveRole(ctx, "g@globex.io", model.RoleAdmin, client.WithAuthToken(token)))
	err = h.systems.SetMaintenanceMode(ctx, 10, guest)
	assert.ErrorIs(t, err, errs.ErrAuth)
	_, err = h.systems.ReadSystem(ctx, guest)
	assert.ErrorIs(t, err, errs.ErrAuth)
}

// --------------------------------------------------------------------------
// Settings
// --------------------------------------------------------------------------

func TestMaintenanceMode(t *testing.T) {
	h := newHarness(t)
	token, _ := h.create(t, "acme", "a@acme.io")
	ctx := context.Background()

	require.NoError(t, h.systems.SetMaintenanceMode(ctx, 30, client.WithAuthToken(token)))
	info, err := h.systems.ReadSystem(ctx, client.WithAuthToken(token))
	require.NoError(t, err)
	assert.True(t, info.MaintenanceMode.State)
	assert.Equal(t, h.clock.Now().Add(30*time.Minute).UnixMilli(), info.MaintenanceMode.Till)

	h.clock.Add(31 * time.Minute)
	info, err = h.systems.ReadSystem(ctx, client.WithAuthToken(token))
	require.NoError(t, err)
	assert.False(t, info.MaintenanceMode.State)
	assert.Zero(t, info.MaintenanceMode.Till)
}

func TestPhoneHome(t *testing.T) {
	h := newHarness(t)
	token, sys := h.create(t, "acme", "a@acme.io")
	ctx := context.Background()

	proxy := "http://proxy:3128"
	require.NoError(t, h.systems.UpdatePhoneHomeConfig(ctx, &proxy, client.WithAuthToken(token)))
	info, err := h.systems.ReadSystem(ctx, client.WithAuthToken(token))
	require.NoError(t, err)
	assert.Equal(t, proxy, info.PhoneHomeConfig.ProxyAddress)

	require.NoError(t, h.systems.UpdatePhoneHomeConfig(ctx, nil, client.WithAuthToken(token)))
	info, err = h.systems.ReadSystem(ctx, client.WithAuthToken(token))
	require.NoError(t, err)
	assert.Empty(t, info.PhoneHomeConfig.ProxyAddress)

	// the cap was upgraded by the phone home service
	_, err = h.store.MakeChanges(ctx, confstore.Changes{Update: map[model.Collection][]confstore.Patch{
		model.Systems: {confstore.NewPatch(sys.ID, map[string]interface{}{
			"freemium_cap": map[string]interface{}{"phone_home_upgraded": true},
		})},
	}})
	require.NoError(t, err)
	info, err = h.systems.ReadSystem(ctx, client.WithAuthToken(token))
	require.NoError(t, err)
	assert.True(t, info.PhoneHomeConfig.UpgradedCapNotification)

	require.NoError(t, h.systems.PhoneHomeCapacityNotified(ctx, client.WithAuthToken(token)))
	info, err = h.systems.ReadSystem(ctx, client.WithAuthToken(token))
	require.NoError(t, err)
	assert.False(t, info.PhoneHomeConfig.UpgradedCapNotification)
	assert.EqualValues(t, model.DefaultCapTerabytes, info.SystemCap)
}

func TestConfigureRemoteSyslog(t *testing.T) {
	h := newHarness(t)
	token, _ := h.create(t, "acme", "a@acme.io")
	ctx := context.Background()

	err := h.systems.ConfigureRemoteSyslog(ctx, &api.RemoteSyslogParams{Enabled: true, Protocol: "UDP", Address: "logs"}, client.WithAuthToken(token))
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Empty(t, h.syslog.configs)

	require.NoError(t, h.systems.ConfigureRemoteSyslog(ctx, &api.RemoteSyslogParams{Enabled: true, Protocol: "UDP", Address: "logs", Port: 514}, client.WithAuthToken(token)))
	info, err := h.systems.ReadSystem(ctx, client.WithAuthToken(token))
	require.NoError(t, err)
	assert.Equal(t, &model.RemoteSyslogConfig{Protocol: "UDP", Address: "logs", Port: 514}, info.RemoteSyslogConfig)

	require.NoError(t, h.systems.ConfigureRemoteSyslog(ctx, &api.RemoteSyslogParams{Enabled: false}, client.WithAuthToken(token)))
	info, err = h.systems.ReadSystem(ctx, client.WithAuthToken(token))
	require.NoError(t, err)
	assert.Nil(t, info.RemoteSyslogConfig)

	require.Len(t, h.syslog.configs, 2)
	assert.NotNil(t, h.syslog.configs[0])
	assert.Nil(t, h.syslog.configs[1])
}

func TestUpdateBaseAddress(t *testing.T) {
	h := newHarness(t)
	token, sys := h.create(t, "acme", "a@acme.io")
	ctx := context.Background()

	require.NoError(t, h.systems.UpdateBaseAddress(ctx, "wss://192.168.1.7:8443", client.WithAuthToken(token)))
	info, err := h.systems.ReadSystem(ctx, client.WithAuthToken(token))
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.7", info.IPAddress)
	assert.Empty(t, info.DNSName)

	events, err := h.audit.Read(ctx, sys.ID, api.ActivityLogFilter{Event: "conf.dns_address"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"DNS Address was changed from  to wss://192.168.1.7:8443"}, events[0].Desc)
	assert.Equal(t, "a@acme.io", events[0].Actor.Email)
}

func TestWebserverMasterState(t *testing.T) {
	h := newHarness(t)
	token, _ := h.create(t, "acme", "a@acme.io")
	ctx := context.Background()

	require.NoError(t, api.NewClusterServerClient(h.client).SetDebugLevel(ctx, &api.DebugLevelParams{Level: 3}, client.WithAuthToken(token)))
	require.NoError(t, h.systems.SetWebserverMasterState(ctx, true, client.WithAuthToken(token)))
	assert.True(t, h.svc.IsMaster())
	local, ok := h.store.LocalCluster()
	require.True(t, ok)
	assert.True(t, local.IsMaster)
	assert.Equal(t, 3, local.DebugLevel)

	h.clock.Add(h.svc.cfg.DebugModePeriod)
	require.Eventually(t, func() bool {
		local, _ := h.store.LocalCluster()
		return local.DebugLevel == 0
	}, time.Second, 5*time.Millisecond)
}

// --------------------------------------------------------------------------
// Activity log and diagnostics
// --------------------------------------------------------------------------

func TestExportActivityLog(t *testing.T) {
	h := newHarness(t)
	token, sys := h.create(t, "acme", "a@acme.io")
	ctx := context.Background()

	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, h.audit.Record(ctx, api.ActivityEvent{
		Time: t0.UnixMilli(), Event: "pool.create", System: sys.ID,
		Actor: &api.AccountRef{Email: "a@acme.io"}, Pool: &api.EntityRef{Name: "fast"},
		Desc: []string{"Pool fast", "was created"},
	}))
	require.NoError(t, h.audit.Record(ctx, api.ActivityEvent{
		Time: t0.Add(time.Second).UnixMilli(), Level: audit.LevelAlert, Event: "pool.delete", System: sys.ID,
		Pool: &api.EntityRef{Name: "fast"}, Desc: []string{"Pool fast was deleted"},
	}))

	path, err := h.systems.ExportActivityLog(ctx, &api.ActivityLogFilter{Event: "pool"}, client.WithAuthToken(token))
	require.NoError(t, err)
	assert.Equal(t, "/public/audit.csv", path)

	raw, err := os.ReadFile(filepath.Join(h.svc.cfg.PublicDir, "audit.csv"))
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"time,level,account,event,entity,description",
		`"2024-03-01T12:00:00.000Z",info,a@acme.io,pool.create,fast,"Pool fast was created"`,
		`"2024-03-01T12:00:01.000Z",alert,,pool.delete,fast,"Pool fast was deleted"`,
	}, "\n"), string(raw))

	logs, err := h.systems.ReadActivityLog(ctx, &api.ActivityLogFilter{Limit: 1}, client.WithAuthToken(token))
	require.NoError(t, err)
	require.Len(t, logs.Logs, 1)
}

func TestDiagnose(t *testing.T) {
	h := newHarness(t, withDemo)
	token, sys := h.create(t, "acme", "a@acme.io")
	ctx := context.Background()

	path, err := h.systems.DiagnoseSystem(ctx, client.WithAuthToken(token))
	require.NoError(t, err)
	assert.Equal(t, "/public/diagnostics.tgz", path)
	st, err := os.Stat(filepath.Join(h.svc.cfg.PublicDir, "diagnostics.tgz"))
	require.NoError(t, err)
	assert.Positive(t, st.Size())

	node := h.monitor.Nodes(sys.ID)[0]
	_, err = h.systems.DiagnoseNode(ctx, &api.DiagnoseNodeParams{ID: node.Name, Name: node.Name}, client.WithAuthToken(token))
	require.NoError(t, err)
	_, err = h.systems.DiagnoseNode(ctx, &api.DiagnoseNodeParams{ID: "ghost"}, client.WithAuthToken(token))
	assert.ErrorIs(t, err, errs.ErrNotFound)

	events, err := h.audit.Read(ctx, sys.ID, api.ActivityLogFilter{Event: "dbg"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "dbg.diagnose_system", events[0].Event)
	assert.Equal(t, "dbg.diagnose_node", events[1].Event)
	assert.Equal(t, node.Name, events[1].Node.Name)
}

// --------------------------------------------------------------------------
// Startup
// --------------------------------------------------------------------------

func TestInitResetsDebugLevel(t *testing.T) {
	h := newHarness(t)
	token, _ := h.create(t, "acme", "a@acme.io")
	require.NoError(t, api.NewClusterServerClient(h.client).SetDebugLevel(context.Background(), &api.DebugLevelParams{Level: 5}, client.WithAuthToken(token)))

	p := h.svc.NewInitPoller()
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, p.Attempts())

	local, ok := h.store.LocalCluster()
	require.True(t, ok)
	assert.Equal(t, 0, local.DebugLevel)
}
