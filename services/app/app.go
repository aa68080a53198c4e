package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/db"
	"github.com/ValentinKolb/dCtl/lib/db/engines/boltdb"
	"github.com/ValentinKolb/dCtl/lib/db/engines/memdb"
	"github.com/ValentinKolb/dCtl/lib/reconcile"
	"github.com/ValentinKolb/dCtl/lib/stats"
	"github.com/ValentinKolb/dCtl/lib/store"
	"github.com/ValentinKolb/dCtl/lib/store/dstore"
	"github.com/ValentinKolb/dCtl/lib/store/lstore"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/ValentinKolb/dCtl/rpc/common"
	"github.com/ValentinKolb/dCtl/rpc/serializer"
	"github.com/ValentinKolb/dCtl/rpc/server"
	"github.com/ValentinKolb/dCtl/services/account"
	"github.com/ValentinKolb/dCtl/services/agents"
	"github.com/ValentinKolb/dCtl/services/audit"
	"github.com/ValentinKolb/dCtl/services/cluster"
	"github.com/ValentinKolb/dCtl/services/node"
	"github.com/ValentinKolb/dCtl/services/pool"
	"github.com/ValentinKolb/dCtl/services/system"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/multierr"
)

var log = logger.GetLogger("app")

// App is one running control plane member
type App struct {
	config common.ServerConfig

	nodeHost *dragonboat.NodeHost
	backend  store.IStore
	configDB db.KVDB
	auditDB  db.KVDB
	peers    []*client.Client

	Store     *confstore.Store
	Authority *auth.Authority
	Registry  *server.Registry
	// Client dispatches to the local registry first and to the peers for
	// services not hosted here
	Client  *client.Client
	Monitor *node.Monitor
	Audit   *audit.Log
	Agents  *agents.Service
	System  *system.Service
}

// dbFactory returns the engine factory selected by config. Bolt files are
// placed in the data directory, one per name.
func dbFactory(config common.ServerConfig, name string) (func() (db.KVDB, error), error) {
	switch db.Implementation(config.DBEngine) {
	case db.ImplMemDB, "":
		return func() (db.KVDB, error) { return memdb.NewMemDB(), nil }, nil
	case db.ImplBolt:
		return func() (db.KVDB, error) {
			return boltdb.NewBoltDB(boltdb.Options{Path: filepath.Join(config.DataDir, name+".db")})
		}, nil
	default:
		return nil, fmt.Errorf("unknown db engine %q, must be one of memdb, bolt", config.DBEngine)
	}
}

// New builds a member from config. Nothing listens before Serve.
func New(config common.ServerConfig) (*App, error) {
	a := &App{config: config}
	if err := a.init(); err != nil {
		return nil, multierr.Append(err, a.Close())
	}
	return a, nil
}

func (a *App) init() error {
	config := a.config

	if err := a.initBackend(); err != nil {
		return err
	}
	if err := a.initPeers(); err != nil {
		return err
	}

	var propagator confstore.Propagator
	if len(a.peers) > 0 {
		internal := make([]*api.ClusterInternalClient, len(a.peers))
		for i, p := range a.peers {
			internal[i] = api.NewClusterInternalClient(p)
		}
		propagator = cluster.NewPropagator(internal...)
	}
	a.Store = confstore.New(confstore.Options{
		Backend:      a.backend,
		Propagator:   propagator,
		ServerSecret: config.ServerSecret,
	})

	a.Authority = auth.NewAuthority([]byte(config.JWTSecret), config.TokenTTL)
	a.Authority.SetRoleResolver(a.Store)
	a.Registry = server.NewRegistry(api.Catalog(), a.Authority)
	opts := client.Options{Local: a.Registry, Timeout: time.Duration(config.TimeoutSecond) * time.Second}
	if len(config.Peers) > 0 {
		cc := config.PeerClientConfig()
		t, err := client.NewClientTransport(cc.Transport.Type)
		if err != nil {
			return err
		}
		if opts.Serializer, err = serializer.ByName(cc.Serializer); err != nil {
			return err
		}
		if err := t.Connect(cc); err != nil {
			return fmt.Errorf("failed to connect to peers: %w", err)
		}
		opts.Remote = t
	}
	a.Client = client.New(opts)

	openAudit, err := dbFactory(config, "audit")
	if err != nil {
		return err
	}
	if a.auditDB, err = openAudit(); err != nil {
		return err
	}
	a.Audit = audit.NewLog(a.auditDB, nil)
	a.Monitor = node.NewMonitor(a.Store)
	a.Agents = agents.New(a.Store, a.Monitor)

	sysConfig := system.DefaultConfig()
	sysConfig.MaxSystems = config.MaxSystems
	sysConfig.DemoMode = config.DemoMode
	sysConfig.DemoNodes = config.DemoNodes
	sysConfig.DevMode = config.DevMode
	sysConfig.ServerAddress = config.Address
	if config.StepTimeout > 0 {
		sysConfig.StepTimeout = config.StepTimeout
	}
	if config.SSLPort > 0 {
		sysConfig.SSLPort = config.SSLPort
	}
	if config.PublicDir != "" {
		sysConfig.PublicDir = config.PublicDir
	}
	if config.Version != "" {
		sysConfig.Version = config.Version
	}
	sysOpts := system.Options{
		Config:          sysConfig,
		Store:           a.Store,
		Client:          a.Client,
		Audit:           a.Audit,
		Nodes:           a.Monitor,
		Objects:         a.Monitor,
		NodeDiagnostics: a.Monitor,
	}
	if config.LicenseURL != "" {
		sysOpts.License = system.NewHTTPLicenseClient(config.LicenseURL, sysConfig.StepTimeout, false)
	}
	if config.SyslogConfPath != "" {
		sysOpts.Syslog = system.RsyslogFile{
			Path:           config.SyslogConfPath,
			RestartCommand: []string{"systemctl", "restart", "rsyslog"},
		}
	}
	a.System = system.New(sysOpts)

	if err := api.Register(a.Registry,
		api.NewSystemServiceDesc(a.System),
		api.NewPoolServiceDesc(pool.New(a.Store, a.Monitor, a.Audit)),
		api.NewAccountServiceDesc(account.New(a.Store, a.Authority, 0)),
		api.NewClusterServerServiceDesc(cluster.NewServer(a.Store)),
		api.NewClusterInternalServiceDesc(cluster.NewInternal(a.Store)),
		api.NewHostedAgentsServiceDesc(a.Agents),
		api.NewNodeServiceDesc(a.Monitor),
	); err != nil {
		return err
	}
	return nil
}

func (a *App) initBackend() error {
	switch a.config.Backend {
	case common.BackendLocal, "":
		open, err := dbFactory(a.config, "config")
		if err != nil {
			return err
		}
		kv, err := open()
		if err != nil {
			return err
		}
		a.configDB = kv
		a.backend = lstore.NewLocalStore(func() db.KVDB { return kv })
		log.Infof("using local backend (%s)", kv.GetInfo().DbType)
	case common.BackendRaft:
		nh, err := dragonboat.NewNodeHost(a.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		a.nodeHost = nh
		// the raft log is the durable layer, replicas rebuild from snapshots
		factory := func() db.KVDB { return memdb.NewMemDB() }
		if err := nh.StartConcurrentReplica(a.config.ClusterMembers, false, dstore.CreateStateMaschineFactory(factory), a.config.ToDragonboatConfig()); err != nil {
			return fmt.Errorf("failed to start config shard: %w", err)
		}
		timeout := time.Duration(a.config.TimeoutSecond) * time.Second
		a.backend = dstore.NewDistributedStore(nh, common.ConfigShardID, timeout)
		log.Infof("using raft backend, replica %d of %d", a.config.ReplicaID, len(a.config.ClusterMembers))
	default:
		return fmt.Errorf("unknown backend %q, must be one of local, raft", a.config.Backend)
	}
	return nil
}

// initPeers dials one remote only client per peer. Propagation must reach
// every peer, not whichever one the round robin transport picks.
func (a *App) initPeers() error {
	cc := a.config.PeerClientConfig()
	for _, endpoint := range a.config.Peers {
		pc := cc
		pc.Transport.Endpoints = []string{endpoint}
		c, err := client.Dial(pc, api.Catalog())
		if err != nil {
			return fmt.Errorf("failed to dial peer %s: %w", endpoint, err)
		}
		a.peers = append(a.peers, c)
	}
	return nil
}

// Load waits until the initial load of the config store succeeded. A raft
// backend answers NOT_READY until the shard elected a leader.
func (a *App) Load(ctx context.Context) error {
	p := &reconcile.Poller{
		Name:     "config_store_load",
		Interval: time.Second,
		Predicate: func(ctx context.Context) (bool, error) {
			return true, a.Store.Load(ctx)
		},
		Action: func(context.Context) error { return nil },
	}
	return p.Run(ctx)
}

// Serve loads the store, starts the startup pollers and serves rpc until
// ctx is cancelled
func (a *App) Serve(ctx context.Context) error {
	log.Infof("starting control plane member %s%s", a.config.Address, a.config.String())

	if a.config.MetricsEndpoint != "" {
		go func() {
			if err := stats.Serve(a.config.MetricsEndpoint); err != nil {
				log.Errorf("metrics endpoint stopped: %v", err)
			}
		}()
	}

	t, err := server.NewServerTransport(a.config.Transport)
	if err != nil {
		return err
	}
	s, err := serializer.ByName(a.config.Serializer)
	if err != nil {
		return err
	}
	srv := server.NewRPCServer(a.config, t, s, a.Registry)

	// requests are answered with NOT_READY until the load finished
	go func() {
		if err := a.Load(ctx); err != nil {
			log.Warningf("initial load aborted: %v", err)
			return
		}
		a.System.StartInit(ctx)
	}()
	return srv.Serve(ctx)
}

// Close releases the peers, the raft node host and the databases
func (a *App) Close() error {
	var err error
	for _, p := range a.peers {
		err = multierr.Append(err, p.Close())
	}
	if a.Client != nil {
		err = multierr.Append(err, a.Client.Close())
	}
	if a.nodeHost != nil {
		a.nodeHost.Close()
	}
	for _, kv := range []db.KVDB{a.configDB, a.auditDB} {
		if c, ok := kv.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
