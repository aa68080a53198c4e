package system

import (
	"context"
	"time"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/lib/saga"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/ValentinKolb/dCtl/services/audit"
	"github.com/ValentinKolb/dCtl/services/node"
	"github.com/benbjohnson/clock"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("system")

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config holds the deployment settings of the system service
type Config struct {
	// MaxSystems caps the number of systems, create_system fails with
	// RESOURCE_LIMIT once more exist. 0 disables the cap.
	MaxSystems int
	// DemoMode provisions a demo pool and bucket served by hosted agents
	DemoMode         bool
	DemoNodes        int
	DemoStorageLimit int64
	// DevMode skips the license server
	DevMode bool
	// StepTimeout bounds every provisioning step
	StepTimeout time.Duration
	// ServerAddress is recorded in the cluster member document of this server
	ServerAddress string
	// IPAddress is reported by read_system, detected when empty
	IPAddress string
	SSLPort   int
	WebPort   int
	// PublicDir receives exported files, served as /public
	PublicDir string
	Version   string
	// DebugModePeriod is how long a new master keeps the debug level
	DebugModePeriod time.Duration
}

// DefaultConfig returns the defaults of a production server
func DefaultConfig() Config {
	return Config{
		MaxSystems:       20,
		DemoNodes:        3,
		DemoStorageLimit: 1 << 30,
		StepTimeout:      30 * time.Second,
		SSLPort:          8443,
		WebPort:          8080,
		PublicDir:        "build/public",
		Version:          "dev",
		DebugModePeriod:  10 * time.Minute,
	}
}

// --------------------------------------------------------------------------
// Service
// --------------------------------------------------------------------------

// Options wires the system service to its collaborators. Store, Client,
// Nodes and Objects are required, the others fall back to defaults.
type Options struct {
	Config  Config
	Store   *confstore.Store
	Client  *client.Client
	Audit   audit.Sink
	Nodes   node.Aggregator
	Objects node.ObjectCounter
	// NodeDiagnostics is optional, diagnose_node then packs no node report
	NodeDiagnostics NodeDiagnostics
	CloudSync       CloudSyncReader
	License         LicenseClient
	Syslog          SyslogConfigurer
	Diagnostics     Diagnostics
	Clock           clock.Clock
}

// Service implements api.SystemService
type Service struct {
	cfg       Config
	store     *confstore.Store
	client    *client.Client
	audit     audit.Sink
	nodes     node.Aggregator
	objects   node.ObjectCounter
	nodeDiag  NodeDiagnostics
	cloudSync CloudSyncReader
	license   LicenseClient
	syslog    SyslogConfigurer
	diag      Diagnostics
	clock     clock.Clock

	provision *saga.Runner[provisioning]
	master    masterState
}

// New creates the system service
func New(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.CloudSync == nil {
		opts.CloudSync = BucketCloudSync{}
	}
	if opts.Syslog == nil {
		opts.Syslog = noopSyslog{}
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = TarGzPacker{}
	}
	s := &Service{
		cfg:       opts.Config,
		store:     opts.Store,
		client:    opts.Client,
		audit:     opts.Audit,
		nodes:     opts.Nodes,
		objects:   opts.Objects,
		nodeDiag:  opts.NodeDiagnostics,
		cloudSync: opts.CloudSync,
		license:   opts.License,
		syslog:    opts.Syslog,
		diag:      opts.Diagnostics,
		clock:     opts.Clock,
	}
	s.provision = s.newProvisioning()
	return s
}

// caller returns the session and the system document of the calling token
func (s *Service) caller(ctx context.Context, op string) (*auth.Session, *model.System, *confstore.Data, error) {
	session := auth.FromContext(ctx)
	if session == nil || session.SystemID == "" {
		return nil, nil, nil, errs.New(errs.Auth, op, "token is not bound to a system")
	}
	d, err := s.store.Data()
	if err != nil {
		return nil, nil, nil, err
	}
	sys, ok := d.System(session.SystemID)
	if !ok {
		return nil, nil, nil, errs.New(errs.NotFound, op, "no such system %s", session.SystemID)
	}
	return session, sys, d, nil
}

// patchSystem applies fields to the system document id
func (s *Service) patchSystem(ctx context.Context, id string, fields map[string]interface{}) error {
	_, err := s.store.MakeChanges(ctx, confstore.Changes{Update: map[model.Collection][]confstore.Patch{
		model.Systems: {confstore.NewPatch(id, fields)},
	}})
	return err
}

// actor resolves the account of the session for activity events
func actor(d *confstore.Data, session *auth.Session) *api.AccountRef {
	if session == nil || session.AccountID == "" {
		return nil
	}
	a, ok := d.Account(session.AccountID)
	if !ok {
		return nil
	}
	return &api.AccountRef{Name: a.Name, Email: a.Email}
}

// record stores ev, failures are logged only
func (s *Service) record(ctx context.Context, ev api.ActivityEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, ev); err != nil {
		log.Warningf("failed to record activity %s: %v", ev.Event, err)
	}
}
