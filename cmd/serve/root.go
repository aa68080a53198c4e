package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/dCtl/cmd/util"
	"github.com/ValentinKolb/dCtl/lib/logging"
	"github.com/ValentinKolb/dCtl/rpc/common"
	"github.com/ValentinKolb/dCtl/services/app"
	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Version is reported by read_system, set by the root command
var Version = "dev"

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a control plane member",
		Long:    `Start a control plane member with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DCTL_<flag> (e.g. DCTL_MAX_SYSTEMS=50)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	flags := ServeCmd.PersistentFlags()

	// member
	key := "server-secret"
	flags.String(key, "", cmdUtil.WrapString("Secret identifying this member in the cluster documents (required)"))
	key = "address"
	flags.String(key, "", cmdUtil.WrapString("Public address of this member, recorded in its cluster document (defaults to the endpoint)"))

	// storage
	key = "backend"
	flags.String(key, "local", cmdUtil.WrapString("Where the configuration is persisted: local (single member) or raft (replicated across the cluster members)"))
	key = "db-engine"
	flags.String(key, "bolt", cmdUtil.WrapString("Database engine of the local backend and the activity log (memdb, bolt)"))
	key = "data-dir"
	flags.String(key, "data", cmdUtil.WrapString("DataDir holds the database files and the raft log"))

	// raft
	key = "rtt-millisecond"
	flags.Int(key, 100, cmdUtil.WrapString("(raft) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value*10, HeartbeatRTT=value) are derived from this value"))
	key = "snapshot-entries"
	flags.Int(key, 100, cmdUtil.WrapString("(raft) SnapshotEntries defines how often the state machine should be snapshotted automatically, in applied log entries. 0 disables automatic snapshotting (not recommended)"))
	key = "compaction-overhead"
	flags.Int(key, 50, cmdUtil.WrapString("(raft) CompactionOverhead defines the number of log entries kept after a snapshot. Recommended value is about 1/2 of SnapshotEntries"))
	key = "replica-id"
	flags.String(key, "", cmdUtil.WrapString("(raft) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))
	key = "cluster-members"
	flags.String(key, "", cmdUtil.WrapString("(raft) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	// rpc
	key = "endpoint"
	flags.String(key, "0.0.0.0:9090", cmdUtil.WrapString("The address on which the rpc api will listen (e.g. localhost:9090, /tmp/dctl.sock, ...)"))
	key = "workers-per-conn"
	flags.Int(key, 16, cmdUtil.WrapString("Maximum concurrent requests per connection (tcp, unix)"))
	key = "timeout"
	flags.Int64(key, 10, cmdUtil.WrapString("Timeout in seconds of calls to peers and of raft proposals"))
	key = "peers"
	flags.String(key, "", cmdUtil.WrapString("Comma-separated rpc endpoints of the other members. Committed changes are announced to every peer"))

	// auth
	key = "jwt-secret"
	flags.String(key, "", cmdUtil.WrapString("Secret signing the session tokens, must be the same on every member (required)"))
	key = "token-ttl"
	flags.Duration(key, 0, cmdUtil.WrapString("Lifetime of issued tokens, 0 issues tokens that do not expire"))

	// provisioning
	key = "max-systems"
	flags.Int(key, 20, cmdUtil.WrapString("create_system fails once more systems exist, 0 for no limit"))
	key = "demo"
	flags.Bool(key, false, cmdUtil.WrapString("Provision a demo pool and bucket backed by hosted agents for every new system"))
	key = "demo-nodes"
	flags.Int(key, 3, cmdUtil.WrapString("Number of hosted agents of the demo pool"))
	key = "dev"
	flags.Bool(key, false, cmdUtil.WrapString("Development mode, skips the license server"))
	key = "step-timeout"
	flags.Duration(key, 0, cmdUtil.WrapString("Deadline of every provisioning step (default 30s)"))
	key = "license-url"
	flags.String(key, "", cmdUtil.WrapString("Base url of the license server"))
	key = "ssl-port"
	flags.Int(key, 8443, cmdUtil.WrapString("Port of the storage endpoint reported in the base address"))
	key = "public-dir"
	flags.String(key, "build/public", cmdUtil.WrapString("Directory receiving exported activity logs and diagnostics packages"))
	key = "syslog-conf"
	flags.String(key, "", cmdUtil.WrapString("rsyslog drop-in file managed by configure_remote_syslog (e.g. /etc/rsyslog.d/90-dctl.conf)"))

	// observability
	key = "log-level"
	flags.String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
	key = "log-format"
	flags.String(key, "console", cmdUtil.WrapString("Format of the log output (console, json, logfmt)"))
	key = "metrics-endpoint"
	flags.String(key, "", cmdUtil.WrapString("Address of the prometheus /metrics endpoint, empty disables it"))
}

// hashID maps a human readable replica name to a raft replica id
func hashID(name string) uint64 {
	return xxhash.Sum64String(name)
}

// splitList splits a comma separated flag, dropping empty entries
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	c := serveCmdConfig
	c.ServerSecret = viper.GetString("server-secret")
	c.Backend = common.BackendType(viper.GetString("backend"))
	c.DBEngine = viper.GetString("db-engine")
	c.DataDir = viper.GetString("data-dir")
	c.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	c.SnapshotEntries = viper.GetUint64("snapshot-entries")
	c.CompactionOverhead = viper.GetUint64("compaction-overhead")

	c.Transport = common.ServerTransportConfig{
		Type:           common.TransportType(viper.GetString("transport")),
		Endpoint:       viper.GetString("endpoint"),
		WorkersPerConn: viper.GetInt("workers-per-conn"),
		TCPConf:        common.TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
	}
	c.Serializer = viper.GetString("serializer")
	c.TimeoutSecond = viper.GetInt64("timeout")
	c.Peers = splitList(viper.GetString("peers"))
	c.Address = viper.GetString("address")
	if c.Address == "" {
		c.Address = c.Transport.Endpoint
	}

	c.JWTSecret = viper.GetString("jwt-secret")
	c.TokenTTL = viper.GetDuration("token-ttl")

	c.MaxSystems = viper.GetInt("max-systems")
	c.DemoMode = viper.GetBool("demo")
	c.DemoNodes = viper.GetInt("demo-nodes")
	c.DevMode = viper.GetBool("dev")
	c.StepTimeout = viper.GetDuration("step-timeout")
	c.LicenseURL = viper.GetString("license-url")
	c.SSLPort = viper.GetInt("ssl-port")
	c.PublicDir = viper.GetString("public-dir")
	c.SyslogConfPath = viper.GetString("syslog-conf")
	c.Version = Version

	c.LogLevel = viper.GetString("log-level")
	c.LogFormat = viper.GetString("log-format")
	c.MetricsEndpoint = viper.GetString("metrics-endpoint")

	if c.ServerSecret == "" {
		return fmt.Errorf("server-secret is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt-secret is required")
	}
	if !c.DevMode && c.LicenseURL == "" {
		return fmt.Errorf("license-url is required outside of dev mode")
	}

	if c.Backend != common.BackendRaft {
		return nil
	}

	id := viper.GetString("replica-id")
	if id == "" {
		return fmt.Errorf("replica-id is required for the raft backend")
	}
	c.ReplicaID = hashID(id)

	members := splitList(viper.GetString("cluster-members"))
	if len(members) == 0 {
		return fmt.Errorf("cluster-members is required for the raft backend")
	}
	c.ClusterMembers = make(map[uint64]string, len(members))
	for _, member := range members {
		name, addr, ok := strings.Cut(member, "=")
		if !ok {
			return fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		c.ClusterMembers[hashID(name)] = addr
	}
	if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
		return fmt.Errorf("no address found for replica %s in cluster members", id)
	}
	return nil
}

// run starts the member and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) (err error) {
	if err := logging.Init(serveCmdConfig.LogLevel, serveCmdConfig.LogFormat); err != nil {
		return err
	}
	defer func() { _ = logging.Sync() }()

	a, err := app.New(*serveCmdConfig)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}
