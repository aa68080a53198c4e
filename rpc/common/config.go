package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ConfigShardID is the raft shard replicating the configuration key space
const ConfigShardID uint64 = 1

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            ConfigShardID,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// TransportType selects the wire transport
type TransportType string

const (
	TransportTCP  TransportType = "tcp"
	TransportUnix TransportType = "unix"
	TransportHTTP TransportType = "http"
)

// SocketConf holds socket buffer sizes (0 keeps the OS default)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific socket options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	// TCPLingerSec < 0 keeps the OS default
	TCPLingerSec int
}

// ServerTransportConfig configures the listening side
type ServerTransportConfig struct {
	Type           TransportType
	Endpoint       string
	WorkersPerConn int
	BufferSize     int
	SocketConf     SocketConf
	TCPConf        TCPConf
}

// ClientTransportConfig configures the dialing side
type ClientTransportConfig struct {
	Type                   TransportType
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf             SocketConf
	TCPConf                TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// BackendType selects where the configuration key space is persisted
type BackendType string

const (
	BackendLocal BackendType = "local" // single process, lstore
	BackendRaft  BackendType = "raft"  // replicated, dstore
)

// ServerConfig holds all configuration parameters of a control plane member.
type ServerConfig struct {
	// Identity of this member, matched against the cluster documents
	ServerSecret string
	Address      string

	// Durable layer
	Backend  BackendType
	DBEngine string
	DataDir  string

	// Dragonboat parameters (Backend == raft)
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// RPC
	Transport     ServerTransportConfig
	Serializer    string
	TimeoutSecond int64
	// Peers are the rpc endpoints of the other members, used for remote
	// dispatch and commit propagation
	Peers []string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Provisioning
	MaxSystems  int
	DemoMode    bool
	DemoNodes   int
	DevMode     bool
	StepTimeout time.Duration
	LicenseURL  string
	SSLPort     int
	PublicDir   string
	Version     string
	// SyslogConfPath is the rsyslog drop-in rewritten by
	// configure_remote_syslog, empty disables host syslog management
	SyslogConfPath string

	// Observability
	LogLevel        string
	LogFormat       string
	MetricsEndpoint string
}

// PeerClientConfig derives the client config used to reach the peers
func (c *ServerConfig) PeerClientConfig() ClientConfig {
	return ClientConfig{
		Transport: ClientTransportConfig{
			Type:                   c.Transport.Type,
			Endpoints:              c.Peers,
			RetryCount:             3,
			ConnectionsPerEndpoint: 1,
			SocketConf:             c.Transport.SocketConf,
			TCPConf:                c.Transport.TCPConf,
		},
		Serializer:    c.Serializer,
		TimeoutSecond: int(c.TimeoutSecond),
	}
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Member")
	addField("Address", c.Address)
	addField("Server Secret", mask(c.ServerSecret))

	addSection("RPC Server")
	addField("Transport", string(c.Transport.Type))
	addField("Endpoint", c.Transport.Endpoint)
	addField("Serializer", c.Serializer)
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	for i, p := range c.Peers {
		addField("Peer "+strconv.Itoa(i), p)
	}

	addSection("Provisioning")
	addField("Max Systems", strconv.Itoa(c.MaxSystems))
	addField("Demo Mode", fmt.Sprintf("%t (%d nodes)", c.DemoMode, c.DemoNodes))
	addField("Dev Mode", fmt.Sprintf("%t", c.DevMode))
	addField("Step Timeout", c.StepTimeout.String())
	addField("License URL", c.LicenseURL)
	addField("Public Dir", c.PublicDir)
	if c.SyslogConfPath != "" {
		addField("Syslog Config", c.SyslogConfPath)
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	addField("Log Format", c.LogFormat)
	if c.MetricsEndpoint != "" {
		addField("Metrics", c.MetricsEndpoint)
	}

	addSection("Storage")
	addField("Backend", string(c.Backend))
	addField("Engine", c.DBEngine)
	addField("Data Directory", c.DataDir)

	if c.Backend == BackendRaft {
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

		addSection("Cluster")
		sb.WriteString("  Initial Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

func mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-4)
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Transport     ClientTransportConfig
	Serializer    string
	TimeoutSecond int
	AuthToken     string
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Transport", string(c.Transport.Type))
	addField("Serializer", c.Serializer)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
