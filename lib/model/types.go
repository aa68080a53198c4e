package model

import (
	"math/big"
	"net/mail"
	"strings"
)

// --------------------------------------------------------------------------
// System
// --------------------------------------------------------------------------

// UpgradeStatus values
const (
	UpgradeUnavailable = "UNAVAILABLE"
)

// PortRange is an inclusive port range
type PortRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// N2NConfig configures the node to node transports
type N2NConfig struct {
	TCPTLS              bool       `json:"tcp_tls"`
	TCPActive           bool       `json:"tcp_active"`
	TCPPermanentPassive *PortRange `json:"tcp_permanent_passive,omitempty"`
	TCPTransient        bool       `json:"tcp_transient,omitempty"`
	TCPSimultaneousOpen bool       `json:"tcp_simultaneous_open,omitempty"`
	UDPDTLS             bool       `json:"udp_dtls"`
	UDPPort             bool       `json:"udp_port"`
	StunServers         []string   `json:"stun_servers,omitempty"`
}

// Upgrade is the state of the last upgrade attempt
type Upgrade struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// FreemiumCap tracks the capacity cap and the phone home state around it
type FreemiumCap struct {
	CapTerabytes        int64 `json:"cap_terabytes,omitempty"`
	PhoneHomeUpgraded   bool  `json:"phone_home_upgraded"`
	PhoneHomeNotified   bool  `json:"phone_home_notified"`
	PhoneHomeUnableComm bool  `json:"phone_home_unable_comm,omitempty"`
}

// RemoteSyslogConfig points the system log at a remote collector
type RemoteSyslogConfig struct {
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
}

// System is a tenant namespace
type System struct {
	ID                    string              `json:"_id"`
	Name                  string              `json:"name"`
	Owner                 string              `json:"owner"`
	Resources             map[string]string   `json:"resources,omitempty"`
	N2NConfig             N2NConfig           `json:"n2n_config"`
	DebugLevel            int                 `json:"debug_level"`
	Upgrade               *Upgrade            `json:"upgrade,omitempty"`
	LastStatsReport       int64               `json:"last_stats_report"`
	FreemiumCap           FreemiumCap         `json:"freemium_cap"`
	MaintenanceMode       int64               `json:"maintenance_mode,omitempty"` // expiry, unix ms
	BaseAddress           string              `json:"base_address,omitempty"`
	PhoneHomeProxyAddress string              `json:"phone_home_proxy_address,omitempty"`
	RemoteSyslogConfig    *RemoteSyslogConfig `json:"remote_syslog_config,omitempty"`
}

func (s *System) GetID() string          { return s.ID }
func (s *System) SetID(id string)        { s.ID = id }
func (s *System) Collection() Collection { return Systems }

func (s *System) Validate() error {
	c := newChecker(s)
	c.required("name", s.Name)
	// owner is created by the account service after the system, so it is not a Ref
	c.required("owner", s.Owner)
	if r := s.N2NConfig.TCPPermanentPassive; r != nil && (r.Min <= 0 || r.Max < r.Min || r.Max > 65535) {
		c.fail("n2n_config.tcp_permanent_passive", "invalid port range %d-%d", r.Min, r.Max)
	}
	if s.DebugLevel < 0 {
		c.fail("debug_level", "must not be negative")
	}
	if r := s.RemoteSyslogConfig; r != nil {
		if r.Protocol != "TCP" && r.Protocol != "UDP" {
			c.fail("remote_syslog_config.protocol", "must be TCP or UDP, got %q", r.Protocol)
		}
		c.required("remote_syslog_config.address", r.Address)
		if r.Port <= 0 || r.Port > 65535 {
			c.fail("remote_syslog_config.port", "invalid port %d", r.Port)
		}
	}
	return c.err()
}

func (s *System) Refs() []Ref { return nil }

func (s *System) UniqueKeys() []string {
	return []string{SystemNameKey(s.Name)}
}

// --------------------------------------------------------------------------
// Pool
// --------------------------------------------------------------------------

// NodeIdentity identifies a storage node
type NodeIdentity struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Peer string `json:"peer,omitempty"`
	RPC  string `json:"rpc_address,omitempty"`
}

// CloudPoolInfo describes a cloud target backing a pool
type CloudPoolInfo struct {
	Endpoint     string `json:"endpoint"`
	TargetBucket string `json:"target_bucket"`
	Connection   string `json:"connection,omitempty"`
}

// Pool is a named group of storage nodes or a cloud target
type Pool struct {
	ID            string         `json:"_id"`
	Name          string         `json:"name"`
	System        string         `json:"system"`
	Nodes         []NodeIdentity `json:"nodes,omitempty"`
	CloudPoolInfo *CloudPoolInfo `json:"cloud_pool_info,omitempty"`
	DemoPool      bool           `json:"demo_pool,omitempty"`
}

func (p *Pool) GetID() string          { return p.ID }
func (p *Pool) SetID(id string)        { p.ID = id }
func (p *Pool) Collection() Collection { return Pools }

func (p *Pool) Validate() error {
	c := newChecker(p)
	c.required("name", p.Name)
	c.ref("system", p.System)
	if p.CloudPoolInfo != nil {
		c.required("cloud_pool_info.target_bucket", p.CloudPoolInfo.TargetBucket)
		if len(p.Nodes) > 0 {
			c.fail("nodes", "a cloud pool has no nodes")
		}
	}
	return c.err()
}

func (p *Pool) Refs() []Ref {
	return []Ref{{Field: "system", Collection: Systems, ID: p.System}}
}

func (p *Pool) UniqueKeys() []string {
	return []string{ScopedNameKey(Pools, p.System, p.Name)}
}

// IsCloud reports whether the pool is backed by a cloud target
func (p *Pool) IsCloud() bool {
	return p.CloudPoolInfo != nil
}

// --------------------------------------------------------------------------
// Tier
// --------------------------------------------------------------------------

// Data placement of a tier
const (
	PlacementSpread = "SPREAD"
	PlacementMirror = "MIRROR"
)

// Tier is a storage class backed by an ordered list of pools
type Tier struct {
	ID            string   `json:"_id"`
	Name          string   `json:"name"`
	System        string   `json:"system"`
	Pools         []string `json:"pools"`
	DataPlacement string   `json:"data_placement"`
}

func (t *Tier) GetID() string          { return t.ID }
func (t *Tier) SetID(id string)        { t.ID = id }
func (t *Tier) Collection() Collection { return Tiers }

func (t *Tier) Validate() error {
	c := newChecker(t)
	c.required("name", t.Name)
	c.ref("system", t.System)
	for _, p := range t.Pools {
		c.ref("pools", p)
	}
	if t.DataPlacement != PlacementSpread && t.DataPlacement != PlacementMirror {
		c.fail("data_placement", "must be SPREAD or MIRROR, got %q", t.DataPlacement)
	}
	return c.err()
}

func (t *Tier) Refs() []Ref {
	refs := []Ref{{Field: "system", Collection: Systems, ID: t.System}}
	for _, p := range t.Pools {
		refs = append(refs, Ref{Field: "pools", Collection: Pools, ID: p})
	}
	return refs
}

func (t *Tier) UniqueKeys() []string {
	return []string{ScopedNameKey(Tiers, t.System, t.Name)}
}

// --------------------------------------------------------------------------
// TieringPolicy
// --------------------------------------------------------------------------

// TierOrder places a tier inside a policy
type TierOrder struct {
	Tier  string `json:"tier"`
	Order int    `json:"order"`
}

// TieringPolicy is an ordered list of tiers
type TieringPolicy struct {
	ID     string      `json:"_id"`
	Name   string      `json:"name"`
	System string      `json:"system"`
	Tiers  []TierOrder `json:"tiers"`
}

func (p *TieringPolicy) GetID() string          { return p.ID }
func (p *TieringPolicy) SetID(id string)        { p.ID = id }
func (p *TieringPolicy) Collection() Collection { return TieringPolicies }

func (p *TieringPolicy) Validate() error {
	c := newChecker(p)
	c.required("name", p.Name)
	c.ref("system", p.System)
	seen := map[int]bool{}
	for _, t := range p.Tiers {
		c.ref("tiers.tier", t.Tier)
		if t.Order < 0 {
			c.fail("tiers.order", "must not be negative")
		}
		if seen[t.Order] {
			c.fail("tiers.order", "duplicate order %d", t.Order)
		}
		seen[t.Order] = true
	}
	return c.err()
}

func (p *TieringPolicy) Refs() []Ref {
	refs := []Ref{{Field: "system", Collection: Systems, ID: p.System}}
	for _, t := range p.Tiers {
		refs = append(refs, Ref{Field: "tiers.tier", Collection: Tiers, ID: t.Tier})
	}
	return refs
}

func (p *TieringPolicy) UniqueKeys() []string {
	return []string{ScopedNameKey(TieringPolicies, p.System, p.Name)}
}

// --------------------------------------------------------------------------
// Bucket
// --------------------------------------------------------------------------

// StorageStats are the usage counters of a bucket. Both values may exceed 2^53.
type StorageStats struct {
	ObjectsSize  *big.Int `json:"objects_size,omitempty"`
	ObjectsCount *big.Int `json:"objects_count,omitempty"`
}

// CloudSync describes a bucket replicated to a cloud target
type CloudSync struct {
	Endpoint       string `json:"endpoint"`
	TargetBucket   string `json:"target_bucket"`
	Connection     string `json:"connection,omitempty"`
	ScheduleMin    int    `json:"schedule_min,omitempty"`
	Paused         bool   `json:"paused,omitempty"`
	LastSync       int64  `json:"last_sync,omitempty"`
	C2NEnabled     bool   `json:"c2n_enabled,omitempty"`
	N2CEnabled     bool   `json:"n2c_enabled,omitempty"`
	AdditionsOnly  bool   `json:"additions_only,omitempty"`
	ExcludeFolders bool   `json:"exclude_folders,omitempty"`
}

// Bucket is a namespace for objects
type Bucket struct {
	ID           string       `json:"_id"`
	Name         string       `json:"name"`
	System       string       `json:"system"`
	Tiering      string       `json:"tiering"`
	StorageStats StorageStats `json:"storage_stats"`
	DemoBucket   bool         `json:"demo_bucket,omitempty"`
	CloudSync    *CloudSync   `json:"cloud_sync,omitempty"`
}

func (b *Bucket) GetID() string          { return b.ID }
func (b *Bucket) SetID(id string)        { b.ID = id }
func (b *Bucket) Collection() Collection { return Buckets }

func (b *Bucket) Validate() error {
	c := newChecker(b)
	c.required("name", b.Name)
	c.ref("system", b.System)
	c.ref("tiering", b.Tiering)
	if s := b.StorageStats.ObjectsSize; s != nil && s.Sign() < 0 {
		c.fail("storage_stats.objects_size", "must not be negative")
	}
	if s := b.StorageStats.ObjectsCount; s != nil && s.Sign() < 0 {
		c.fail("storage_stats.objects_count", "must not be negative")
	}
	return c.err()
}

func (b *Bucket) Refs() []Ref {
	return []Ref{
		{Field: "system", Collection: Systems, ID: b.System},
		{Field: "tiering", Collection: TieringPolicies, ID: b.Tiering},
	}
}

func (b *Bucket) UniqueKeys() []string {
	return []string{ScopedNameKey(Buckets, b.System, b.Name)}
}

// --------------------------------------------------------------------------
// Account
// --------------------------------------------------------------------------

// AccessKey is an S3 style credential pair
type AccessKey struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// Account is a user. Password holds a bcrypt hash, never the clear text.
type Account struct {
	ID             string      `json:"_id"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	Password       string      `json:"password,omitempty"`
	IsSupport      bool        `json:"is_support,omitempty"`
	AccessKeys     []AccessKey `json:"access_keys,omitempty"`
	AllowedBuckets []string    `json:"allowed_buckets,omitempty"`
}

func (a *Account) GetID() string          { return a.ID }
func (a *Account) SetID(id string)        { a.ID = id }
func (a *Account) Collection() Collection { return Accounts }

func (a *Account) Validate() error {
	c := newChecker(a)
	c.required("name", a.Name)
	if _, err := mail.ParseAddress(a.Email); err != nil {
		c.fail("email", "invalid address %q", a.Email)
	}
	if a.Password != "" && !strings.HasPrefix(a.Password, "$2") {
		c.fail("password", "must be a bcrypt hash")
	}
	for _, b := range a.AllowedBuckets {
		c.ref("allowed_buckets", b)
	}
	return c.err()
}

func (a *Account) Refs() []Ref {
	var refs []Ref
	for _, b := range a.AllowedBuckets {
		refs = append(refs, Ref{Field: "allowed_buckets", Collection: Buckets, ID: b})
	}
	return refs
}

func (a *Account) UniqueKeys() []string {
	return []string{AccountEmailKey(strings.ToLower(a.Email))}
}

// --------------------------------------------------------------------------
// Role
// --------------------------------------------------------------------------

// Role names
const (
	RoleAdmin    = "admin"
	RoleUser     = "user"
	RoleViewer   = "viewer"
	RoleOperator = "operator"
)

// Role grants an account a role on a system
type Role struct {
	ID      string `json:"_id"`
	Account string `json:"account"`
	System  string `json:"system"`
	Role    string `json:"role"`
}

func (r *Role) GetID() string          { return r.ID }
func (r *Role) SetID(id string)        { r.ID = id }
func (r *Role) Collection() Collection { return Roles }

func (r *Role) Validate() error {
	c := newChecker(r)
	c.ref("account", r.Account)
	c.ref("system", r.System)
	switch r.Role {
	case RoleAdmin, RoleUser, RoleViewer, RoleOperator:
	default:
		c.fail("role", "unknown role %q", r.Role)
	}
	return c.err()
}

func (r *Role) Refs() []Ref {
	return []Ref{
		{Field: "account", Collection: Accounts, ID: r.Account},
		{Field: "system", Collection: Systems, ID: r.System},
	}
}

func (r *Role) UniqueKeys() []string {
	return []string{
		RoleByAccountPrefix(r.Account) + r.System + "/" + r.Role,
		RoleBySystemPrefix(r.System) + r.Account + "/" + r.Role,
	}
}

// --------------------------------------------------------------------------
// Cluster
// --------------------------------------------------------------------------

// NTP is the time configuration of a cluster member
type NTP struct {
	Server   string `json:"server,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Cluster is a member of the control plane cluster
type Cluster struct {
	ID           string   `json:"_id"`
	OwnerSecret  string   `json:"owner_secret"`
	OwnerAddress string   `json:"owner_address"`
	ClusterID    string   `json:"cluster_id"`
	DebugLevel   int      `json:"debug_level"`
	DNSServers   []string `json:"dns_servers,omitempty"`
	NTP          *NTP     `json:"ntp,omitempty"`
	IsMaster     bool     `json:"is_master,omitempty"`
}

func (c *Cluster) GetID() string          { return c.ID }
func (c *Cluster) SetID(id string)        { c.ID = id }
func (c *Cluster) Collection() Collection { return Clusters }

func (c *Cluster) Validate() error {
	ch := newChecker(c)
	ch.required("owner_secret", c.OwnerSecret)
	if c.DebugLevel < 0 {
		ch.fail("debug_level", "must not be negative")
	}
	return ch.err()
}

func (c *Cluster) Refs() []Ref { return nil }

func (c *Cluster) UniqueKeys() []string {
	return []string{ClusterSecretKey(c.OwnerSecret)}
}
