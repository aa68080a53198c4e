package system

import (
	"context"
	"math"
	"math/big"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/services/account"
	"github.com/ValentinKolb/dCtl/services/node"
	"github.com/ValentinKolb/dCtl/services/pool"
	"golang.org/x/sync/errgroup"
)

// CloudSyncReader returns the cloud sync descriptor of a bucket, nil when
// the bucket is not synced
type CloudSyncReader interface {
	CloudSync(ctx context.Context, b *model.Bucket) (*model.CloudSync, error)
}

// BucketCloudSync reads the descriptor stored on the bucket document
type BucketCloudSync struct{}

func (BucketCloudSync) CloudSync(_ context.Context, b *model.Bucket) (*model.CloudSync, error) {
	if b.CloudSync == nil {
		return nil, nil
	}
	cs := *b.CloudSync
	return &cs, nil
}

// readInputs are the results of the read_system fan out
type readInputs struct {
	noCloud   *node.Aggregate
	withCloud *node.Aggregate
	objects   map[string]*big.Int
	cloudSync []*model.CloudSync // by bucket index
	accounts  []api.AccountInfo
}

// ReadSystem composes the status view of the calling system from the
// config store, the node monitor, the object counters and the account
// service. The inputs are gathered concurrently.
func (s *Service) ReadSystem(ctx context.Context, _ *api.Empty) (*api.SystemInfo, error) {
	_, sys, d, err := s.caller(ctx, "system.read_system")
	if err != nil {
		return nil, err
	}
	buckets := d.BucketsOfSystem(sys.ID)

	in := readInputs{cloudSync: make([]*model.CloudSync, len(buckets))}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.noCloud, err = s.nodes.AggregateByPool(gctx, sys.ID, true)
		return err
	})
	g.Go(func() (err error) {
		in.withCloud, err = s.nodes.AggregateByPool(gctx, sys.ID, false)
		return err
	})
	g.Go(func() (err error) {
		in.objects, err = s.objects.CountObjects(gctx, sys.ID)
		return err
	})
	for i, b := range buckets {
		i, b := i, b
		g.Go(func() (err error) {
			in.cloudSync[i], err = s.cloudSync.CloudSync(gctx, b)
			return err
		})
	}
	g.Go(func() error {
		list, err := api.NewAccountClient(s.client).ListAccounts(gctx)
		if err != nil {
			return err
		}
		in.accounts = list.Accounts
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.compose(d, sys, buckets, in), nil
}

func (s *Service) compose(d *confstore.Data, sys *model.System, buckets []*model.Bucket, in readInputs) *api.SystemInfo {
	info := &api.SystemInfo{
		Name:               sys.Name,
		Objects:            new(big.Int),
		Roles:              roles(d, sys.ID),
		Buckets:            []api.BucketInfo{},
		Pools:              []api.PoolInfo{},
		Tiers:              []api.TierInfo{},
		Nodes:              in.noCloud.Nodes,
		LastStatsReport:    sys.LastStatsReport,
		SSLPort:            s.cfg.SSLPort,
		WebPort:            s.cfg.WebPort,
		WebLinks:           webLinks(sys, s.cfg.Version),
		N2NConfig:          sys.N2NConfig,
		RemoteSyslogConfig: sys.RemoteSyslogConfig,
		Version:            s.cfg.Version,
		DebugLevel:         sys.DebugLevel,
		Accounts:           in.accounts,
	}
	if info.Accounts == nil {
		info.Accounts = []api.AccountInfo{}
	}

	// objects: per bucket counts plus the unattributed ones
	used := new(big.Int)
	for i, b := range buckets {
		count := new(big.Int)
		if n := in.objects[b.ID]; n != nil {
			count.Set(n)
		}
		info.Objects.Add(info.Objects, count)
		size := new(big.Int)
		if b.StorageStats.ObjectsSize != nil {
			size.Set(b.StorageStats.ObjectsSize)
		}
		used.Add(used, size)
		info.Buckets = append(info.Buckets, bucketInfo(d, b, count, size, in.noCloud, in.cloudSync[i]))
	}
	if n := in.objects[""]; n != nil {
		info.Objects.Add(info.Objects, n)
	}

	info.Storage = api.NewStorageInfo()
	info.Storage.Add(in.noCloud.Storage)
	info.Storage.Used.Set(used)

	for _, p := range d.PoolsOfSystem(sys.ID) {
		info.Pools = append(info.Pools, pool.Info(d, p, in.withCloud.Pool(p.ID)))
	}
	for _, t := range d.TiersOfSystem(sys.ID) {
		info.Tiers = append(info.Tiers, tierInfo(d, t, in.noCloud))
	}

	if owner, ok := d.Account(sys.Owner); ok {
		info.Owner = account.Info(d, owner)
	}

	now := s.clock.Now().UnixMilli()
	if sys.MaintenanceMode > now {
		info.MaintenanceMode = api.MaintenanceMode{State: true, Till: sys.MaintenanceMode}
	}

	if u := sys.Upgrade; u != nil {
		info.Upgrade = api.UpgradeInfo{Status: u.Status, Message: u.Error}
	} else {
		info.Upgrade = api.UpgradeInfo{Status: model.UpgradeUnavailable}
	}

	fc := sys.FreemiumCap
	info.PhoneHomeConfig = api.PhoneHomeConfig{
		UpgradedCapNotification: fc.PhoneHomeUpgraded && !fc.PhoneHomeNotified,
		ProxyAddress:            sys.PhoneHomeProxyAddress,
		PhoneHomeUnableComm:     fc.PhoneHomeUnableComm,
	}
	info.SystemCap = math.MaxInt64
	if fc.CapTerabytes != 0 {
		info.SystemCap = fc.CapTerabytes
	}

	info.IPAddress = s.ipAddress()
	info.BaseAddress = sys.BaseAddress
	if info.BaseAddress == "" {
		info.BaseAddress = "wss://" + net.JoinHostPort(info.IPAddress, strconv.Itoa(s.cfg.SSLPort))
	} else if u, err := url.Parse(sys.BaseAddress); err == nil && u.Hostname() != "" {
		if net.ParseIP(u.Hostname()) != nil {
			info.IPAddress = u.Hostname()
		} else {
			info.DNSName = u.Hostname()
		}
	}

	if members := d.Clusters(); len(members) > 0 {
		info.Cluster = &api.ClusterInfo{}
		for _, c := range members {
			info.Cluster.Members = append(info.Cluster.Members, api.ClusterMemberInfo{
				Address:    c.OwnerAddress,
				DebugLevel: c.DebugLevel,
				IsMaster:   c.IsMaster,
			})
		}
	}
	return info
}

// --------------------------------------------------------------------------
// Projections
// --------------------------------------------------------------------------

func roles(d *confstore.Data, system string) []api.RoleInfo {
	byAccount := map[string][]string{}
	for _, r := range d.RolesBySystem(system) {
		byAccount[r.Account] = append(byAccount[r.Account], r.Role)
	}
	out := []api.RoleInfo{}
	for id, names := range byAccount {
		a, ok := d.Account(id)
		if !ok {
			continue
		}
		sort.Strings(names)
		out = append(out, api.RoleInfo{Roles: names, Account: api.AccountRef{Name: a.Name, Email: a.Email}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account.Email < out[j].Account.Email })
	return out
}

// poolsOfPolicy returns the ids of every pool a policy places data on
func poolsOfPolicy(d *confstore.Data, policy string) []string {
	pol, ok := d.Policy(policy)
	if !ok {
		return nil
	}
	var pools []string
	for _, to := range pol.Tiers {
		if t, ok := d.Tier(to.Tier); ok {
			pools = append(pools, t.Pools...)
		}
	}
	return pools
}

func sumPools(agg *node.Aggregate, pools []string) api.StorageInfo {
	storage := api.NewStorageInfo()
	seen := map[string]bool{}
	for _, id := range pools {
		if seen[id] {
			continue
		}
		seen[id] = true
		storage.Add(agg.Pool(id).Storage)
	}
	return storage
}

func bucketInfo(d *confstore.Data, b *model.Bucket, count, size *big.Int, agg *node.Aggregate, cs *model.CloudSync) api.BucketInfo {
	tiering := ""
	if pol, ok := d.Policy(b.Tiering); ok {
		tiering = pol.Name
	}
	return api.BucketInfo{
		Name:       b.Name,
		Tiering:    tiering,
		NumObjects: count,
		Size:       size,
		Storage:    sumPools(agg, poolsOfPolicy(d, b.Tiering)),
		DemoBucket: b.DemoBucket,
		CloudSync:  cs,
	}
}

func tierInfo(d *confstore.Data, t *model.Tier, agg *node.Aggregate) api.TierInfo {
	names := make([]string, 0, len(t.Pools))
	for _, id := range t.Pools {
		if p, ok := d.Pool(id); ok {
			names = append(names, p.Name)
		}
	}
	return api.TierInfo{
		Name:          t.Name,
		DataPlacement: t.DataPlacement,
		Pools:         names,
		Storage:       sumPools(agg, t.Pools),
	}
}

// webLinks maps the installer resources to versioned download links
func webLinks(sys *model.System, version string) map[string]string {
	links := map[string]string{}
	for key, pkg := range sys.Resources {
		if pkg == "" {
			continue
		}
		versioned := strings.Replace(pkg, "dctl-setup", "dctl-setup-"+version, 1)
		versioned = strings.Replace(versioned, "dctl-s3rest", "dctl-s3rest-"+version, 1)
		links[key] = "/public/" + versioned
	}
	return links
}

// ipAddress returns the configured address or the first non loopback IPv4
// address of this host
func (s *Service) ipAddress() string {
	if s.cfg.IPAddress != "" {
		return s.cfg.IPAddress
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && !ipn.IP.IsLoopback() && ipn.IP.To4() != nil {
			return ipn.IP.String()
		}
	}
	return "127.0.0.1"
}
