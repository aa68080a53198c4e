package model

import (
	"math/big"
	"strconv"
	"time"
)

// Default names used when a system is provisioned
const (
	DefaultPoolName   = "default_pool"
	DefaultBucketName = "files"
	DemoPoolName      = "demo_pool"
	DemoBucketName    = "demo"

	DefaultCapTerabytes = 20
)

// NewSystemDefaults returns a new system document with all defaults set
func NewSystemDefaults(id, name, owner string) *System {
	return &System{
		ID:    id,
		Name:  name,
		Owner: owner,
		Resources: map[string]string{
			"agent_installer":       "dctl-setup.exe",
			"s3rest_installer":      "dctl-s3rest.exe",
			"linux_agent_installer": "dctl-setup",
		},
		N2NConfig: N2NConfig{
			TCPTLS:              true,
			TCPActive:           true,
			TCPPermanentPassive: &PortRange{Min: 60100, Max: 60600},
			UDPDTLS:             true,
			UDPPort:             true,
		},
		DebugLevel: 0,
		Upgrade: &Upgrade{
			Status: UpgradeUnavailable,
		},
		LastStatsReport: 0,
		FreemiumCap: FreemiumCap{
			CapTerabytes: DefaultCapTerabytes,
		},
	}
}

// NewPoolDefaults returns an empty node pool
func NewPoolDefaults(id, name, system string) *Pool {
	return &Pool{
		ID:     id,
		Name:   name,
		System: system,
		Nodes:  []NodeIdentity{},
	}
}

// NewTierDefaults returns a spread tier over pools
func NewTierDefaults(id, name, system string, pools []string) *Tier {
	return &Tier{
		ID:            id,
		Name:          name,
		System:        system,
		Pools:         pools,
		DataPlacement: PlacementSpread,
	}
}

// NewPolicyDefaults returns a tiering policy
func NewPolicyDefaults(id, name, system string, tiers []TierOrder) *TieringPolicy {
	return &TieringPolicy{
		ID:     id,
		Name:   name,
		System: system,
		Tiers:  tiers,
	}
}

// NewBucketDefaults returns an empty bucket
func NewBucketDefaults(id, name, system, tiering string) *Bucket {
	return &Bucket{
		ID:      id,
		Name:    name,
		System:  system,
		Tiering: tiering,
		StorageStats: StorageStats{
			ObjectsSize:  new(big.Int),
			ObjectsCount: new(big.Int),
		},
	}
}

// NewClusterDefaults returns the member record of a server
func NewClusterDefaults(id, secret, address string) *Cluster {
	return &Cluster{
		ID:           id,
		OwnerSecret:  secret,
		OwnerAddress: address,
		ClusterID:    secret,
	}
}

// SuffixedName appends a base36 millisecond timestamp ("files#lq3k9z1a")
// so tier and policy names of different provisioning runs never collide
func SuffixedName(name string, at time.Time) string {
	return name + "#" + strconv.FormatInt(at.UnixMilli(), 36)
}
