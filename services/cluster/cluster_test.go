package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/db"
	"github.com/ValentinKolb/dCtl/lib/db/engines/memdb"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/lib/store"
	"github.com/ValentinKolb/dCtl/lib/store/lstore"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/ValentinKolb/dCtl/rpc/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

// member is one control plane process sharing backend with its peers
type member struct {
	store  *confstore.Store
	client *client.Client
}

func newMember(t *testing.T, backend store.IStore, secret string, prop confstore.Propagator) *member {
	t.Helper()
	st := confstore.New(confstore.Options{Backend: backend, ServerSecret: secret, Propagator: prop})
	require.NoError(t, st.Load(context.Background()))
	reg := server.NewRegistry(api.Catalog(), auth.NewAuthority([]byte("k"), 0))
	require.NoError(t, api.Register(reg,
		api.NewClusterServerServiceDesc(NewServer(st)),
		api.NewClusterInternalServiceDesc(NewInternal(st)),
	))
	return &member{store: st, client: client.New(client.Options{Local: reg})}
}

func insertMembers(t *testing.T, st *confstore.Store, secrets ...string) {
	t.Helper()
	docs := make([]model.Document, 0, len(secrets))
	for _, s := range secrets {
		docs = append(docs, model.NewClusterDefaults(st.GenerateID(), s, s+":8443"))
	}
	_, err := st.MakeChanges(context.Background(), confstore.Changes{Insert: map[model.Collection][]model.Document{model.Clusters: docs}})
	require.NoError(t, err)
}

func TestPropagation(t *testing.T) {
	backend := lstore.NewLocalStore(func() db.KVDB { return memdb.NewMemDB() })
	peer := newMember(t, backend, "peer", nil)
	origin := newMember(t, backend, "origin", NewPropagator(api.NewClusterInternalClient(peer.client)))

	insertMembers(t, origin.store, "origin", "peer")

	require.Eventually(t, func() bool {
		_, ok := peer.store.LocalCluster()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	od, err := origin.store.Data()
	require.NoError(t, err)
	pd, err := peer.store.Data()
	require.NoError(t, err)
	assert.Equal(t, od.Revision(), pd.Revision())
}

func TestPropagatorCombinesPeerErrors(t *testing.T) {
	backend := lstore.NewLocalStore(func() db.KVDB { return memdb.NewMemDB() })
	up := newMember(t, backend, "up", nil)
	// a client without local registry or remote transport cannot reach anything
	down := client.New(client.Options{})

	p := NewPropagator(
		api.NewClusterInternalClient(down),
		api.NewClusterInternalClient(up.client),
		api.NewClusterInternalClient(down),
	)
	err := p.Publish(context.Background(), 1)
	require.Error(t, err)
	// every peer is called, the first failure does not cancel the rest
	assert.Len(t, multierr.Errors(err), 2)
}

func TestServerTargets(t *testing.T) {
	backend := lstore.NewLocalStore(func() db.KVDB { return memdb.NewMemDB() })
	m := newMember(t, backend, "a", nil)
	insertMembers(t, m.store, "a", "b")
	srv := NewServer(m.store)
	ctx := context.Background()

	_, err := srv.UpdateDNSServers(ctx, &api.DNSServersParams{DNSServers: []string{"1.1.1.1"}})
	require.NoError(t, err)
	_, err = srv.UpdateTimeConfig(ctx, &api.TimeConfig{TargetSecret: "b", Timezone: "UTC", NTPServer: "time.example.com"})
	require.NoError(t, err)
	_, err = srv.UpdateTimeConfig(ctx, &api.TimeConfig{TargetSecret: "nobody", Timezone: "UTC"})
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = srv.UpdateTimeConfig(ctx, &api.TimeConfig{Timezone: "Nowhere/Land"})
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = srv.SetDebugLevel(ctx, &api.DebugLevelParams{Level: 4})
	require.NoError(t, err)

	d, err := m.store.Data()
	require.NoError(t, err)
	a, _ := d.ClusterBySecret("a")
	b, _ := d.ClusterBySecret("b")
	assert.Equal(t, []string{"1.1.1.1"}, a.DNSServers)
	assert.Empty(t, b.DNSServers)
	assert.Nil(t, a.NTP)
	assert.Equal(t, &model.NTP{Server: "time.example.com", Timezone: "UTC"}, b.NTP)
	assert.Equal(t, 4, a.DebugLevel)
	assert.Equal(t, 4, b.DebugLevel)
}
