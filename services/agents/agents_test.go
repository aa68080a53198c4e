package agents

import (
	"context"
	"testing"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/db"
	"github.com/ValentinKolb/dCtl/lib/db/engines/memdb"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/lib/store/lstore"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/services/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAgent(t *testing.T) {
	st := confstore.New(confstore.Options{Backend: lstore.NewLocalStore(func() db.KVDB { return memdb.NewMemDB() })})
	require.NoError(t, st.Load(context.Background()))
	sys, demo := st.GenerateID(), st.GenerateID()
	_, err := st.MakeChanges(context.Background(), confstore.Changes{Insert: map[model.Collection][]model.Document{
		model.Systems: {model.NewSystemDefaults(sys, "acme", "owner")},
		model.Pools:   {model.NewPoolDefaults(demo, model.DemoPoolName, sys)},
	}})
	require.NoError(t, err)

	mon := node.NewMonitor(st)
	svc := New(st, mon)

	_, err = svc.CreateAgent(context.Background(), &api.CreateAgentParams{Name: "acme", Scale: 1})
	assert.ErrorIs(t, err, errs.ErrAuth)

	ctx := auth.WithSession(context.Background(), &auth.Session{SystemID: sys, Role: model.RoleAdmin})
	_, err = svc.CreateAgent(ctx, &api.CreateAgentParams{Name: "acme", Scale: 1})
	assert.ErrorIs(t, err, errs.ErrNotFound, "the default pool does not exist")

	_, err = svc.CreateAgent(ctx, &api.CreateAgentParams{Name: "acme", Demo: true, Scale: 2, StorageLimit: 1 << 30})
	require.NoError(t, err)

	agents := svc.Agents(sys)
	require.Len(t, agents, 2)
	assert.Equal(t, "acme-agent-0", agents[0].Name)
	assert.Equal(t, "acme-agent-1", agents[1].Name)

	agg, err := mon.AggregateByPool(context.Background(), sys, false)
	require.NoError(t, err)
	p := agg.Pool(demo)
	assert.Equal(t, api.NodesInfo{Count: 2, Online: 2}, p.Nodes)
	assert.Equal(t, int64(2<<30), p.Storage.Total.Int64())
	assert.Equal(t, int64(2<<30), p.Storage.Free.Int64())
}
