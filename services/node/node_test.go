package node

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/db"
	"github.com/ValentinKolb/dCtl/lib/db/engines/memdb"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/lib/store/lstore"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storage(total int64) api.StorageInfo {
	s := api.NewStorageInfo()
	s.Total.SetInt64(total)
	s.Free.SetInt64(total / 2)
	return s
}

func TestAggregateByPool(t *testing.T) {
	m := NewMonitor(nil)
	m.Report(Report{Name: "a", System: "s1", Pool: "p1", Online: true, Storage: storage(100)})
	m.Report(Report{Name: "b", System: "s1", Pool: "p1", Issues: true, Storage: storage(50)})
	m.Report(Report{Name: "c", System: "s1", Pool: "cloud", Online: true, Cloud: true, Storage: storage(1000)})
	m.Report(Report{Name: "x", System: "s2", Pool: "p9", Online: true})

	agg, err := m.AggregateByPool(context.Background(), "s1", true)
	require.NoError(t, err)
	assert.Equal(t, api.NodesInfo{Count: 2, Online: 1, HasIssues: 1}, agg.Nodes)
	assert.Equal(t, int64(150), agg.Storage.Total.Int64())
	assert.Equal(t, int64(75), agg.Pool("p1").Storage.Free.Int64())
	assert.Zero(t, agg.Pool("cloud").Nodes.Count)

	agg, err = m.AggregateByPool(context.Background(), "s1", false)
	require.NoError(t, err)
	assert.Equal(t, 3, agg.Nodes.Count)
	assert.Equal(t, int64(1150), agg.Storage.Total.Int64())

	// a later report replaces the earlier one
	m.Report(Report{Name: "b", System: "s1", Pool: "p1", Online: true, Storage: storage(50)})
	agg, err = m.AggregateByPool(context.Background(), "s1", true)
	require.NoError(t, err)
	assert.Equal(t, api.NodesInfo{Count: 2, Online: 2}, agg.Nodes)
}

func TestCountObjectsReturnsCopies(t *testing.T) {
	m := NewMonitor(nil)
	n := new(big.Int).Lsh(big.NewInt(1), 70)
	m.SetObjectCount("s1", "b1", n)
	n.SetInt64(1)

	counts, err := m.CountObjects(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 71, counts["b1"].BitLen())
	counts["b1"].SetInt64(0)

	again, err := m.CountObjects(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 71, again["b1"].BitLen())
}

func TestSyncMonitorToStore(t *testing.T) {
	st := confstore.New(confstore.Options{Backend: lstore.NewLocalStore(func() db.KVDB { return memdb.NewMemDB() })})
	require.NoError(t, st.Load(context.Background()))
	sys, pool := st.GenerateID(), st.GenerateID()
	_, err := st.MakeChanges(context.Background(), confstore.Changes{Insert: map[model.Collection][]model.Document{
		model.Systems: {model.NewSystemDefaults(sys, "acme", "owner")},
		model.Pools:   {model.NewPoolDefaults(pool, "p", sys)},
	}})
	require.NoError(t, err)

	m := NewMonitor(st)
	m.Report(Report{Name: "kept", System: sys, Pool: pool})
	m.Report(Report{Name: "stale", System: sys, Pool: "gone"})

	// without a system in the session nothing is dropped
	_, err = m.SyncMonitorToStore(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, m.Nodes(sys), 2)

	ctx := auth.WithSession(context.Background(), &auth.Session{SystemID: sys})
	_, err = m.SyncMonitorToStore(ctx, nil)
	require.NoError(t, err)
	nodes := m.Nodes(sys)
	require.Len(t, nodes, 1)
	assert.Equal(t, "kept", nodes[0].Name)
}

func TestCollectDiagnostics(t *testing.T) {
	m := NewMonitor(nil)
	m.Report(Report{Name: "a", System: "s1", Pool: "p1", Online: true})

	raw, err := m.CollectDiagnostics(context.Background(), "s1", "a")
	require.NoError(t, err)
	var r Report
	require.NoError(t, json.Unmarshal(raw, &r))
	assert.Equal(t, "p1", r.Pool)
	assert.True(t, r.Online)

	_, err = m.CollectDiagnostics(context.Background(), "s2", "a")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
