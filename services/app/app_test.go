package app

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/db"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/ValentinKolb/dCtl/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, engine db.Implementation) common.ServerConfig {
	return common.ServerConfig{
		ServerSecret:  "member-1",
		Address:       "127.0.0.1:9090",
		Backend:       common.BackendLocal,
		DBEngine:      string(engine),
		DataDir:       t.TempDir(),
		Serializer:    "binary",
		TimeoutSecond: 5,
		JWTSecret:     "jwt",
		TokenTTL:      time.Hour,
		MaxSystems:    5,
		DevMode:       true,
		StepTimeout:   5 * time.Second,
		PublicDir:     t.TempDir(),
		Version:       "test",
	}
}

func TestProvisionThroughApp(t *testing.T) {
	for _, engine := range []db.Implementation{db.ImplMemDB, db.ImplBolt} {
		t.Run(string(engine), func(t *testing.T) {
			a, err := New(testConfig(t, engine))
			require.NoError(t, err)
			defer func() { assert.NoError(t, a.Close()) }()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			require.NoError(t, a.Load(ctx))
			<-a.System.StartInit(ctx)

			systems := api.NewSystemClient(a.Client)
			reply, err := systems.CreateSystem(ctx, &api.CreateSystemParams{Name: "acme", Email: "a@acme.io", Password: "pw"})
			require.NoError(t, err)

			info, err := systems.ReadSystem(ctx, client.WithAuthToken(reply.Token))
			require.NoError(t, err)
			assert.Equal(t, "acme", info.Name)
			require.NotNil(t, info.Cluster)
			assert.Equal(t, "127.0.0.1:9090", info.Cluster.Members[0].Address)

			pools := api.NewPoolClient(a.Client)
			require.NoError(t, pools.CreateNodesPool(ctx, &api.PoolDefinition{Name: "fast", Nodes: []model.NodeIdentity{}}, client.WithAuthToken(reply.Token)))
			events, err := systems.ReadActivityLog(ctx, &api.ActivityLogFilter{Event: "pool"}, client.WithAuthToken(reply.Token))
			require.NoError(t, err)
			assert.Len(t, events.Logs, 1)
		})
	}
}

func TestUnknownEngine(t *testing.T) {
	_, err := New(testConfig(t, "leveldb"))
	assert.Error(t, err)
}

func TestNotReadyBeforeLoad(t *testing.T) {
	a, err := New(testConfig(t, db.ImplMemDB))
	require.NoError(t, err)
	defer a.Close()

	_, err = api.NewSystemClient(a.Client).CreateSystem(context.Background(), &api.CreateSystemParams{Name: "acme", Email: "a@acme.io", Password: "pw"})
	assert.Error(t, err)
}
