package client

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/common"
	"github.com/ValentinKolb/dCtl/rpc/schema"
	"github.com/ValentinKolb/dCtl/rpc/serializer"
	"github.com/ValentinKolb/dCtl/rpc/server"
	"github.com/ValentinKolb/dCtl/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetParams struct {
	Name string `json:"name"`
}

type greetReply struct {
	Greeting string `json:"greeting"`
	Account  string `json:"account,omitempty"`
}

type fixture struct {
	registry  *server.Registry
	authority *auth.Authority
	calls     atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog := schema.NewCatalog()
	require.NoError(t, catalog.Add("greeter", "greet",
		`{"type":"object","required":["name"],"properties":{"name":{"type":"string","minLength":1}}}`,
		`{"type":"object","required":["greeting"]}`))
	require.NoError(t, catalog.Add("greeter", "whoami", `{"type":"object"}`, ""))
	require.NoError(t, catalog.Add("greeter", "conflict", "", ""))
	require.NoError(t, catalog.Add("greeter", "panic", "", ""))

	f := &fixture{authority: auth.NewAuthority([]byte("test-secret"), time.Hour)}
	f.registry = server.NewRegistry(catalog, f.authority)

	require.NoError(t, f.registry.RegisterService(server.ServiceDesc{
		Name: "greeter",
		Methods: []server.MethodDesc{
			{Name: "greet", Auth: auth.None, Handler: func(ctx context.Context, req *server.Request) (interface{}, error) {
				f.calls.Add(1)
				var p greetParams
				if err := req.Bind(&p); err != nil {
					return nil, err
				}
				return greetReply{Greeting: "hello " + p.Name}, nil
			}},
			{Name: "whoami", Auth: auth.Account, Handler: func(ctx context.Context, req *server.Request) (interface{}, error) {
				f.calls.Add(1)
				return greetReply{Greeting: "hi", Account: auth.FromContext(ctx).AccountID}, nil
			}},
			{Name: "conflict", Auth: auth.None, Handler: func(ctx context.Context, req *server.Request) (interface{}, error) {
				return nil, errs.New(errs.Conflict, "confstore.MakeChanges", "stale revision")
			}},
			{Name: "panic", Auth: auth.None, Handler: func(ctx context.Context, req *server.Request) (interface{}, error) {
				panic("boom")
			}},
		},
	}))
	return f
}

func (f *fixture) token(t *testing.T, account string) string {
	t.Helper()
	token, err := f.authority.Issue(auth.Session{AccountID: account})
	require.NoError(t, err)
	return token
}

func TestLocalDispatch(t *testing.T) {
	f := newFixture(t)
	c := New(Options{Local: f.registry})
	ctx := context.Background()

	var reply greetReply
	require.NoError(t, c.Call(ctx, "greeter", "greet", greetParams{Name: "ada"}, &reply))
	assert.Equal(t, "hello ada", reply.Greeting)

	// invalid params never reach the handler
	before := f.calls.Load()
	err := c.Call(ctx, "greeter", "greet", greetParams{}, &reply)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, before, f.calls.Load())

	err = c.Call(ctx, "greeter", "whoami", nil, &reply)
	assert.ErrorIs(t, err, errs.ErrAuth)
	assert.Equal(t, before, f.calls.Load())

	require.NoError(t, c.Call(ctx, "greeter", "whoami", nil, &reply, WithAuthToken(f.token(t, "acc-1"))))
	assert.Equal(t, "acc-1", reply.Account)

	assert.ErrorIs(t, c.Call(ctx, "greeter", "conflict", nil, nil), errs.ErrConflict)
	assert.Equal(t, errs.Internal, errs.CodeOf(c.Call(ctx, "greeter", "panic", nil, nil)))
	assert.ErrorIs(t, c.Call(ctx, "greeter", "missing", nil, nil), errs.ErrNotFound)
	assert.ErrorIs(t, c.Call(ctx, "nobody", "greet", nil, nil), errs.ErrNotFound)
}

func TestSessionIsForwarded(t *testing.T) {
	f := newFixture(t)
	c := New(Options{Local: f.registry})

	session, err := f.authority.Verify(f.token(t, "acc-2"))
	require.NoError(t, err)
	ctx := auth.WithSession(context.Background(), session)

	var reply greetReply
	require.NoError(t, c.Call(ctx, "greeter", "whoami", nil, &reply))
	assert.Equal(t, "acc-2", reply.Account)
}

func TestFuture(t *testing.T) {
	f := newFixture(t)
	c := New(Options{Local: f.registry})

	var a, b greetReply
	fa := c.Go(context.Background(), "greeter", "greet", greetParams{Name: "a"}, &a)
	fb := c.Go(context.Background(), "greeter", "greet", greetParams{}, &b)

	require.NoError(t, fa.Wait(context.Background()))
	assert.Equal(t, "hello a", a.Greeting)
	assert.ErrorIs(t, fb.Wait(context.Background()), errs.ErrValidation)

	<-fa.Done()
}

func TestRemoteDispatch(t *testing.T) {
	f := newFixture(t)
	socket := filepath.Join(t.TempDir(), "dctl.sock")

	cfg := common.ServerConfig{
		Transport:     common.ServerTransportConfig{Type: common.TransportUnix, Endpoint: socket},
		Serializer:    "cbor",
		TimeoutSecond: 5,
	}
	s := server.NewRPCServer(cfg, unix.NewUnixServerTransport(0, 0), serializer.NewCBORSerializer(), f.registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := s.Serve(ctx); err != nil {
			t.Errorf("serve: %v", err)
		}
	}()

	clientCfg := common.ClientConfig{
		Transport: common.ClientTransportConfig{
			Type:       common.TransportUnix,
			Endpoints:  []string{socket},
			RetryCount: 1,
		},
		Serializer:    "cbor",
		TimeoutSecond: 5,
	}

	// the server needs a moment to listen
	var c *Client
	require.Eventually(t, func() bool {
		var err error
		c, err = Dial(clientCfg, f.registry.Catalog())
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Ping(ctx))

	var reply greetReply
	require.NoError(t, c.Call(ctx, "greeter", "greet", greetParams{Name: "remote"}, &reply))
	assert.Equal(t, "hello remote", reply.Greeting)

	require.NoError(t, c.Call(ctx, "greeter", "whoami", nil, &reply, WithAuthToken(f.token(t, "acc-3"))))
	assert.Equal(t, "acc-3", reply.Account)

	// codes survive the wire
	err := c.Call(ctx, "greeter", "conflict", nil, nil)
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.True(t, errs.IsRetryable(err))
	assert.ErrorIs(t, c.Call(ctx, "greeter", "whoami", nil, nil), errs.ErrAuth)
}

func TestNoPeers(t *testing.T) {
	c := New(Options{})
	assert.ErrorIs(t, c.Call(context.Background(), "pool", "read_pool", nil, nil), errs.ErrNotFound)
}
