package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/rpc/auth"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/ValentinKolb/dCtl/rpc/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCoversEveryMethod(t *testing.T) {
	cat := Catalog()
	descs := []server.ServiceDesc{
		NewPoolServiceDesc(struct{ PoolService }{}),
		NewSystemServiceDesc(struct{ SystemService }{}),
		NewAccountServiceDesc(struct{ AccountService }{}),
		NewClusterServerServiceDesc(struct{ ClusterServerService }{}),
		NewClusterInternalServiceDesc(struct{ ClusterInternalService }{}),
		NewHostedAgentsServiceDesc(struct{ HostedAgentsService }{}),
		NewNodeServiceDesc(struct{ NodeService }{}),
	}
	for _, d := range descs {
		for _, m := range d.Methods {
			_, ok := cat.Lookup(d.Name, m.Name)
			assert.True(t, ok, "%s.%s has no schema", d.Name, m.Name)
		}
	}
	assert.Same(t, cat, Catalog())
}

func TestSchemas(t *testing.T) {
	cat := Catalog()
	tests := []struct {
		service, method, params string
		valid                   bool
	}{
		{ServicePool, MethodCreateNodesPool, `{"name":"p","nodes":[]}`, true},
		{ServicePool, MethodCreateNodesPool, `{"name":"p"}`, false},
		{ServicePool, MethodCreateCloudPool, `{"name":"c","connection":"aws","target_bucket":"b"}`, true},
		{ServicePool, MethodReadPool, `{}`, false},
		{ServiceSystem, MethodCreateSystem, `{"name":"s","email":"a@b.c","password":"x"}`, true},
		{ServiceSystem, MethodCreateSystem, `{"name":"s","email":"not-an-email","password":"x"}`, false},
		{ServiceSystem, MethodUpdatePhoneHomeConfig, `{"proxy_address":null}`, true},
		{ServiceSystem, MethodUpdatePhoneHomeConfig, `{}`, false},
		{ServiceSystem, MethodConfigureRemoteSyslog, `{"enabled":true,"protocol":"TCP","address":"h","port":514}`, true},
		{ServiceSystem, MethodConfigureRemoteSyslog, `{"enabled":true,"protocol":"SCTP"}`, false},
		{ServiceSystem, MethodAddRole, `{"email":"a@b.c","role":"king"}`, false},
		{ServiceClusterInternal, MethodLoadSystemStore, `{"revision":12}`, true},
	}
	for _, tt := range tests {
		err := cat.ValidateParams(tt.service, tt.method, []byte(tt.params))
		if tt.valid {
			assert.NoError(t, err, "%s.%s %s", tt.service, tt.method, tt.params)
		} else {
			assert.Equal(t, errs.Validation, errs.CodeOf(err), "%s.%s %s", tt.service, tt.method, tt.params)
		}
	}
}

type fakePools struct {
	PoolService
	created []PoolDefinition
}

func (f *fakePools) CreateNodesPool(ctx context.Context, p *PoolDefinition) (Empty, error) {
	if s := auth.FromContext(ctx); s == nil || s.SystemID == "" {
		return Empty{}, errs.New(errs.Auth, "test", "no system")
	}
	f.created = append(f.created, *p)
	return Empty{}, nil
}

func (f *fakePools) GetAssociatedBuckets(ctx context.Context, p *PoolName) ([]string, error) {
	return []string{"files", p.Name}, nil
}

func (f *fakePools) ReadPool(ctx context.Context, p *PoolName) (*PoolInfo, error) {
	return nil, nil
}

func TestTypedDispatch(t *testing.T) {
	authority := auth.NewAuthority([]byte("secret"), time.Hour)
	registry := server.NewRegistry(Catalog(), authority)
	pools := &fakePools{}
	require.NoError(t, Register(registry, NewPoolServiceDesc(pools)))

	c := NewPoolClient(client.New(client.Options{Local: registry}))
	ctx := context.Background()

	admin, err := authority.Issue(auth.Session{AccountID: "a", SystemID: "s", Role: model.RoleAdmin})
	require.NoError(t, err)
	viewer, err := authority.Issue(auth.Session{AccountID: "b", SystemID: "s", Role: model.RoleViewer})
	require.NoError(t, err)

	def := &PoolDefinition{Name: "p1", Nodes: []model.NodeIdentity{{Name: "n1"}}}
	require.NoError(t, c.CreateNodesPool(ctx, def, client.WithAuthToken(admin)))
	require.Len(t, pools.created, 1)
	assert.Equal(t, "n1", pools.created[0].Nodes[0].Name)

	err = c.CreateNodesPool(ctx, def, client.WithAuthToken(viewer))
	assert.Equal(t, errs.Auth, errs.CodeOf(err))
	assert.Len(t, pools.created, 1)

	buckets, err := c.GetAssociatedBuckets(ctx, "p1", client.WithAuthToken(admin))
	require.NoError(t, err)
	assert.Equal(t, []string{"files", "p1"}, buckets)

	// a typed nil reply arrives as an empty object
	info, err := c.ReadPool(ctx, "p1", client.WithAuthToken(admin))
	require.NoError(t, err)
	assert.NotNil(t, info)
}

func TestStorageInfoJSON(t *testing.T) {
	s := NewStorageInfo()
	s.Total.SetString("18446744073709551616000", 10)
	other := NewStorageInfo()
	other.Total.SetInt64(1)
	s.Add(other)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"total":18446744073709551616001`)
}
