package confstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dCtl/lib/db"
	"github.com/ValentinKolb/dCtl/lib/db/engines/memdb"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/lib/store"
	"github.com/ValentinKolb/dCtl/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend() store.IStore {
	return lstore.NewLocalStore(func() db.KVDB { return memdb.NewMemDB() })
}

func newLoaded(t *testing.T, backend store.IStore, opts ...func(*Options)) *Store {
	t.Helper()
	o := Options{Backend: backend, ServerSecret: "secret-1"}
	for _, fn := range opts {
		fn(&o)
	}
	s := New(o)
	require.NoError(t, s.Load(context.Background()))
	return s
}

// systemGraph builds a system with one pool, tier, policy and bucket
type systemGraph struct {
	system *model.System
	pool   *model.Pool
	tier   *model.Tier
	policy *model.TieringPolicy
	bucket *model.Bucket
}

func newGraph(s *Store, name string) systemGraph {
	g := systemGraph{}
	g.system = model.NewSystemDefaults(s.GenerateID(), name, s.GenerateID())
	g.pool = model.NewPoolDefaults(s.GenerateID(), model.DefaultPoolName, g.system.ID)
	g.tier = model.NewTierDefaults(s.GenerateID(), "tier", g.system.ID, []string{g.pool.ID})
	g.policy = model.NewPolicyDefaults(s.GenerateID(), "policy", g.system.ID, []model.TierOrder{{Tier: g.tier.ID, Order: 0}})
	g.bucket = model.NewBucketDefaults(s.GenerateID(), model.DefaultBucketName, g.system.ID, g.policy.ID)
	return g
}

// changes lists the documents children first, so forward references are exercised
func (g systemGraph) changes() Changes {
	return Changes{Insert: map[model.Collection][]model.Document{
		model.Buckets:         {g.bucket},
		model.TieringPolicies: {g.policy},
		model.Tiers:           {g.tier},
		model.Pools:           {g.pool},
		model.Systems:         {g.system},
	}}
}

func TestNotReady(t *testing.T) {
	s := New(Options{Backend: newBackend()})
	assert.False(t, s.IsFinishedInitialLoad())

	_, err := s.Data()
	assert.ErrorIs(t, err, errs.ErrNotReady)

	_, err = s.MakeChanges(context.Background(), Changes{})
	assert.ErrorIs(t, err, errs.ErrNotReady)

	_, err = s.MakeChangesAt(context.Background(), 0, Changes{})
	assert.ErrorIs(t, err, errs.ErrNotReady)

	require.NoError(t, s.Load(context.Background()))
	assert.True(t, s.IsFinishedInitialLoad())
}

func TestInsertGraphWithForwardRefs(t *testing.T) {
	s := newLoaded(t, newBackend())
	g := newGraph(s, "acme")

	rev, err := s.MakeChanges(context.Background(), g.changes())
	require.NoError(t, err)
	assert.EqualValues(t, 1, rev)

	d, err := s.Data()
	require.NoError(t, err)
	assert.EqualValues(t, 1, d.Revision())

	sys, ok := d.SystemByName("acme")
	require.True(t, ok)
	assert.Equal(t, g.system.ID, sys.ID)

	pool, ok := d.PoolByName(sys.ID, model.DefaultPoolName)
	require.True(t, ok)
	assert.Equal(t, g.pool.ID, pool.ID)

	b, ok := d.BucketByName(sys.ID, model.DefaultBucketName)
	require.True(t, ok)
	assert.Equal(t, g.policy.ID, b.Tiering)

	assert.Len(t, d.BucketsUsingPool(pool), 1)
	assert.Len(t, d.PoolsOfSystem(sys.ID), 1)
}

// A batch with one invalid operation leaves documents and indexes unchanged.
func TestAtomicity(t *testing.T) {
	backend := newBackend()
	s := newLoaded(t, backend)
	g := newGraph(s, "acme")
	_, err := s.MakeChanges(context.Background(), g.changes())
	require.NoError(t, err)

	before, _ := s.Data()
	beforeEntries, err := backend.Scan("")
	require.NoError(t, err)

	// valid rename + valid insert + bucket pointing at a policy that does not exist
	bad := model.NewBucketDefaults(s.GenerateID(), "broken", g.system.ID, s.GenerateID())
	_, err = s.MakeChanges(context.Background(), Changes{
		Update: map[model.Collection][]Patch{
			model.Systems: {NewPatch(g.system.ID, map[string]interface{}{"name": "renamed"})},
		},
		Insert: map[model.Collection][]model.Document{
			model.Pools:   {model.NewPoolDefaults(s.GenerateID(), "second", g.system.ID)},
			model.Buckets: {bad},
		},
	})
	require.Error(t, err)
	assert.Equal(t, errs.Validation, errs.CodeOf(err))
	assert.Contains(t, err.Error(), "references unknown tieringpolicies")

	after, _ := s.Data()
	assert.Same(t, before, after, "the snapshot must not be replaced")
	_, ok := after.SystemByName("renamed")
	assert.False(t, ok)
	_, ok = after.SystemByName("acme")
	assert.True(t, ok)
	assert.Equal(t, 1, after.Len(model.Pools))

	afterEntries, err := backend.Scan("")
	require.NoError(t, err)
	assert.Equal(t, beforeEntries, afterEntries, "durable state must be byte for byte unchanged")
}

func TestNotFound(t *testing.T) {
	s := newLoaded(t, newBackend())
	ctx := context.Background()

	_, err := s.MakeChanges(ctx, Changes{Remove: map[model.Collection][]string{model.Pools: {s.GenerateID()}}})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = s.MakeChanges(ctx, Changes{Update: map[model.Collection][]Patch{model.Systems: {NewPatch(s.GenerateID(), nil)}}})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUniqueNames(t *testing.T) {
	s := newLoaded(t, newBackend())
	ctx := context.Background()

	a := newGraph(s, "acme")
	_, err := s.MakeChanges(ctx, a.changes())
	require.NoError(t, err)

	// same system name
	_, err = s.MakeChanges(ctx, newGraph(s, "acme").changes())
	assert.ErrorIs(t, err, errs.ErrValidation)

	// same bucket name in another system is fine
	b := newGraph(s, "other")
	_, err = s.MakeChanges(ctx, b.changes())
	require.NoError(t, err)

	// same bucket name in the same system is not
	dup := model.NewBucketDefaults(s.GenerateID(), model.DefaultBucketName, a.system.ID, a.policy.ID)
	_, err = s.MakeChanges(ctx, Changes{Insert: map[model.Collection][]model.Document{model.Buckets: {dup}}})
	assert.ErrorIs(t, err, errs.ErrValidation)

	// renaming frees the old name within one batch
	_, err = s.MakeChanges(ctx, Changes{
		Update: map[model.Collection][]Patch{
			model.Buckets: {NewPatch(a.bucket.ID, map[string]interface{}{"name": "files-old"})},
		},
		Insert: map[model.Collection][]model.Document{model.Buckets: {dup}},
	})
	require.NoError(t, err)
}

func TestUpdateAndUnset(t *testing.T) {
	s := newLoaded(t, newBackend())
	ctx := context.Background()
	g := newGraph(s, "acme")
	g.system.PhoneHomeProxyAddress = "http://proxy:3128"
	_, err := s.MakeChanges(ctx, g.changes())
	require.NoError(t, err)

	_, err = s.MakeChanges(ctx, Changes{Update: map[model.Collection][]Patch{
		model.Systems: {NewPatch(g.system.ID, map[string]interface{}{
			"phone_home_proxy_address": nil,
			"maintenance_mode":         int64(1714000000000),
		})},
	}})
	require.NoError(t, err)

	d, _ := s.Data()
	sys, _ := d.System(g.system.ID)
	assert.Empty(t, sys.PhoneHomeProxyAddress)
	assert.EqualValues(t, 1714000000000, sys.MaintenanceMode)

	// unknown field
	_, err = s.MakeChanges(ctx, Changes{Update: map[model.Collection][]Patch{
		model.Systems: {NewPatch(g.system.ID, map[string]interface{}{"colour": "red"})},
	}})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestRemoveDoesNotCascade(t *testing.T) {
	s := newLoaded(t, newBackend())
	ctx := context.Background()
	g := newGraph(s, "acme")
	_, err := s.MakeChanges(ctx, g.changes())
	require.NoError(t, err)

	_, err = s.MakeChanges(ctx, Changes{Remove: map[model.Collection][]string{model.Systems: {g.system.ID}}})
	require.NoError(t, err)

	d, _ := s.Data()
	_, ok := d.System(g.system.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, d.Len(model.Pools))
	assert.Equal(t, 1, d.Len(model.Buckets))
}

func TestRoleIndexes(t *testing.T) {
	s := newLoaded(t, newBackend())
	ctx := context.Background()
	g := newGraph(s, "acme")
	acc := &model.Account{ID: s.GenerateID(), Name: "alice", Email: "Alice@example.com"}
	role := &model.Role{ID: s.GenerateID(), Account: acc.ID, System: g.system.ID, Role: model.RoleAdmin}

	ch := g.changes()
	ch.Insert[model.Accounts] = []model.Document{acc}
	ch.Insert[model.Roles] = []model.Document{role}
	_, err := s.MakeChanges(ctx, ch)
	require.NoError(t, err)

	d, _ := s.Data()
	found, ok := d.AccountByEmail("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, acc.ID, found.ID)
	assert.Len(t, d.RolesByAccount(acc.ID), 1)
	assert.Len(t, d.RolesBySystem(g.system.ID), 1)

	// same grant twice
	_, err = s.MakeChanges(ctx, Changes{Insert: map[model.Collection][]model.Document{
		model.Roles: {&model.Role{ID: s.GenerateID(), Account: acc.ID, System: g.system.ID, Role: model.RoleAdmin}},
	}})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.MakeChanges(ctx, Changes{Remove: map[model.Collection][]string{model.Roles: {role.ID}}})
	require.NoError(t, err)
	d, _ = s.Data()
	assert.Empty(t, d.RolesByAccount(acc.ID))
	assert.Empty(t, d.RolesBySystem(g.system.ID))
}

// Two writers from the same revision: one CONFLICT, the retry succeeds.
func TestConcurrentWritersConflict(t *testing.T) {
	s := newLoaded(t, newBackend())
	ctx := context.Background()

	d, _ := s.Data()
	rev := d.Revision()

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
		failed    = make(chan Changes, 2)
	)
	for _, name := range []string{"one", "two"} {
		ch := newGraph(s, name).changes()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.MakeChangesAt(ctx, rev, ch)
			switch {
			case err == nil:
				successes.Add(1)
			case errs.IsRetryable(err):
				conflicts.Add(1)
				failed <- ch
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(failed)

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, 1, conflicts.Load())

	d, _ = s.Data()
	_, err := s.MakeChangesAt(ctx, d.Revision(), <-failed)
	require.NoError(t, err)

	d, _ = s.Data()
	assert.Equal(t, 2, d.Len(model.Systems))
	assert.EqualValues(t, rev+2, d.Revision())
}

// Two stores (processes) on one backend: the durable CAS rejects the slower one.
func TestBackendConflictAcrossStores(t *testing.T) {
	backend := newBackend()
	a := newLoaded(t, backend)
	b := newLoaded(t, backend)
	ctx := context.Background()

	_, err := a.MakeChanges(ctx, newGraph(a, "from-a").changes())
	require.NoError(t, err)

	_, err = b.MakeChanges(ctx, newGraph(b, "from-b").changes())
	require.Error(t, err)
	assert.True(t, errs.IsRetryable(err))

	// b reloads in the background after the conflict
	require.Eventually(t, func() bool {
		d, _ := b.Data()
		return d.Revision() == 1
	}, time.Second, 5*time.Millisecond)

	_, err = b.MakeChanges(ctx, newGraph(b, "from-b").changes())
	require.NoError(t, err)

	require.NoError(t, a.ReloadIfBehind(ctx, 2))
	d, _ := a.Data()
	assert.Equal(t, 2, d.Len(model.Systems))
}

func TestPropagation(t *testing.T) {
	published := make(chan uint64, 1)
	s := newLoaded(t, newBackend(), func(o *Options) {
		o.Propagator = PropagatorFunc(func(_ context.Context, rev uint64) error {
			published <- rev
			return errors.New("peer unreachable")
		})
	})

	rev, err := s.MakeChanges(context.Background(), newGraph(s, "acme").changes())
	require.NoError(t, err, "propagation errors must not fail the commit")

	select {
	case got := <-published:
		assert.Equal(t, rev, got)
	case <-time.After(time.Second):
		t.Fatal("revision was not published")
	}
}

func TestLoadRestoresDocuments(t *testing.T) {
	backend := newBackend()
	s := newLoaded(t, backend)
	g := newGraph(s, "acme")
	_, err := s.MakeChanges(context.Background(), g.changes())
	require.NoError(t, err)

	cluster := model.NewClusterDefaults(s.GenerateID(), "secret-1", "10.0.0.1")
	_, err = s.MakeChanges(context.Background(), Changes{Insert: map[model.Collection][]model.Document{model.Clusters: {cluster}}})
	require.NoError(t, err)

	fresh := newLoaded(t, backend)
	d, _ := fresh.Data()
	assert.EqualValues(t, 2, d.Revision())
	for _, coll := range []model.Collection{model.Systems, model.Pools, model.Tiers, model.TieringPolicies, model.Buckets, model.Clusters} {
		assert.Equal(t, 1, d.Len(coll), coll)
	}

	local, ok := fresh.LocalCluster()
	require.True(t, ok)
	assert.Equal(t, cluster.ID, local.ID)
}

func TestInsertKeepsCallerCopy(t *testing.T) {
	s := newLoaded(t, newBackend())
	g := newGraph(s, "acme")
	_, err := s.MakeChanges(context.Background(), g.changes())
	require.NoError(t, err)

	g.system.Name = "mutated"
	d, _ := s.Data()
	sys, _ := d.System(g.system.ID)
	assert.Equal(t, "acme", sys.Name)
}

func TestUpdateRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	backend := newBackend()
	a := newLoaded(t, backend)
	b := newLoaded(t, backend)

	g := newGraph(a, "sys")
	_, err := a.MakeChanges(ctx, g.changes())
	require.NoError(t, err)
	require.NoError(t, b.Reload(ctx))

	calls := 0
	_, err = b.Update(ctx, func(d *Data) (Changes, error) {
		calls++
		if calls == 1 {
			// a foreign writer commits between snapshot and commit
			_, err := a.MakeChanges(ctx, Changes{Update: map[model.Collection][]Patch{
				model.Systems: {NewPatch(g.system.ID, map[string]interface{}{"debug_level": 3})},
			}})
			require.NoError(t, err)
		}
		sys, ok := d.System(g.system.ID)
		require.True(t, ok)
		return Changes{Update: map[model.Collection][]Patch{
			model.Systems: {NewPatch(sys.ID, map[string]interface{}{"last_stats_report": 42})},
		}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	require.NoError(t, a.Reload(ctx))
	d, err := a.Data()
	require.NoError(t, err)
	sys, _ := d.System(g.system.ID)
	assert.Equal(t, 3, sys.DebugLevel)
	assert.Equal(t, int64(42), sys.LastStatsReport)
}
