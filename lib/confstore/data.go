package confstore

import (
	"strings"

	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/google/btree"
)

const btreeDegree = 16

type docEntry struct {
	id  string
	doc model.Document
}

func lessDoc(a, b docEntry) bool { return a.id < b.id }

type indexEntry struct {
	key string
	id  string
}

func lessIndex(a, b indexEntry) bool { return a.key < b.key }

// Data is an immutable snapshot of all configuration documents at one
// revision. A commit never modifies a published Data, it clones the trees
// (copy on write) and publishes the result as the next snapshot.
//
// Documents returned by the accessors are shared between snapshots and
// must be treated as read only.
type Data struct {
	revision uint64
	docs     map[model.Collection]*btree.BTreeG[docEntry]
	// unique index keys (see model.Document.UniqueKeys) -> id
	index *btree.BTreeG[indexEntry]
}

func newData(revision uint64) *Data {
	d := &Data{
		revision: revision,
		docs:     make(map[model.Collection]*btree.BTreeG[docEntry], len(model.AllCollections)),
		index:    btree.NewG[indexEntry](btreeDegree, lessIndex),
	}
	for _, coll := range model.AllCollections {
		d.docs[coll] = btree.NewG[docEntry](btreeDegree, lessDoc)
	}
	return d
}

// clone returns a writable copy sharing all unchanged nodes with d
func (d *Data) clone() *Data {
	next := &Data{
		revision: d.revision,
		docs:     make(map[model.Collection]*btree.BTreeG[docEntry], len(d.docs)),
		index:    d.index.Clone(),
	}
	for coll, tree := range d.docs {
		next.docs[coll] = tree.Clone()
	}
	return next
}

// put inserts or replaces doc without any checks. Used by load and by the
// transaction after validation.
func (d *Data) put(doc model.Document) {
	d.docs[doc.Collection()].ReplaceOrInsert(docEntry{id: doc.GetID(), doc: doc})
	for _, key := range doc.UniqueKeys() {
		d.index.ReplaceOrInsert(indexEntry{key: key, id: doc.GetID()})
	}
}

// remove drops doc and its index keys
func (d *Data) remove(doc model.Document) {
	d.docs[doc.Collection()].Delete(docEntry{id: doc.GetID()})
	for _, key := range doc.UniqueKeys() {
		if e, ok := d.index.Get(indexEntry{key: key}); ok && e.id == doc.GetID() {
			d.index.Delete(e)
		}
	}
}

func (d *Data) lookupIndex(key string) (string, bool) {
	e, ok := d.index.Get(indexEntry{key: key})
	return e.id, ok
}

func (d *Data) scanIndex(prefix string, fn func(id string) bool) {
	d.index.AscendGreaterOrEqual(indexEntry{key: prefix}, func(e indexEntry) bool {
		if !strings.HasPrefix(e.key, prefix) {
			return false
		}
		return fn(e.id)
	})
}

// --------------------------------------------------------------------------
// Generic accessors
// --------------------------------------------------------------------------

// Revision is the durable revision this snapshot reflects
func (d *Data) Revision() uint64 {
	return d.revision
}

// Len returns the number of documents in a collection
func (d *Data) Len(coll model.Collection) int {
	tree, ok := d.docs[coll]
	if !ok {
		return 0
	}
	return tree.Len()
}

// Get returns a document of a collection by id
func (d *Data) Get(coll model.Collection, id string) (model.Document, bool) {
	tree, ok := d.docs[coll]
	if !ok {
		return nil, false
	}
	e, ok := tree.Get(docEntry{id: id})
	return e.doc, ok
}

// GetByID searches all collections for id
func (d *Data) GetByID(id string) (model.Document, bool) {
	for _, coll := range model.AllCollections {
		if doc, ok := d.Get(coll, id); ok {
			return doc, true
		}
	}
	return nil, false
}

// Each calls fn for every document of coll in id order until fn returns false
func (d *Data) Each(coll model.Collection, fn func(model.Document) bool) {
	if tree, ok := d.docs[coll]; ok {
		tree.Ascend(func(e docEntry) bool { return fn(e.doc) })
	}
}

func get[T model.Document](d *Data, coll model.Collection, id string) (T, bool) {
	var zero T
	doc, ok := d.Get(coll, id)
	if !ok {
		return zero, false
	}
	typed, ok := doc.(T)
	return typed, ok
}

func list[T model.Document](d *Data, coll model.Collection) []T {
	out := make([]T, 0, d.Len(coll))
	d.Each(coll, func(doc model.Document) bool {
		if typed, ok := doc.(T); ok {
			out = append(out, typed)
		}
		return true
	})
	return out
}

func byKey[T model.Document](d *Data, coll model.Collection, key string) (T, bool) {
	var zero T
	id, ok := d.lookupIndex(key)
	if !ok {
		return zero, false
	}
	return get[T](d, coll, id)
}

func byPrefix[T model.Document](d *Data, coll model.Collection, prefix string) []T {
	var out []T
	d.scanIndex(prefix, func(id string) bool {
		if doc, ok := get[T](d, coll, id); ok {
			out = append(out, doc)
		}
		return true
	})
	return out
}

// --------------------------------------------------------------------------
// Typed accessors
// --------------------------------------------------------------------------

func (d *Data) System(id string) (*model.System, bool) { return get[*model.System](d, model.Systems, id) }
func (d *Data) Pool(id string) (*model.Pool, bool)     { return get[*model.Pool](d, model.Pools, id) }
func (d *Data) Tier(id string) (*model.Tier, bool)     { return get[*model.Tier](d, model.Tiers, id) }
func (d *Data) Policy(id string) (*model.TieringPolicy, bool) {
	return get[*model.TieringPolicy](d, model.TieringPolicies, id)
}
func (d *Data) Bucket(id string) (*model.Bucket, bool)   { return get[*model.Bucket](d, model.Buckets, id) }
func (d *Data) Account(id string) (*model.Account, bool) { return get[*model.Account](d, model.Accounts, id) }
func (d *Data) Role(id string) (*model.Role, bool)       { return get[*model.Role](d, model.Roles, id) }
func (d *Data) Cluster(id string) (*model.Cluster, bool) { return get[*model.Cluster](d, model.Clusters, id) }

// Systems returns all systems in id (creation) order
func (d *Data) Systems() []*model.System { return list[*model.System](d, model.Systems) }

// Roles returns all roles in id order
func (d *Data) Roles() []*model.Role { return list[*model.Role](d, model.Roles) }

// Accounts returns all accounts in id order
func (d *Data) Accounts() []*model.Account { return list[*model.Account](d, model.Accounts) }

// Clusters returns all cluster members in id order
func (d *Data) Clusters() []*model.Cluster { return list[*model.Cluster](d, model.Clusters) }

// SystemByName looks up a system by its cluster wide unique name
func (d *Data) SystemByName(name string) (*model.System, bool) {
	return byKey[*model.System](d, model.Systems, model.SystemNameKey(name))
}

// AccountByEmail looks up an account, the email is compared case insensitive
func (d *Data) AccountByEmail(email string) (*model.Account, bool) {
	return byKey[*model.Account](d, model.Accounts, model.AccountEmailKey(strings.ToLower(email)))
}

// ClusterBySecret looks up the member record owned by a server secret
func (d *Data) ClusterBySecret(secret string) (*model.Cluster, bool) {
	return byKey[*model.Cluster](d, model.Clusters, model.ClusterSecretKey(secret))
}

func (d *Data) PoolByName(system, name string) (*model.Pool, bool) {
	return byKey[*model.Pool](d, model.Pools, model.ScopedNameKey(model.Pools, system, name))
}

func (d *Data) TierByName(system, name string) (*model.Tier, bool) {
	return byKey[*model.Tier](d, model.Tiers, model.ScopedNameKey(model.Tiers, system, name))
}

func (d *Data) PolicyByName(system, name string) (*model.TieringPolicy, bool) {
	return byKey[*model.TieringPolicy](d, model.TieringPolicies, model.ScopedNameKey(model.TieringPolicies, system, name))
}

func (d *Data) BucketByName(system, name string) (*model.Bucket, bool) {
	return byKey[*model.Bucket](d, model.Buckets, model.ScopedNameKey(model.Buckets, system, name))
}

// PoolsOfSystem returns the pools of a system ordered by name
func (d *Data) PoolsOfSystem(system string) []*model.Pool {
	return byPrefix[*model.Pool](d, model.Pools, model.ScopedNamePrefix(model.Pools, system))
}

// TiersOfSystem returns the tiers of a system ordered by name
func (d *Data) TiersOfSystem(system string) []*model.Tier {
	return byPrefix[*model.Tier](d, model.Tiers, model.ScopedNamePrefix(model.Tiers, system))
}

// PoliciesOfSystem returns the tiering policies of a system ordered by name
func (d *Data) PoliciesOfSystem(system string) []*model.TieringPolicy {
	return byPrefix[*model.TieringPolicy](d, model.TieringPolicies, model.ScopedNamePrefix(model.TieringPolicies, system))
}

// BucketsOfSystem returns the buckets of a system ordered by name
func (d *Data) BucketsOfSystem(system string) []*model.Bucket {
	return byPrefix[*model.Bucket](d, model.Buckets, model.ScopedNamePrefix(model.Buckets, system))
}

// RolesByAccount returns all roles granted to an account
func (d *Data) RolesByAccount(account string) []*model.Role {
	return byPrefix[*model.Role](d, model.Roles, model.RoleByAccountPrefix(account))
}

// RolesBySystem returns all roles granted on a system
func (d *Data) RolesBySystem(system string) []*model.Role {
	return byPrefix[*model.Role](d, model.Roles, model.RoleBySystemPrefix(system))
}

// RoleOf returns admin if the account has it on system, any other role it
// has there otherwise, "" for none
func (d *Data) RoleOf(account, system string) string {
	best := ""
	for _, r := range d.RolesByAccount(account) {
		if r.System != system {
			continue
		}
		if r.Role == model.RoleAdmin {
			return r.Role
		}
		best = r.Role
	}
	return best
}

// BucketsUsingPool returns the buckets whose tiering policy contains a tier on pool
func (d *Data) BucketsUsingPool(pool *model.Pool) []*model.Bucket {
	var out []*model.Bucket
	for _, b := range d.BucketsOfSystem(pool.System) {
		pol, ok := d.Policy(b.Tiering)
		if !ok {
			continue
		}
	policy:
		for _, to := range pol.Tiers {
			tier, ok := d.Tier(to.Tier)
			if !ok {
				continue
			}
			for _, p := range tier.Pools {
				if p == pool.ID {
					out = append(out, b)
					break policy
				}
			}
		}
	}
	return out
}
