package confstore

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/lib/store"
	"github.com/hashicorp/go-multierror"
)

// Patch is a partial document applied as a JSON merge patch. It must carry
// the "_id" of the document it updates, a nil value unsets a field.
type Patch map[string]interface{}

// NewPatch returns a patch for id setting fields
func NewPatch(id string, fields map[string]interface{}) Patch {
	p := Patch{"_id": id}
	for k, v := range fields {
		p[k] = v
	}
	return p
}

// ID returns the id the patch targets
func (p Patch) ID() string {
	id, _ := p["_id"].(string)
	return id
}

// Changes is one atomic batch against the config store. Removes are applied
// first, then updates, then inserts. References and unique names are checked
// against the final state of the batch, so inserted documents may point at
// each other in any order.
type Changes struct {
	Insert map[model.Collection][]model.Document
	Update map[model.Collection][]Patch
	Remove map[model.Collection][]string
}

// Empty reports whether the batch contains no operation
func (c Changes) Empty() bool {
	for _, docs := range c.Insert {
		if len(docs) > 0 {
			return false
		}
	}
	for _, patches := range c.Update {
		if len(patches) > 0 {
			return false
		}
	}
	for _, ids := range c.Remove {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

// docKey is the durable key of a document
func docKey(coll model.Collection, id string) string {
	return fmt.Sprintf("%s%s/%s", docPrefix, coll, id)
}

const docPrefix = "doc/"

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// txn applies a Changes batch to a private clone of a snapshot
type txn struct {
	next     *Data
	gen      func() string
	touched  map[string]model.Collection
	removed  map[string]model.Collection
	invalid  *multierror.Error
	notFound *multierror.Error
}

func newTxn(base *Data, gen func() string) *txn {
	return &txn{
		next:    base.clone(),
		gen:     gen,
		touched: map[string]model.Collection{},
		removed: map[string]model.Collection{},
	}
}

func (t *txn) failf(format string, args ...interface{}) {
	t.invalid = multierror.Append(t.invalid, fmt.Errorf(format, args...))
}

func (t *txn) missingf(format string, args ...interface{}) {
	t.notFound = multierror.Append(t.notFound, fmt.Errorf(format, args...))
}

// collections returns the keys of m in the fixed model order, unknown ones last
func collections[V any](m map[model.Collection]V) []model.Collection {
	out := make([]model.Collection, 0, len(m))
	for coll := range m {
		out = append(out, coll)
	}
	rank := func(c model.Collection) int {
		for i, known := range model.AllCollections {
			if known == c {
				return i
			}
		}
		return len(model.AllCollections)
	}
	sort.Slice(out, func(i, j int) bool {
		if ri, rj := rank(out[i]), rank(out[j]); ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

func (t *txn) apply(ch Changes) {
	for _, coll := range collections(ch.Remove) {
		if !coll.Valid() {
			t.failf("remove: unknown collection %q", coll)
			continue
		}
		for _, id := range ch.Remove[coll] {
			doc, ok := t.next.Get(coll, id)
			if !ok {
				t.missingf("remove: %s %s not found", coll, id)
				continue
			}
			t.next.remove(doc)
			delete(t.touched, id)
			t.removed[id] = coll
		}
	}

	for _, coll := range collections(ch.Update) {
		if !coll.Valid() {
			t.failf("update: unknown collection %q", coll)
			continue
		}
		for _, patch := range ch.Update[coll] {
			id := patch.ID()
			old, ok := t.next.Get(coll, id)
			if !ok {
				t.missingf("update: %s %q not found", coll, id)
				continue
			}
			doc, err := model.Merge(old, patch)
			if err != nil {
				t.failf("update: %s %s: %v", coll, id, err)
				continue
			}
			t.replace(old, doc)
		}
	}

	for _, coll := range collections(ch.Insert) {
		if !coll.Valid() {
			t.failf("insert: unknown collection %q", coll)
			continue
		}
		for _, doc := range ch.Insert[coll] {
			if doc == nil {
				t.failf("insert: nil document in %s", coll)
				continue
			}
			if doc.Collection() != coll {
				t.failf("insert: %s document %s listed under %s", doc.Collection(), doc.GetID(), coll)
				continue
			}
			if doc.GetID() == "" {
				doc.SetID(t.gen())
			}
			if _, exists := t.next.GetByID(doc.GetID()); exists {
				t.failf("insert: %s %s: id already exists", coll, doc.GetID())
				continue
			}
			// the caller keeps its pointer, the snapshot gets a private copy
			owned, err := model.Clone(doc)
			if err != nil {
				t.failf("insert: %s %s: %v", coll, doc.GetID(), err)
				continue
			}
			t.replace(nil, owned)
		}
	}

	t.checkRefs()
}

// replace swaps old (may be nil) for doc after validating doc on its own and
// checking that its unique keys are free
func (t *txn) replace(old, doc model.Document) {
	if err := doc.Validate(); err != nil {
		t.failf("%v", err)
		return
	}
	for _, key := range doc.UniqueKeys() {
		if owner, taken := t.next.lookupIndex(key); taken && owner != doc.GetID() {
			t.failf("%s %s: duplicate %s (used by %s)", doc.Collection(), doc.GetID(), key, owner)
			return
		}
	}
	if old != nil {
		t.next.remove(old)
	}
	t.next.put(doc)
	t.touched[doc.GetID()] = doc.Collection()
	delete(t.removed, doc.GetID())
}

// checkRefs resolves the references of every inserted or updated document
// against the final state. Documents pointing at a removed document are not
// checked, removal does not cascade.
func (t *txn) checkRefs() {
	for id, coll := range t.touched {
		doc, ok := t.next.Get(coll, id)
		if !ok {
			continue
		}
		for _, ref := range doc.Refs() {
			if _, ok := t.next.Get(ref.Collection, ref.ID); !ok {
				t.failf("%s %s: %s references unknown %s %s", coll, id, ref.Field, ref.Collection, ref.ID)
			}
		}
	}
}

// mutations returns the durable writes of the batch in a stable order
func (t *txn) mutations() ([]store.Mutation, error) {
	keys := make([]string, 0, len(t.touched)+len(t.removed))
	muts := make(map[string]store.Mutation, cap(keys))

	for id, coll := range t.touched {
		doc, _ := t.next.Get(coll, id)
		raw, err := model.Encode(doc)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", coll, id, err)
		}
		k := docKey(coll, id)
		keys = append(keys, k)
		muts[k] = store.Mutation{Key: k, Value: raw}
	}
	for id, coll := range t.removed {
		k := docKey(coll, id)
		keys = append(keys, k)
		muts[k] = store.Mutation{Key: k, Delete: true}
	}

	sort.Strings(keys)
	out := make([]store.Mutation, 0, len(keys))
	for _, k := range keys {
		out = append(out, muts[k])
	}
	return out, nil
}
