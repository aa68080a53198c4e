package memdb

import (
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dCtl/lib/db"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Core memdb structure
// --------------------------------------------------------------------------

// entry is the stored value plus the write index that produced it
type entry struct {
	Value []byte
	Index uint64
}

// memDB is an in-memory db.KVDB. Single key operations go straight to the
// concurrent map. Batches and snapshots take the write side of batchMu so they
// never interleave with readers that need a consistent view.
type memDB struct {
	data      *xsync.MapOf[string, entry]
	batchMu   sync.RWMutex
	currIndex atomic.Uint64
}

// NewMemDB creates an empty in-memory database
func NewMemDB() db.KVDB {
	return &memDB{
		data: xsync.NewMapOf[string, entry](),
	}
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Write Operations
// --------------------------------------------------------------------------

func (m *memDB) Set(key string, value []byte, writeIndex uint64) error {
	m.batchMu.RLock()
	defer m.batchMu.RUnlock()
	m.set(key, value, writeIndex)
	return nil
}

func (m *memDB) Delete(key string, writeIndex uint64) error {
	m.batchMu.RLock()
	defer m.batchMu.RUnlock()
	m.data.Delete(key)
	m.SetWriteIdx(writeIndex)
	return nil
}

func (m *memDB) Apply(ops []db.Op, writeIndex uint64) error {
	m.batchMu.Lock()
	defer m.batchMu.Unlock()

	for _, op := range ops {
		switch op.Type {
		case db.OpSet:
			m.set(op.Key, op.Value, writeIndex)
		case db.OpDelete:
			m.data.Delete(op.Key)
		}
	}
	m.SetWriteIdx(writeIndex)
	return nil
}

// set stores a private copy of value
func (m *memDB) set(key string, value []byte, writeIndex uint64) {
	v := make([]byte, len(value))
	copy(v, value)
	m.data.Store(key, entry{Value: v, Index: writeIndex})
	m.SetWriteIdx(writeIndex)
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Query Operations
// --------------------------------------------------------------------------

func (m *memDB) Get(key string) ([]byte, bool) {
	m.batchMu.RLock()
	defer m.batchMu.RUnlock()

	e, ok := m.data.Load(key)
	if !ok {
		return nil, false
	}
	v := make([]byte, len(e.Value))
	copy(v, e.Value)
	return v, true
}

func (m *memDB) Has(key string) bool {
	m.batchMu.RLock()
	defer m.batchMu.RUnlock()
	_, ok := m.data.Load(key)
	return ok
}

func (m *memDB) Scan(prefix string, fn func(key string, value []byte) bool) {
	for _, kv := range m.collect(prefix) {
		if !fn(kv.Key, kv.Value) {
			return
		}
	}
}

// collect returns sorted copies of all entries matching prefix
func (m *memDB) collect(prefix string) []db.KV {
	m.batchMu.RLock()
	defer m.batchMu.RUnlock()

	var out []db.KV
	m.data.Range(func(key string, e entry) bool {
		if strings.HasPrefix(key, prefix) {
			v := make([]byte, len(e.Value))
			copy(v, e.Value)
			out = append(out, db.KV{Key: key, Value: v})
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Persistence
// --------------------------------------------------------------------------

func (m *memDB) Save(w io.Writer) error {
	return db.WriteSnapshot(w, m.WriteIdx(), m.collect(""))
}

// Load restores a database from the reader
//
// Thread-safety: Load blocks all other operations while it runs
func (m *memDB) Load(r io.Reader) error {
	fresh := xsync.NewMapOf[string, entry]()
	idx, err := db.ReadSnapshot(r, func(key string, value []byte) error {
		fresh.Store(key, entry{Value: value})
		return nil
	})
	if err != nil {
		return err
	}

	m.batchMu.Lock()
	defer m.batchMu.Unlock()
	m.data = fresh
	m.currIndex.Store(0)
	m.SetWriteIdx(idx)
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

func (m *memDB) GetInfo() db.DatabaseInfo {
	m.batchMu.RLock()
	size, keys := 0, 0
	m.data.Range(func(key string, e entry) bool {
		size += len(key) + len(e.Value) + 8
		keys++
		return true
	})
	m.batchMu.RUnlock()

	return db.DatabaseInfo{
		SizeBytes: size,
		Keys:      keys,
		DbType:    db.ImplMemDB,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas,
			db.FeatureScan, db.FeatureBatch, db.FeatureSave, db.FeatureLoad,
		},
		Metadata: &struct {
			CurrentWriteIndex uint64 `json:"current_write_index"`
		}{
			CurrentWriteIndex: m.WriteIdx(),
		},
	}
}

func (m *memDB) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureSet |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureScan |
		db.FeatureBatch |
		db.FeatureSave |
		db.FeatureLoad
	return supported&feature == feature
}

func (m *memDB) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Index Management
// --------------------------------------------------------------------------

// SetWriteIdx only moves the index forward
func (m *memDB) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := m.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if m.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

func (m *memDB) WriteIdx() uint64 {
	return m.currIndex.Load()
}
