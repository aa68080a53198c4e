package lstore

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dCtl/lib/db"
	"github.com/ValentinKolb/dCtl/lib/store"
)

type storeImpl struct {
	db    db.KVDB
	index atomic.Uint64
	mu    sync.Mutex // serializes commits, the revision check and the write must be atomic
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// The db returned by factory is used directly, persistence depends on the engine.
func NewLocalStore(factory store.DBFactory) store.IStore {
	s := &storeImpl{
		db: factory(),
	}
	// continue counting from whatever a persistent engine already holds
	s.index.Store(s.db.WriteIdx())
	return s
}

// incAndGetIndex increments the index and returns the new value.
// It is used to ensure that each write operation has a unique index.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Commit(batch store.WriteBatch) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.ApplyBatch(s.db, batch, s.incAndGetIndex())
}

func (s *storeImpl) Revision() (uint64, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return 0, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
	}
	return store.ReadRevision(s.db)
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, false, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
	}
	val, ok := s.db.Get(key)
	return val, ok, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	if !s.db.SupportsFeature(db.FeatureHas) {
		return false, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
	}
	return s.db.Has(key), nil
}

func (s *storeImpl) Scan(prefix string) ([]db.KV, error) {
	if !s.db.SupportsFeature(db.FeatureScan) {
		return nil, store.NewError(store.RetCUnsupportedOperation, "Scan operation is not supported")
	}
	var entries []db.KV
	s.db.Scan(prefix, func(key string, value []byte) bool {
		entries = append(entries, db.KV{Key: key, Value: value})
		return true
	})
	return entries, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}
