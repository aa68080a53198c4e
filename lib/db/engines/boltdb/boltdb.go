package boltdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dCtl/lib/db"
	"github.com/lni/dragonboat/v4/logger"
	bolt "go.etcd.io/bbolt"
)

var log = logger.GetLogger("store")

var (
	dataBucket = []byte("kv")
	metaBucket = []byte("meta")
	writeIdxK  = []byte("write_idx")
)

// Options configures the bolt engine
type Options struct {
	// Path of the database file, created if missing
	Path string
	// Timeout waiting for the file lock
	Timeout time.Duration
	// NoSync skips fsync after each commit (tests only)
	NoSync bool
}

// boltDB implements db.KVDB on top of a single bbolt file. Every write is its
// own bolt transaction, Apply runs all ops in one transaction.
type boltDB struct {
	path      string
	db        *bolt.DB
	currIndex atomic.Uint64
}

// NewBoltDB opens (or creates) the database file at opts.Path
func NewBoltDB(opts Options) (db.KVDB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("bolt: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("bolt: unable to create directory: %w", err)
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}

	bdb, err := bolt.Open(opts.Path, 0o600, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt: unable to open %s: %w", opts.Path, err)
	}
	bdb.NoSync = opts.NoSync

	b := &boltDB{path: opts.Path, db: bdb}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(dataBucket); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if v := meta.Get(writeIdxK); len(v) == 8 {
			b.currIndex.Store(binary.BigEndian.Uint64(v))
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	log.Infof("Opened bolt database at %s (write index %d)", opts.Path, b.WriteIdx())
	return b, nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Write Operations
// --------------------------------------------------------------------------

func (b *boltDB) Set(key string, value []byte, writeIndex uint64) error {
	return b.Apply([]db.Op{{Type: db.OpSet, Key: key, Value: value}}, writeIndex)
}

func (b *boltDB) Delete(key string, writeIndex uint64) error {
	return b.Apply([]db.Op{{Type: db.OpDelete, Key: key}}, writeIndex)
}

func (b *boltDB) Apply(ops []db.Op, writeIndex uint64) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(dataBucket)
		for _, op := range ops {
			switch op.Type {
			case db.OpSet:
				if err := bkt.Put([]byte(op.Key), op.Value); err != nil {
					return err
				}
			case db.OpDelete:
				if err := bkt.Delete([]byte(op.Key)); err != nil {
					return err
				}
			default:
				return fmt.Errorf("bolt: unknown op type %d", op.Type)
			}
		}
		return putWriteIdx(tx, max(writeIndex, b.WriteIdx()))
	})
	if err != nil {
		return err
	}
	b.SetWriteIdx(writeIndex)
	return nil
}

func putWriteIdx(tx *bolt.Tx, idx uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, idx)
	return tx.Bucket(metaBucket).Put(writeIdxK, buf)
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Query Operations
// --------------------------------------------------------------------------

func (b *boltDB) Get(key string) (value []byte, loaded bool) {
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(dataBucket).Get([]byte(key))
		if v != nil {
			// bolt memory is only valid inside the transaction
			value = make([]byte, len(v))
			copy(value, v)
			loaded = true
		}
		return nil
	})
	if err != nil {
		log.Errorf("bolt get %s failed: %v", key, err)
		return nil, false
	}
	return value, loaded
}

func (b *boltDB) Has(key string) bool {
	_, ok := b.Get(key)
	return ok
}

func (b *boltDB) Scan(prefix string, fn func(key string, value []byte) bool) {
	p := []byte(prefix)
	var entries []db.KV
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			val := make([]byte, len(v))
			copy(val, v)
			entries = append(entries, db.KV{Key: string(k), Value: val})
		}
		return nil
	})
	if err != nil {
		log.Errorf("bolt scan %s failed: %v", prefix, err)
		return
	}
	// fn runs outside the read transaction so it may write back
	for _, e := range entries {
		if !fn(e.Key, e.Value) {
			return
		}
	}
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Persistence
// --------------------------------------------------------------------------

func (b *boltDB) Save(w io.Writer) error {
	var entries []db.KV
	b.Scan("", func(key string, value []byte) bool {
		entries = append(entries, db.KV{Key: key, Value: value})
		return true
	})
	return db.WriteSnapshot(w, b.WriteIdx(), entries)
}

func (b *boltDB) Load(r io.Reader) error {
	var entries []db.KV
	idx, err := db.ReadSnapshot(r, func(key string, value []byte) error {
		entries = append(entries, db.KV{Key: key, Value: value})
		return nil
	})
	if err != nil {
		return err
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(dataBucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		bkt, err := tx.CreateBucket(dataBucket)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := bkt.Put([]byte(e.Key), e.Value); err != nil {
				return err
			}
		}
		return putWriteIdx(tx, idx)
	})
	if err != nil {
		return err
	}
	b.currIndex.Store(idx)
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

func (b *boltDB) GetInfo() db.DatabaseInfo {
	var size, keys int
	_ = b.db.View(func(tx *bolt.Tx) error {
		size = int(tx.Size())
		keys = tx.Bucket(dataBucket).Stats().KeyN
		return nil
	})

	return db.DatabaseInfo{
		SizeBytes: size,
		Keys:      keys,
		DbType:    db.ImplBolt,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas,
			db.FeatureScan, db.FeatureBatch, db.FeatureSave, db.FeatureLoad,
			db.FeaturePersistent,
		},
		Metadata: &struct {
			Path              string `json:"path"`
			CurrentWriteIndex uint64 `json:"current_write_index"`
		}{
			Path:              b.path,
			CurrentWriteIndex: b.WriteIdx(),
		},
	}
}

func (b *boltDB) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureSet |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureScan |
		db.FeatureBatch |
		db.FeatureSave |
		db.FeatureLoad |
		db.FeaturePersistent
	return supported&feature == feature
}

func (b *boltDB) Close() error {
	return b.db.Close()
}

// --------------------------------------------------------------------------
// Index Management
// --------------------------------------------------------------------------

func (b *boltDB) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := b.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if b.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

func (b *boltDB) WriteIdx() uint64 {
	return b.currIndex.Load()
}
