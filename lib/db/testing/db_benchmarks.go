package testing

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dCtl/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, factory())
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})

		b.Run("Batch", func(b *testing.B) {
			benchmarkBatch(b, factory())
		})

		b.Run("Scan", func(b *testing.B) {
			benchmarkScan(b, factory())
		})

		b.Run("SaveLoad", func(b *testing.B) {
			benchmarkSaveLoad(b, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	var idx atomic.Uint64
	value := []byte(`{"_id":"6630f1a2c3d4e5f601020304","name":"files"}`)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := idx.Add(1)
			_ = database.Set(fmt.Sprintf("doc/buckets/%d", i), value, i)
		}
	})
}

func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet)

	const n = 1000
	for i := 0; i < n; i++ {
		_ = database.Set(fmt.Sprintf("doc/pools/%d", i), []byte("value"), uint64(i+1))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			database.Get(fmt.Sprintf("doc/pools/%d", i%n))
			i++
		}
	})
}

func benchmarkBatch(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureBatch)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ops := make([]db.Op, 0, 6)
		for _, coll := range []string{"systems", "pools", "tiers", "tieringpolicies", "buckets"} {
			ops = append(ops, db.Op{Type: db.OpSet, Key: fmt.Sprintf("doc/%s/%d", coll, i), Value: []byte("{}")})
		}
		ops = append(ops, db.Op{Type: db.OpSet, Key: "meta/revision", Value: []byte{0, 0, 0, 0, 0, 0, 0, 1}})
		_ = database.Apply(ops, uint64(i+1))
	}
}

func benchmarkScan(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureScan)

	for i := 0; i < 1000; i++ {
		_ = database.Set(fmt.Sprintf("doc/buckets/%04d", i), []byte("value"), uint64(i+1))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Scan("doc/buckets/", func(string, []byte) bool { return true })
	}
}

func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	source := factory()
	b.Cleanup(func() {
		source.Close()
	})

	requireFeature(b, source, db.FeatureSave|db.FeatureLoad)

	for i := 0; i < 1000; i++ {
		_ = source.Set(fmt.Sprintf("doc/accounts/%d", i), []byte("value"), uint64(i+1))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if err := source.Save(&buf); err != nil {
			b.Fatal(err)
		}
		target := factory()
		if err := target.Load(&buf); err != nil {
			b.Fatal(err)
		}
		target.Close()
	}
}
