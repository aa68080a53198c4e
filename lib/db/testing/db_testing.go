package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dCtl/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, factory())
		})

		t.Run("Batch", func(t *testing.T) {
			testBatch(t, factory())
		})

		t.Run("WriteIdx", func(t *testing.T) {
			testWriteIdx(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("ConcurrentBatches", func(t *testing.T) {
			testConcurrentBatches(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	if err := database.Set(testKey, testValue1, 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	if err := database.Set(testKey, testValue2, 2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = database.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// mutating the input after Set must not change the stored value
	input := []byte("mutable")
	_ = database.Set("mutable-key", input, 3)
	input[0] = 'X'
	stored, _ := database.Get("mutable-key")
	if !bytes.Equal(stored, []byte("mutable")) {
		t.Errorf("Set should store a copy of the value, got %s", stored)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	_ = database.Set("delete-key", []byte("value"), 1)
	if err := database.Delete("delete-key", 2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, exists := database.Get("delete-key"); exists {
		t.Errorf("Key should not exist after Delete")
	}

	// deleting a missing key is a no-op
	if err := database.Delete("missing-key", 3); err != nil {
		t.Errorf("Delete of missing key should not fail: %v", err)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureHas)

	if database.Has("has-key") {
		t.Errorf("Has should return false for a missing key")
	}
	_ = database.Set("has-key", []byte{}, 1)
	if !database.Has("has-key") {
		t.Errorf("Has should return true for a key with an empty value")
	}
}

func testScan(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureScan)

	keys := []string{"doc/pools/b", "doc/pools/a", "doc/systems/x", "meta/revision", "doc/pools/c"}
	for i, k := range keys {
		_ = database.Set(k, []byte(k), uint64(i+1))
	}

	var got []string
	database.Scan("doc/pools/", func(key string, value []byte) bool {
		if string(value) != key {
			t.Errorf("Scan returned value %s for key %s", value, key)
		}
		got = append(got, key)
		return true
	})

	want := []string{"doc/pools/a", "doc/pools/b", "doc/pools/c"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Scan returned %v, want %v", got, want)
	}

	// early stop
	count := 0
	database.Scan("doc/", func(string, []byte) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Errorf("Scan should stop when fn returns false, visited %d", count)
	}

	// empty prefix visits everything
	count = 0
	database.Scan("", func(string, []byte) bool {
		count++
		return true
	})
	if count != len(keys) {
		t.Errorf("Scan with empty prefix visited %d keys, want %d", count, len(keys))
	}
}

func testBatch(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureBatch|db.FeatureGet)

	_ = database.Set("keep", []byte("1"), 1)
	_ = database.Set("drop", []byte("2"), 2)

	err := database.Apply([]db.Op{
		{Type: db.OpSet, Key: "new", Value: []byte("3")},
		{Type: db.OpSet, Key: "keep", Value: []byte("4")},
		{Type: db.OpDelete, Key: "drop"},
	}, 10)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if v, ok := database.Get("new"); !ok || string(v) != "3" {
		t.Errorf("Expected new=3, got %s (found=%v)", v, ok)
	}
	if v, ok := database.Get("keep"); !ok || string(v) != "4" {
		t.Errorf("Expected keep=4, got %s (found=%v)", v, ok)
	}
	if _, ok := database.Get("drop"); ok {
		t.Errorf("Expected drop to be deleted by the batch")
	}
	if database.WriteIdx() != 10 {
		t.Errorf("Expected write index 10 after batch, got %d", database.WriteIdx())
	}
}

func testWriteIdx(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.SetWriteIdx(5)
	if database.WriteIdx() != 5 {
		t.Errorf("Expected write index 5, got %d", database.WriteIdx())
	}

	// the index never moves backwards
	database.SetWriteIdx(3)
	if database.WriteIdx() != 5 {
		t.Errorf("Write index must be monotonic, got %d", database.WriteIdx())
	}

	_ = database.Set("k", []byte("v"), 9)
	if database.WriteIdx() != 9 {
		t.Errorf("Set should advance the write index, got %d", database.WriteIdx())
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	source := factory()
	defer source.Close()

	requireFeature(t, source, db.FeatureSave|db.FeatureLoad)

	for i := 0; i < 100; i++ {
		_ = source.Set(fmt.Sprintf("key-%03d", i), []byte(fmt.Sprintf("value-%d", i)), uint64(i+1))
	}
	_ = source.Set("empty", []byte{}, 101)

	var buf bytes.Buffer
	if err := source.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	target := factory()
	defer target.Close()

	// existing data must be replaced
	_ = target.Set("stale", []byte("x"), 1)

	if err := target.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		v, ok := target.Get(fmt.Sprintf("key-%03d", i))
		if !ok || string(v) != fmt.Sprintf("value-%d", i) {
			t.Errorf("key-%03d not restored correctly: %s (found=%v)", i, v, ok)
		}
	}
	if !target.Has("empty") {
		t.Errorf("empty value not restored")
	}
	if target.Has("stale") {
		t.Errorf("Load should replace existing data")
	}
	if target.WriteIdx() != source.WriteIdx() {
		t.Errorf("write index not restored: got %d, want %d", target.WriteIdx(), source.WriteIdx())
	}

	// garbage input
	if err := target.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Load should fail for invalid input")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	largeValue := make([]byte, 1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}
	_ = database.Set("large", largeValue, 1)
	if v, ok := database.Get("large"); !ok || !bytes.Equal(v, largeValue) {
		t.Errorf("large value not stored correctly")
	}

	specialKey := "doc/systems/ä/€/🙂"
	_ = database.Set(specialKey, []byte("special"), 2)
	if v, ok := database.Get(specialKey); !ok || string(v) != "special" {
		t.Errorf("special key not stored correctly")
	}

	if err := database.Apply(nil, 3); err != nil {
		t.Errorf("empty batch should not fail: %v", err)
	}
}

func testConcurrentBatches(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureBatch|db.FeatureScan)

	// every batch writes a pair of keys, a reader must never see half a pair
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("%02d-%03d", w, i)
				_ = database.Apply([]db.Op{
					{Type: db.OpSet, Key: "a/" + key, Value: []byte(key)},
					{Type: db.OpSet, Key: "b/" + key, Value: []byte(key)},
				}, uint64(w*1000+i+1))
			}
		}(w)
	}
	wg.Wait()

	countA, countB := 0, 0
	database.Scan("a/", func(string, []byte) bool { countA++; return true })
	database.Scan("b/", func(string, []byte) bool { countB++; return true })
	if countA != 400 || countB != 400 {
		t.Errorf("expected 400 keys per prefix, got a=%d b=%d", countA, countB)
	}
}
