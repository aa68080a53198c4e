package boltdb

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dCtl/lib/db"
	dbtesting "github.com/ValentinKolb/dCtl/lib/db/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func factory(t testing.TB) dbtesting.DBFactory {
	dir := t.TempDir()
	var n atomic.Int64
	return func() db.KVDB {
		path := filepath.Join(dir, fmt.Sprintf("db-%d.bolt", n.Add(1)))
		d, err := NewBoltDB(Options{Path: path, NoSync: true})
		if err != nil {
			t.Fatalf("open bolt: %v", err)
		}
		return d
	}
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "BoltDB", factory(t))
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "BoltDB", factory(b))
}

func TestReopenKeepsDataAndWriteIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.bolt")

	d, err := NewBoltDB(Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, d.Apply([]db.Op{
		{Type: db.OpSet, Key: "doc/systems/a", Value: []byte(`{"name":"a"}`)},
		{Type: db.OpSet, Key: "meta/revision", Value: []byte{0, 0, 0, 0, 0, 0, 0, 7}},
	}, 42))
	require.NoError(t, d.Close())

	d, err = NewBoltDB(Options{Path: path})
	require.NoError(t, err)
	defer d.Close()

	v, ok := d.Get("doc/systems/a")
	assert.True(t, ok)
	assert.Equal(t, `{"name":"a"}`, string(v))
	assert.Equal(t, uint64(42), d.WriteIdx())
	assert.True(t, d.SupportsFeature(db.FeaturePersistent))
	assert.Equal(t, 2, d.GetInfo().Keys)
}

func TestEmptyPathIsRejected(t *testing.T) {
	_, err := NewBoltDB(Options{})
	assert.Error(t, err)
}
