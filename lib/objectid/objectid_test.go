package objectid

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentUnique(t *testing.T) {
	const (
		workers = 100
		perWork = 1000
	)
	g := NewGenerator()

	results := make([][]string, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]string, perWork)
			for i := range ids {
				ids[i] = g.New()
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()

	seen := make(map[string]struct{}, workers*perWork)
	for _, ids := range results {
		for _, id := range ids {
			require.True(t, Valid(id), "invalid id %s", id)
			_, dup := seen[id]
			require.False(t, dup, "duplicate id %s", id)
			seen[id] = struct{}{}
		}
	}
	assert.Len(t, seen, workers*perWork)
}

func TestMonotonicWithinSecond(t *testing.T) {
	fixed := time.Unix(1714000000, 0)
	g := NewGenerator(WithClock(func() time.Time { return fixed }), WithMachineID([5]byte{1, 2, 3, 4, 5}))
	g.counter.Store(0)

	prev := g.New()
	for i := 0; i < 1000; i++ {
		next := g.New()
		assert.Less(t, prev, next)
		prev = next
	}
	assert.Equal(t, "6629908001020304050003e9", prev)
}

func TestTimestamp(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(WithClock(func() time.Time { return at }))

	ts, err := Timestamp(g.New())
	require.NoError(t, err)
	assert.True(t, at.Equal(ts))

	_, err = Timestamp("nope")
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(New()))
	assert.False(t, Valid(""))
	assert.False(t, Valid("zz30f1a2c3d4e5f601020304"))
	assert.False(t, Valid("6630f1a2c3d4e5f6010203"))
}
