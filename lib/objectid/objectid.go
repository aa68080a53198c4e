package objectid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	mrand "math/rand"
	"sync/atomic"
	"time"
)

// Len is the length of a rendered id (12 bytes as hex)
const Len = 24

// Generator creates 12 byte ids: 4 bytes unix seconds, 5 bytes machine/process
// identifier and a 3 byte counter. Ids created by one generator within the same
// second are strictly increasing. Safe for concurrent use.
type Generator struct {
	machine [5]byte
	counter atomic.Uint32
	now     func() time.Time
}

// GeneratorOp is an option for NewGenerator
type GeneratorOp func(*Generator)

// WithMachineID fixes the 5 byte machine part (tests, deterministic tooling)
func WithMachineID(id [5]byte) GeneratorOp {
	return func(g *Generator) {
		g.machine = id
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) GeneratorOp {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator returns a generator with a random machine part and a random counter start.
func NewGenerator(opts ...GeneratorOp) *Generator {
	g := &Generator{now: time.Now}
	if _, err := rand.Read(g.machine[:]); err != nil {
		// crypto/rand does not fail on supported platforms, fall back anyway
		binary.BigEndian.PutUint32(g.machine[:4], mrand.Uint32())
		g.machine[4] = byte(mrand.Intn(256))
	}
	g.counter.Store(mrand.Uint32() & 0xffffff)
	for _, op := range opts {
		op(g)
	}
	return g
}

// New returns the next id rendered as 24 lowercase hex chars
func (g *Generator) New() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(g.now().Unix()))
	copy(b[4:9], g.machine[:])
	c := g.counter.Add(1)
	b[9] = byte(c >> 16)
	b[10] = byte(c >> 8)
	b[11] = byte(c)
	return hex.EncodeToString(b[:])
}

var defaultGenerator = NewGenerator()

// New returns an id from the process wide generator
func New() string {
	return defaultGenerator.New()
}

// Valid reports whether id looks like a generated id
func Valid(id string) bool {
	if len(id) != Len {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// Timestamp extracts the creation second of id
func Timestamp(id string) (time.Time, error) {
	if !Valid(id) {
		return time.Time{}, fmt.Errorf("invalid id %q", id)
	}
	b, _ := hex.DecodeString(id[:8])
	return time.Unix(int64(binary.BigEndian.Uint32(b)), 0).UTC(), nil
}
