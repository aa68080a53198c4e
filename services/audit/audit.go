package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/lib/db"
	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/benbjohnson/clock"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("audit")

// Levels of activity events
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelAlert   = "alert"
)

// Sink records activity events and reads them back per system
type Sink interface {
	Record(ctx context.Context, ev api.ActivityEvent) error
	Read(ctx context.Context, system string, filter api.ActivityLogFilter) ([]api.ActivityEvent, error)
}

// --------------------------------------------------------------------------
// Log
// --------------------------------------------------------------------------

const keyPrefix = "audit/"

// Log is a Sink persisting events into a db.KVDB. Events of one system are
// kept under audit/<system>/<unix ms>/<seq>, so a prefix scan returns them
// in chronological order.
type Log struct {
	kv    db.KVDB
	clock clock.Clock
	seq   atomic.Uint64
}

// NewLog creates a log on kv. A nil clock uses the wall clock.
func NewLog(kv db.KVDB, clk clock.Clock) *Log {
	if clk == nil {
		clk = clock.New()
	}
	l := &Log{kv: kv, clock: clk}
	l.seq.Store(kv.WriteIdx())
	return l
}

func systemPrefix(system string) string {
	return keyPrefix + system + "/"
}

// Record stores ev. Time and ID are filled in when missing.
func (l *Log) Record(ctx context.Context, ev api.ActivityEvent) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Internal, "audit.Record", err)
	}
	if ev.Time == 0 {
		ev.Time = l.clock.Now().UnixMilli()
	}
	if ev.Level == "" {
		ev.Level = LevelInfo
	}
	seq := l.seq.Add(1)
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("%016x%08x", ev.Time, seq)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return errs.Wrap(errs.Internal, "audit.Record", err)
	}
	key := fmt.Sprintf("%s%016x/%016x", systemPrefix(ev.System), ev.Time, seq)
	if err := l.kv.Set(key, raw, seq); err != nil {
		return errs.Wrap(errs.Internal, "audit.Record", err)
	}
	log.Debugf("%s %s: %s", ev.Event, ev.System, strings.Join(ev.Desc, " "))
	return nil
}

// Read returns the events of system matching filter, oldest first
func (l *Log) Read(ctx context.Context, system string, filter api.ActivityLogFilter) ([]api.ActivityEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Internal, "audit.Read", err)
	}
	out := []api.ActivityEvent{}
	skipped := 0
	var decodeErr error
	l.kv.Scan(systemPrefix(system), func(_ string, value []byte) bool {
		var ev api.ActivityEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			decodeErr = err
			return false
		}
		if !Matches(ev, filter) {
			return true
		}
		if skipped < filter.Skip {
			skipped++
			return true
		}
		out = append(out, ev)
		return filter.Limit == 0 || len(out) < filter.Limit
	})
	if decodeErr != nil {
		return nil, errs.Wrap(errs.Internal, "audit.Read", decodeErr)
	}
	return out, nil
}

// Matches reports whether ev passes filter, skip and limit aside. Event
// matches the full event name or its entity prefix ("pool" matches
// "pool.create").
func Matches(ev api.ActivityEvent, filter api.ActivityLogFilter) bool {
	if filter.Event != "" && ev.Event != filter.Event && !strings.HasPrefix(ev.Event, filter.Event+".") {
		return false
	}
	if filter.Since != 0 && ev.Time < filter.Since {
		return false
	}
	if filter.Till != 0 && ev.Time >= filter.Till {
		return false
	}
	return true
}
