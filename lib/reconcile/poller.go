package reconcile

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("reconcile")

// State of a Poller
type State int32

const (
	Waiting State = iota
	Done
)

func (s State) String() string {
	if s == Done {
		return "DONE"
	}
	return "WAITING"
}

// Poller waits until Predicate holds, then runs Action once and stops.
//
// A false predicate, an error or a panic in Predicate or Action count as
// "not yet": the poller waits and tries again. The wait starts at Interval
// and doubles after every failed attempt up to MaxInterval.
type Poller struct {
	// Name is used in log messages
	Name string
	// Interval is the first delay between attempts (default 5s)
	Interval time.Duration
	// MaxInterval caps the backoff (default 8 * Interval)
	MaxInterval time.Duration
	// Clock is an abstraction of the time package. By default it will use
	// a real-time clock but a mock clock can be used for testing.
	Clock clock.Clock

	Predicate func(ctx context.Context) (bool, error)
	Action    func(ctx context.Context) error

	state    atomic.Int32
	attempts atomic.Int64
}

// State returns the current state
func (p *Poller) State() State {
	return State(p.state.Load())
}

// Attempts returns how often the predicate was evaluated
func (p *Poller) Attempts() int {
	return int(p.attempts.Load())
}

// Start runs the poller in its own goroutine. The returned channel is closed
// when the poller stopped (done or cancelled).
func (p *Poller) Start(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := p.Run(ctx); err != nil {
			log.Infof("%s: stopped before done: %v", p.Name, err)
		}
	}()
	return stopped
}

// Run blocks until the action ran successfully (nil) or ctx is cancelled (ctx.Err()).
// Calling Run on a poller that is already done returns immediately.
func (p *Poller) Run(ctx context.Context) error {
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	if p.Interval <= 0 {
		p.Interval = 5 * time.Second
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = 8 * p.Interval
	}

	wait := p.Interval
	for p.State() != Done {
		ok, err := p.attempt(ctx)
		if ok {
			p.state.Store(int32(Done))
			log.Infof("%s: done after %d attempts", p.Name, p.Attempts())
			return nil
		}
		if err != nil {
			log.Warningf("%s: attempt %d failed: %v", p.Name, p.Attempts(), err)
		} else {
			log.Debugf("%s: not ready (attempt %d), retrying in %v", p.Name, p.Attempts(), wait)
		}

		timer := p.Clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if wait *= 2; wait > p.MaxInterval {
			wait = p.MaxInterval
		}
	}
	return nil
}

// attempt evaluates the predicate and, if it holds, runs the action
func (p *Poller) attempt(ctx context.Context) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			done, err = false, fmt.Errorf("panic: %v", r)
		}
	}()

	p.attempts.Add(1)
	ready, err := p.Predicate(ctx)
	if err != nil || !ready {
		return false, err
	}
	if p.Action != nil {
		if err := p.Action(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}
