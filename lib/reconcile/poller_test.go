package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoneOnThirdPoll(t *testing.T) {
	var polls, writes atomic.Int32
	p := &Poller{
		Name:     "test",
		Interval: time.Millisecond,
		Predicate: func(context.Context) (bool, error) {
			return polls.Add(1) >= 3, nil
		},
		Action: func(context.Context) error {
			writes.Add(1)
			return nil
		},
	}

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, Done, p.State())
	assert.Equal(t, 3, p.Attempts())
	assert.EqualValues(t, 3, polls.Load())
	assert.EqualValues(t, 1, writes.Load())

	// never runs again after done
	require.NoError(t, p.Run(context.Background()))
	assert.EqualValues(t, 3, polls.Load())
	assert.EqualValues(t, 1, writes.Load())
}

func TestErrorsAndPanicsAreRetried(t *testing.T) {
	var polls atomic.Int32
	p := &Poller{
		Interval: time.Millisecond,
		Predicate: func(context.Context) (bool, error) {
			switch polls.Add(1) {
			case 1:
				return false, errors.New("store not constructed")
			case 2:
				panic("boom")
			default:
				return true, nil
			}
		},
	}
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 3, p.Attempts())
}

func TestActionFailureRetries(t *testing.T) {
	var writes atomic.Int32
	p := &Poller{
		Interval:  time.Millisecond,
		Predicate: func(context.Context) (bool, error) { return true, nil },
		Action: func(context.Context) error {
			if writes.Add(1) == 1 {
				return errors.New("conflict")
			}
			return nil
		},
	}
	require.NoError(t, p.Run(context.Background()))
	assert.EqualValues(t, 2, writes.Load())
}

func TestCancel(t *testing.T) {
	mock := clock.NewMock()
	p := &Poller{
		Interval:  time.Hour,
		Clock:     mock,
		Predicate: func(context.Context) (bool, error) { return false, nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := p.Start(ctx)
	require.Eventually(t, func() bool { return p.Attempts() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancel")
	}
	assert.Equal(t, Waiting, p.State())
}

func TestBackoffWithMockClock(t *testing.T) {
	mock := clock.NewMock()
	var polls atomic.Int32
	p := &Poller{
		Interval:    time.Second,
		MaxInterval: 4 * time.Second,
		Clock:       mock,
		Predicate: func(context.Context) (bool, error) {
			return polls.Add(1) >= 5, nil
		},
	}

	stopped := p.Start(context.Background())

	// nothing happens before the first interval passed
	require.Eventually(t, func() bool { return p.Attempts() == 1 }, time.Second, time.Millisecond)
	mock.Add(500 * time.Millisecond)
	assert.Equal(t, 1, p.Attempts())

	// waits are 1s, 2s, 4s, 4s; keep advancing until done
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return p.State() == Done
	}, 2*time.Second, time.Millisecond)
	<-stopped
	assert.Equal(t, 5, p.Attempts())
}
