package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dCtl/lib/errs"
	"github.com/ValentinKolb/dCtl/lib/stats"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("saga")

// Step is one stage of a saga operating on the shared state S
type Step[S any] struct {
	// Name identifies the step in errors, logs and metrics
	Name string
	// Timeout bounds the step, 0 uses Runner.StepTimeout
	Timeout time.Duration
	// Skip is optional, a step is skipped when it returns true
	Skip func(state *S) bool
	// Run performs the step. The context carries the step deadline.
	Run func(ctx context.Context, state *S) error
	// Commits marks the step that makes the saga's effects durable.
	// Failures after it are reported as FATAL_PARTIAL_FAILURE.
	Commits bool
}

// Runner executes steps in order and stops at the first failure. There is no
// compensation: steps after the commit point that fail leave the committed
// state in place and the error names what was left behind.
type Runner[S any] struct {
	// Name of the saga (metrics label, error op)
	Name string
	// StepTimeout is the default deadline of a step
	StepTimeout time.Duration
	// Orphan describes the durable state left behind, used in partial failure errors
	Orphan func(state *S) string
	Steps  []Step[S]
}

// Run executes all steps against state.
//
// Before the commit point the step error is returned with its own code; a
// timeout or cancellation becomes EXTERNAL_DEPENDENCY. After the commit point
// every failure becomes FATAL_PARTIAL_FAILURE and wraps the cause.
func (r *Runner[S]) Run(ctx context.Context, state *S) error {
	committed := false
	for _, step := range r.Steps {
		if step.Skip != nil && step.Skip(state) {
			log.Debugf("%s: skipping step %s", r.Name, step.Name)
			continue
		}

		err := r.runStep(ctx, step, state)
		if err == nil {
			if step.Commits {
				committed = true
			}
			continue
		}

		if committed {
			orphan := ""
			if r.Orphan != nil {
				orphan = r.Orphan(state)
			}
			log.Errorf("%s: step %s failed after commit, left %s: %v", r.Name, step.Name, orphan, err)
			return &errs.Error{
				Code: errs.FatalPartialFailure,
				Op:   r.Name,
				Msg:  fmt.Sprintf("step %s failed after commit, %s requires manual cleanup", step.Name, orphan),
				Err:  err,
			}
		}

		log.Warningf("%s: step %s failed: %v", r.Name, step.Name, err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &errs.Error{Code: errs.ExternalDependency, Op: r.Name, Msg: "step " + step.Name + " timed out", Err: err}
		}
		if errs.CodeOf(err) == errs.Internal {
			var e *errs.Error
			if !errors.As(err, &e) {
				return errs.Wrap(errs.Internal, r.Name+"."+step.Name, err)
			}
		}
		return err
	}
	return nil
}

func (r *Runner[S]) runStep(ctx context.Context, step Step[S], state *S) (err error) {
	timeout := step.Timeout
	if timeout == 0 {
		timeout = r.StepTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in step %s: %v", step.Name, rec)
		}
		stats.SagaStep(r.Name, step.Name, start, err != nil)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := step.Run(ctx, state); err != nil {
		return err
	}
	if step.Commits {
		// a commit that returned is durable, even past its deadline
		return nil
	}
	// a step that ignored its deadline still counts as failed
	return ctx.Err()
}
