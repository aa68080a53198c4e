// Package reconcile provides Poller, a cancellable background task that waits
// for a condition and then performs a one time action, e.g. normalising the
// local cluster member record once the config store finished its initial load.
//
// The poller never panics the process and never runs its action again after
// it reached Done. Time is taken from a benbjohnson/clock.Clock so tests can
// drive the backoff with a mock clock.
package reconcile
