// Package saga runs multi step workflows that span several services without a
// global transaction.
//
// Each Step is a plain function over a shared state struct and runs under its
// own deadline. One step is marked as the commit point. Failures before it
// leave nothing behind and keep their error code (timeouts become
// EXTERNAL_DEPENDENCY). Failures after it are reported as
// errs.FatalPartialFailure naming the failed step and the durable state that
// was left for an operator; the runner does not compensate.
package saga
