package stats

import (
	"fmt"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("app")

// --------------------------------------------------------------------------
// Config store metrics
// --------------------------------------------------------------------------

var (
	storeCommits   = metrics.NewCounter(`dctl_confstore_commits_total`)
	storeConflicts = metrics.NewCounter(`dctl_confstore_conflicts_total`)
	storeRejected  = metrics.NewCounter(`dctl_confstore_rejected_total`)
	storeDuration  = metrics.NewHistogram(`dctl_confstore_commit_duration_seconds`)
	storeReloads   = metrics.NewCounter(`dctl_confstore_reloads_total`)
)

// StoreCommit records the outcome of a single MakeChanges call
func StoreCommit(start time.Time, conflict, rejected bool) {
	storeDuration.UpdateDuration(start)
	switch {
	case conflict:
		storeConflicts.Inc()
	case rejected:
		storeRejected.Inc()
	default:
		storeCommits.Inc()
	}
}

// StoreReload counts reloads of the in-memory mirror
func StoreReload() {
	storeReloads.Inc()
}

// --------------------------------------------------------------------------
// RPC metrics
// --------------------------------------------------------------------------

// RPCCall records a handled rpc call, labelled by service, method and error code
func RPCCall(service, method string, start time.Time, code string) {
	if code == "" {
		code = "OK"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`dctl_rpc_calls_total{service=%q,method=%q,code=%q}`, service, method, code)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dctl_rpc_duration_seconds{service=%q,method=%q}`, service, method)).UpdateDuration(start)
}

// SagaStep records the duration of a provisioning step
func SagaStep(saga, step string, start time.Time, failed bool) {
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dctl_saga_step_duration_seconds{saga=%q,step=%q}`, saga, step)).UpdateDuration(start)
	if failed {
		metrics.GetOrCreateCounter(fmt.Sprintf(`dctl_saga_step_failures_total{saga=%q,step=%q}`, saga, step)).Inc()
	}
}

// --------------------------------------------------------------------------
// Exposition
// --------------------------------------------------------------------------

// Handler exposes all metrics in the prometheus text format
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
}

// Serve starts a blocking http server exposing /metrics on endpoint
func Serve(endpoint string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	log.Infof("Starting metrics endpoint on %s/metrics", endpoint)
	return http.ListenAndServe(endpoint, mux)
}
