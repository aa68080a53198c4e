// Package stats holds the process metrics of dCtl, backed by
// github.com/VictoriaMetrics/metrics. Metrics are exposed in the prometheus
// text format via Handler or Serve.
package stats
