// Package metrics provides the Prometheus registry and HTTP handler for the
// panel aggregator. All metrics are defined in their respective packages
// (client, fetcher, aggregate, viewstate) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the panel aggregator.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves all registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Backend Request Metrics (pkg/client):
//   - panel_backend_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - panel_backend_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - panel_backend_errors_total{class} (Counter): Errors by class (client, server, network)
//
// Partition Metrics (pkg/fetcher):
//   - panel_partition_fetches_total{resource, outcome} (Counter): Partition fetches by outcome (ok, network_error, parse_error)
//   - panel_partition_fetch_duration_seconds{resource} (Histogram): Partition fetch duration
//
// Fetch Cycle Metrics (pkg/aggregate):
//   - panel_fetch_cycles_total{view, outcome} (Counter): Settled cycles by outcome (settled, failed)
//   - panel_fetch_cycle_duration_seconds{view} (Histogram): Dispatch until all partitions settled
//   - panel_stale_results_dropped_total{view} (Counter): Cycles superseded before they settled
//
// View State Metrics (pkg/viewstate):
//   - panel_viewstate_operations_total{operation, result} (Counter): Load/save/delete by result
//
// Example Prometheus Queries:
//
//   # Partition failure rate per resource
//   sum by (resource) (rate(panel_partition_fetches_total{outcome!="ok"}[5m])) /
//   sum by (resource) (rate(panel_partition_fetches_total[5m]))
//
//   # Unrecognized response shapes
//   rate(panel_partition_fetches_total{outcome="parse_error"}[5m])
//
//   # P95 view latency
//   histogram_quantile(0.95, rate(panel_fetch_cycle_duration_seconds_bucket[5m]))
//
//   # Superseded cycles (users paging faster than the backend answers)
//   rate(panel_stale_results_dropped_total[5m])
