// Package metrics provides the centralized Prometheus metrics registry for
// the resource proxy. All metrics are defined in their respective packages
// (cache, coordinator, fetcher, imaging) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - proxy_cache_hits_total (Counter): Cache hits
//   - proxy_cache_misses_total{reason} (Counter): Cache misses (absent, stale)
//   - proxy_cache_evictions_total (Counter): LRU evictions
//   - proxy_cache_entries (Gauge): Current entry count
//   - proxy_cache_size_bytes (Gauge): Current payload bytes
//
// Coordinator Metrics (pkg/coordinator):
//   - proxy_coordinator_fetches_total{outcome} (Counter): Owner-initiated fetches
//     (success, not_found, upstream, timeout, network, cancelled)
//   - proxy_coordinator_coalesced_total (Counter): Callers attached to an
//     existing in-flight request
//   - proxy_coordinator_inflight (Gauge): Distinct keys with an active fetch
//
// Upstream Metrics (pkg/fetcher):
//   - proxy_upstream_requests_total{endpoint, status} (Counter): Requests by
//     endpoint and HTTP status
//   - proxy_upstream_request_duration_seconds{endpoint} (Histogram): Request
//     duration by endpoint
//   - proxy_upstream_errors_total{class} (Counter): Errors by class
//     (not_found, upstream, timeout, network)
//
// Image Metrics (pkg/imaging):
//   - proxy_images_processed_total{format} (Counter): Processed images by
//     output format
//   - proxy_image_processing_duration_seconds (Histogram): Fetch+decode+encode
//     duration
//   - proxy_image_decode_errors_total (Counter): Payloads that failed to decode
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(proxy_cache_hits_total[5m])) /
//   (sum(rate(proxy_cache_hits_total[5m])) + sum(rate(proxy_cache_misses_total[5m])))
//
//   # Dedup Effectiveness (coalesced callers per upstream fetch)
//   rate(proxy_coordinator_coalesced_total[5m]) /
//   rate(proxy_coordinator_fetches_total[5m])
//
//   # Upstream Error Rate
//   rate(proxy_upstream_errors_total[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(proxy_upstream_request_duration_seconds_bucket[5m]))
