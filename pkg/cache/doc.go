// Package cache provides bounded in-memory caching of upstream responses.
//
// The store keeps opaque byte payloads keyed by canonical request signature
// (path plus sorted query parameters) with the following features:
//
// - Per-entry TTL; stale entries are treated as absent and purged on touch
// - LRU eviction when the configured capacity is exceeded
// - No I/O on any operation; a single mutex guards every mutation
// - Prometheus metrics for observability
// - Deterministic cache key generation
//
// # Basic Usage
//
//	store := cache.NewStore(500)
//
//	key := cache.Key{
//		Path:  "/v1/items/42/",
//		Query: url.Values{"order": []string{"asc"}},
//	}
//
//	store.Set(key, payload, 5*time.Minute)
//
//	value, ok := store.Get(key)
//	if !ok {
//		// miss - fetch from upstream
//	}
//
// # Metrics
//
// The store exports Prometheus metrics:
//
//   - proxy_cache_hits_total - Cache hits
//   - proxy_cache_misses_total{reason} - Cache misses (absent, stale)
//   - proxy_cache_evictions_total - LRU evictions
//   - proxy_cache_entries - Current entry count
//   - proxy_cache_size_bytes - Current payload bytes
//
// # Ownership
//
// A Store instance is owned by exactly one coordinator; nothing else
// mutates it. The values it returns are shared slices - callers must not
// modify them.
package cache
