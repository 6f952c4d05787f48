// Package prefetch provides parallel cache warming through the request
// coordinator.
//
// A warmer takes a list of request targets and runs them through the
// coordinator with a bounded worker pool, so a cold proxy can populate its
// cache before traffic arrives (or refresh a known hot set on a schedule).
// Because every target goes through the coordinator, warming deduplicates
// against live traffic for the same keys and respects the outbound
// concurrency bound.
//
// Example usage:
//
//	warmer := prefetch.NewWarmer(coordinator, prefetch.DefaultConfig())
//	report := warmer.Warm(ctx, []prefetch.Target{
//		{Path: "/v1/items/"},
//		{Path: "/v1/regions/", Query: url.Values{"page": []string{"1"}}},
//	})
//
// The warmer:
//   - Spawns a worker pool (default 4 workers)
//   - Distributes targets across workers
//   - Applies a per-target timeout
//   - Collects per-target errors with progress logging
//   - Handles failures gracefully (reports partial results)
package prefetch
