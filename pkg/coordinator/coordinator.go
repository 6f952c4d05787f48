// Package coordinator provides cache-aside orchestration of upstream
// requests with single-flight deduplication and bounded outbound
// concurrency.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/veldt-io/resource-proxy/pkg/cache"
	"github.com/veldt-io/resource-proxy/pkg/config"
	"github.com/veldt-io/resource-proxy/pkg/fetcher"
)

// Prometheus metrics for coordinator operations.
var (
	coordinatorFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_coordinator_fetches_total",
		Help: "Total owner-initiated upstream fetches by outcome",
	}, []string{"outcome"})

	coordinatorCoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_coordinator_coalesced_total",
		Help: "Total callers attached to an existing in-flight request",
	})

	coordinatorInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proxy_coordinator_inflight",
		Help: "Current number of distinct keys with an active upstream fetch",
	})
)

// inflightCall is the shared outcome slot for one miss-to-resolution cycle.
// The owner closes done exactly once after filling value/err; every waiter
// registered before that observes the identical outcome.
type inflightCall struct {
	done  chan struct{}
	value []byte
	err   error
}

// Coordinator owns one cache store and one in-flight map. On a cache miss
// it deduplicates concurrent identical requests, bounds outbound
// concurrency, applies a coalescing delay, and populates the cache on
// success. Failures are never cached.
type Coordinator struct {
	cfg     config.Snapshot
	fetcher fetcher.Fetcher
	store   *cache.Store
	sem     *semaphore.Weighted
	logger  zerolog.Logger

	// mu guards inflight and makes the cache-check / in-flight-check /
	// owner-registration sequence atomic per key.
	mu       sync.Mutex
	inflight map[string]*inflightCall
}

// New creates a coordinator from a validated config snapshot, a fetcher,
// and the cache store it will own.
func New(cfg config.Snapshot, f fetcher.Fetcher, store *cache.Store) (*Coordinator, error) {
	if f == nil {
		return nil, fmt.Errorf("coordinator: fetcher is required")
	}
	if store == nil {
		return nil, fmt.Errorf("coordinator: cache store is required")
	}
	return &Coordinator{
		cfg:      cfg,
		fetcher:  f,
		store:    store,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		logger:   log.With().Str("component", "coordinator").Logger(),
		inflight: make(map[string]*inflightCall),
	}, nil
}

// Get returns the payload for path+query, serving fresh cache hits without
// any network call. On a miss, concurrent identical requests share a single
// upstream fetch; at most MaxConcurrency fetches run at once across keys.
func (c *Coordinator) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	key := cache.Key{Path: path, Query: query}
	k := key.String()

	c.mu.Lock()
	if value, ok := c.store.Get(key); ok {
		c.mu.Unlock()
		c.logger.Debug().Str("key", k).Msg("Cache hit")
		return value, nil
	}

	if call, exists := c.inflight[k]; exists {
		c.mu.Unlock()
		coordinatorCoalescedTotal.Inc()
		c.logger.Debug().Str("key", k).Msg("Joining in-flight request")
		return c.wait(ctx, call)
	}

	call := &inflightCall{done: make(chan struct{})}
	c.inflight[k] = call
	c.mu.Unlock()

	value, err := c.execute(ctx, key)

	call.value = value
	call.err = err
	close(call.done)

	c.mu.Lock()
	delete(c.inflight, k)
	c.mu.Unlock()

	return value, err
}

// Invalidate drops any cached entry for path+query.
func (c *Coordinator) Invalidate(path string, query url.Values) {
	c.store.Delete(cache.Key{Path: path, Query: query})
}

// Stats returns the owned store's counters.
func (c *Coordinator) Stats() cache.Stats {
	return c.store.Stats()
}

// wait blocks until the owning request completes or the caller's context
// expires. The shared outcome is returned verbatim.
func (c *Coordinator) wait(ctx context.Context, call *inflightCall) ([]byte, error) {
	select {
	case <-call.done:
		return call.value, call.err
	case <-ctx.Done():
		return nil, c.mapContextErr(ctx.Err())
	}
}

// execute runs the owner's side of one miss-to-resolution cycle: coalescing
// delay, slot acquisition, the single upstream fetch, and cache population.
func (c *Coordinator) execute(ctx context.Context, key cache.Key) ([]byte, error) {
	if c.cfg.BatchDelay > 0 {
		select {
		case <-time.After(c.cfg.BatchDelay):
		case <-ctx.Done():
			coordinatorFetchesTotal.WithLabelValues("cancelled").Inc()
			return nil, c.mapContextErr(ctx.Err())
		}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		coordinatorFetchesTotal.WithLabelValues("cancelled").Inc()
		return nil, c.mapContextErr(err)
	}
	defer c.sem.Release(1)

	coordinatorInFlight.Inc()
	defer coordinatorInFlight.Dec()

	start := time.Now()
	value, err := c.fetcher.Fetch(ctx, key.Path, key.Query)
	if err != nil {
		coordinatorFetchesTotal.WithLabelValues(string(fetcher.Classify(err))).Inc()
		c.logger.Warn().
			Err(err).
			Str("key", key.String()).
			Dur("duration", time.Since(start)).
			Msg("Upstream fetch failed")
		return nil, err
	}

	c.store.Set(key, value, c.cfg.CacheTTL)
	coordinatorFetchesTotal.WithLabelValues("success").Inc()
	c.logger.Debug().
		Str("key", key.String()).
		Int("bytes", len(value)).
		Dur("duration", time.Since(start)).
		Msg("Upstream fetch complete")

	return value, nil
}

// mapContextErr surfaces deadline expiry as the shared timeout error.
func (c *Coordinator) mapContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", fetcher.ErrTimeout, err)
	}
	return err
}
