package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veldt-io/resource-proxy/pkg/cache"
	"github.com/veldt-io/resource-proxy/pkg/config"
	"github.com/veldt-io/resource-proxy/pkg/fetcher"
)

// countingFetcher is a fetcher.Fetcher fake that counts invocations and
// tracks the maximum number of concurrent calls.
type countingFetcher struct {
	mu         sync.Mutex
	calls      int64
	active     int64
	maxActive  int64
	delay      time.Duration
	err        error
	responseFn func(path string) []byte
}

func (f *countingFetcher) Fetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	atomic.AddInt64(&f.calls, 1)

	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", fetcher.ErrTimeout, ctx.Err())
		}
	}

	if f.err != nil {
		return nil, f.err
	}
	if f.responseFn != nil {
		return f.responseFn(path), nil
	}
	return []byte(`{"status":"ok"}`), nil
}

func (f *countingFetcher) Calls() int64 {
	return atomic.LoadInt64(&f.calls)
}

func (f *countingFetcher) MaxActive() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

func testConfig() config.Snapshot {
	cfg := config.Default()
	cfg.BatchDelay = 0
	cfg.CacheTTL = time.Minute
	cfg.MaxConcurrency = 5
	return cfg
}

func newTestCoordinator(t *testing.T, cfg config.Snapshot, f fetcher.Fetcher) *Coordinator {
	t.Helper()

	c, err := New(cfg, f, cache.NewStore(cfg.CacheMaxEntries))
	require.NoError(t, err)
	return c
}

func TestNew_RequiresCollaborators(t *testing.T) {
	cfg := testConfig()

	_, err := New(cfg, nil, cache.NewStore(10))
	require.Error(t, err)

	_, err = New(cfg, &countingFetcher{}, nil)
	require.Error(t, err)
}

func TestGet_CacheHitSkipsNetwork(t *testing.T) {
	f := &countingFetcher{}
	c := newTestCoordinator(t, testConfig(), f)
	ctx := context.Background()

	_, err := c.Get(ctx, "/v1/items/42/", nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.Calls())

	for i := 0; i < 5; i++ {
		value, err := c.Get(ctx, "/v1/items/42/", nil)
		require.NoError(t, err)
		require.Equal(t, `{"status":"ok"}`, string(value))
	}
	require.EqualValues(t, 1, f.Calls(), "cache hits must not reach the network")
}

func TestGet_DeduplicatesConcurrentRequests(t *testing.T) {
	f := &countingFetcher{delay: 100 * time.Millisecond}
	c := newTestCoordinator(t, testConfig(), f)

	const n = 5
	var wg sync.WaitGroup
	results := make([][]byte, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "/v1/items/X/", nil)
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, f.Calls(), "exactly one upstream call for N concurrent requests")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, string(results[0]), string(results[i]), "all callers must observe the identical outcome")
	}
}

func TestGet_DistinctKeysFetchSeparately(t *testing.T) {
	f := &countingFetcher{
		delay: 20 * time.Millisecond,
		responseFn: func(path string) []byte {
			return []byte(path)
		},
	}
	c := newTestCoordinator(t, testConfig(), f)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := c.Get(context.Background(), fmt.Sprintf("/v1/items/%d/", i), nil)
			require.NoError(t, err)
			require.Equal(t, fmt.Sprintf("/v1/items/%d/", i), string(value))
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 3, f.Calls())
}

func TestGet_ConcurrencyBound(t *testing.T) {
	f := &countingFetcher{delay: 50 * time.Millisecond}

	cfg := testConfig()
	cfg.MaxConcurrency = 2
	c := newTestCoordinator(t, cfg, f)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Get(context.Background(), fmt.Sprintf("/v1/items/%d/", i), nil)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.LessOrEqual(t, f.MaxActive(), int64(2), "active fetches must never exceed MaxConcurrency")
	require.EqualValues(t, 8, f.Calls())
}

func TestGet_FailureSharedAndNotCached(t *testing.T) {
	upstreamErr := &fetcher.UpstreamError{StatusCode: 502, Message: "bad gateway"}
	f := &countingFetcher{delay: 50 * time.Millisecond, err: upstreamErr}
	c := newTestCoordinator(t, testConfig(), f)

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Get(context.Background(), "/v1/broken/", nil)
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, f.Calls())
	for i := 0; i < n; i++ {
		var ue *fetcher.UpstreamError
		require.ErrorAs(t, errs[i], &ue, "every waiter observes the typed failure")
	}

	// Failure must not populate the cache: the next call fetches again.
	f.err = nil
	_, err := c.Get(context.Background(), "/v1/broken/", nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, f.Calls())
}

func TestGet_TimeoutSharedByAllWaiters(t *testing.T) {
	f := &countingFetcher{delay: time.Second, err: fetcher.ErrTimeout}
	c := newTestCoordinator(t, testConfig(), f)

	const n = 3
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_, errs[i] = c.Get(ctx, "/v1/slow/", nil)
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, f.Calls())
	for i := 0; i < n; i++ {
		require.ErrorIs(t, errs[i], fetcher.ErrTimeout)
	}
	require.Equal(t, 0, int(c.Stats().Entries), "timeouts must not be cached")
}

func TestGet_StaleEntryTriggersRecompute(t *testing.T) {
	f := &countingFetcher{}

	cfg := testConfig()
	cfg.CacheTTL = 100 * time.Millisecond
	c := newTestCoordinator(t, cfg, f)
	ctx := context.Background()

	_, err := c.Get(ctx, "/v1/items/a/", nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.Calls())

	// Fresh at t=0.
	_, err = c.Get(ctx, "/v1/items/a/", nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.Calls())

	time.Sleep(150 * time.Millisecond)

	// Stale at t=150ms: recompute.
	_, err = c.Get(ctx, "/v1/items/a/", nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, f.Calls())
}

func TestGet_BatchDelayCoalescesLateArrivals(t *testing.T) {
	f := &countingFetcher{}

	cfg := testConfig()
	cfg.BatchDelay = 80 * time.Millisecond
	c := newTestCoordinator(t, cfg, f)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := c.Get(context.Background(), "/v1/items/X/", nil)
		require.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		// Arrives during the owner's coalescing window.
		time.Sleep(30 * time.Millisecond)
		_, err := c.Get(context.Background(), "/v1/items/X/", nil)
		require.NoError(t, err)
	}()
	wg.Wait()

	require.EqualValues(t, 1, f.Calls())
}

func TestGet_WaiterContextCancellation(t *testing.T) {
	f := &countingFetcher{delay: 300 * time.Millisecond}
	c := newTestCoordinator(t, testConfig(), f)

	started := make(chan struct{})
	go func() {
		close(started)
		c.Get(context.Background(), "/v1/items/X/", nil)
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "/v1/items/X/", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestInvalidate(t *testing.T) {
	f := &countingFetcher{}
	c := newTestCoordinator(t, testConfig(), f)
	ctx := context.Background()

	_, err := c.Get(ctx, "/v1/items/42/", nil)
	require.NoError(t, err)

	c.Invalidate("/v1/items/42/", nil)

	_, err = c.Get(ctx, "/v1/items/42/", nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, f.Calls())
}

func TestGet_QueryParamsDistinguishKeys(t *testing.T) {
	f := &countingFetcher{}
	c := newTestCoordinator(t, testConfig(), f)
	ctx := context.Background()

	_, err := c.Get(ctx, "/v1/items/", url.Values{"page": []string{"1"}})
	require.NoError(t, err)
	_, err = c.Get(ctx, "/v1/items/", url.Values{"page": []string{"2"}})
	require.NoError(t, err)
	require.EqualValues(t, 2, f.Calls())

	_, err = c.Get(ctx, "/v1/items/", url.Values{"page": []string{"1"}})
	require.NoError(t, err)
	require.EqualValues(t, 2, f.Calls(), "same path+query must hit the cache")
}

func TestGet_ErrorIsNotFoundPassthrough(t *testing.T) {
	f := &countingFetcher{err: fmt.Errorf("%w: /v1/missing/", fetcher.ErrNotFound)}
	c := newTestCoordinator(t, testConfig(), f)

	_, err := c.Get(context.Background(), "/v1/missing/", nil)
	require.True(t, errors.Is(err, fetcher.ErrNotFound))
}
