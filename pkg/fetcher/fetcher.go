// Package fetcher performs single outbound retrievals against the upstream
// API with a per-call deadline and typed failure classification.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/veldt-io/resource-proxy/pkg/config"
)

// Prometheus metrics for upstream operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proxy_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// maxResponseBytes bounds how much of an upstream body is read into memory.
const maxResponseBytes = 32 << 20

// Fetcher retrieves raw bytes for a path (or absolute URL) and query.
// Implementations must respect the context deadline.
type Fetcher interface {
	Fetch(ctx context.Context, pathOrURL string, query url.Values) ([]byte, error)
}

// Client is the HTTP implementation of Fetcher.
type Client struct {
	httpClient *http.Client
	cfg        config.Snapshot
	logger     zerolog.Logger
}

// New creates a fetcher client from a validated config snapshot.
func New(cfg config.Snapshot) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		cfg:    cfg,
		logger: log.With().Str("component", "fetcher").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Fetch performs a single GET against the upstream and returns the raw body.
// pathOrURL may be an upstream-relative path or an absolute URL (used for
// image sources). The call is bounded by the configured APITimeout unless
// the caller's context expires first.
func (c *Client) Fetch(ctx context.Context, pathOrURL string, query url.Values) ([]byte, error) {
	target, err := c.buildURL(pathOrURL, query)
	if err != nil {
		return nil, &UpstreamError{Message: "invalid request target", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.APITimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &UpstreamError{Message: "create request", Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, image/*")

	endpoint := req.URL.Path
	start := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		ferr := c.classifyTransport(ctx, err)
		class := Classify(ferr)
		upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
		upstreamRequestsTotal.WithLabelValues(endpoint, string(class)).Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Upstream request failed")
		return nil, ferr
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusNotFound {
		upstreamErrorsTotal.WithLabelValues(string(ClassNotFound)).Inc()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstreamErrorsTotal.WithLabelValues(string(ClassUpstream)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("Upstream request error")
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			upstreamErrorsTotal.WithLabelValues(string(ClassTimeout)).Inc()
			return nil, fmt.Errorf("%w: %s", ErrTimeout, endpoint)
		}
		upstreamErrorsTotal.WithLabelValues(string(ClassNetwork)).Inc()
		return nil, &UpstreamError{Message: "read response body", Err: err}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Upstream request complete")

	return body, nil
}

// buildURL resolves a path against the configured base URL, passing absolute
// URLs through untouched, and appends the canonical query string.
func (c *Client) buildURL(pathOrURL string, query url.Values) (string, error) {
	raw := pathOrURL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(pathOrURL, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		merged := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				merged.Add(k, v)
			}
		}
		u.RawQuery = merged.Encode()
	}
	return u.String(), nil
}

// classifyTransport maps a transport-level failure onto the error taxonomy.
func (c *Client) classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &UpstreamError{Message: "transport failure", Err: err}
}
