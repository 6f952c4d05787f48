// Package config provides the immutable tunables snapshot shared by all
// resource-proxy components.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Snapshot holds every tunable the proxy core reads. It is created once at
// process start, validated, and never mutated afterwards; all components
// share the same instance by reference.
type Snapshot struct {
	// BaseURL is the upstream API root (e.g. "https://api.example.com").
	BaseURL string

	// UserAgent is sent on every outbound request.
	UserAgent string

	// CacheMaxEntries bounds the number of cached responses.
	CacheMaxEntries int

	// CacheTTL is the default lifetime of a cached entry.
	CacheTTL time.Duration

	// MaxConcurrency caps the number of simultaneous outbound calls.
	MaxConcurrency int

	// BatchDelay is the dispatch-coalescing window applied before an
	// outbound call is made on a cache miss.
	BatchDelay time.Duration

	// APITimeout bounds every outbound call.
	APITimeout time.Duration

	// MaxImageBytes is the output-size ceiling for processed images.
	MaxImageBytes int

	// Default image transform parameters, used when a caller omits them.
	ImageMaxWidth  int
	ImageMaxHeight int
	ImageQuality   int
	ImageFormat    string
}

// ValidationError reports an invalid tunable discovered at startup.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid %s: %s", e.Field, e.Reason)
}

// Default returns a safe default configuration.
func Default() Snapshot {
	return Snapshot{
		BaseURL:         "https://api.example.com",
		UserAgent:       "resource-proxy/0.1.0",
		CacheMaxEntries: 500,
		CacheTTL:        5 * time.Minute,
		MaxConcurrency:  5,
		BatchDelay:      50 * time.Millisecond,
		APITimeout:      15 * time.Second,
		MaxImageBytes:   1 << 20,
		ImageMaxWidth:   1024,
		ImageMaxHeight:  1024,
		ImageQuality:    80,
		ImageFormat:     "jpeg",
	}
}

// Validate checks every tunable and returns a *ValidationError for the first
// invalid one.
func (s Snapshot) Validate() error {
	if s.BaseURL == "" {
		return &ValidationError{Field: "base_url", Reason: "must not be empty"}
	}
	if s.CacheMaxEntries <= 0 {
		return &ValidationError{Field: "cache_max_entries", Reason: fmt.Sprintf("must be > 0 (got %d)", s.CacheMaxEntries)}
	}
	if s.CacheTTL <= 0 {
		return &ValidationError{Field: "cache_ttl", Reason: fmt.Sprintf("must be > 0 (got %s)", s.CacheTTL)}
	}
	if s.MaxConcurrency <= 0 {
		return &ValidationError{Field: "max_concurrency", Reason: fmt.Sprintf("must be > 0 (got %d)", s.MaxConcurrency)}
	}
	if s.BatchDelay < 0 {
		return &ValidationError{Field: "batch_delay", Reason: fmt.Sprintf("must be >= 0 (got %s)", s.BatchDelay)}
	}
	if s.APITimeout <= 0 {
		return &ValidationError{Field: "api_timeout", Reason: fmt.Sprintf("must be > 0 (got %s)", s.APITimeout)}
	}
	if s.MaxImageBytes <= 0 {
		return &ValidationError{Field: "max_image_bytes", Reason: fmt.Sprintf("must be > 0 (got %d)", s.MaxImageBytes)}
	}
	if s.ImageMaxWidth <= 0 || s.ImageMaxHeight <= 0 {
		return &ValidationError{Field: "image_max_dimensions", Reason: "must be > 0"}
	}
	if s.ImageQuality < 1 || s.ImageQuality > 100 {
		return &ValidationError{Field: "image_quality", Reason: fmt.Sprintf("must be in 1..100 (got %d)", s.ImageQuality)}
	}
	if s.ImageFormat != "jpeg" && s.ImageFormat != "png" {
		return &ValidationError{Field: "image_format", Reason: fmt.Sprintf("must be jpeg or png (got %q)", s.ImageFormat)}
	}
	return nil
}

// FromEnv builds a Snapshot from environment variables, falling back to
// Default() for anything unset, and validates the result.
//
// Variables: UPSTREAM_BASE_URL, USER_AGENT, CACHE_MAX_ENTRIES, CACHE_TTL,
// MAX_CONCURRENCY, BATCH_DELAY, API_TIMEOUT, MAX_IMAGE_BYTES,
// IMAGE_MAX_WIDTH, IMAGE_MAX_HEIGHT, IMAGE_QUALITY, IMAGE_FORMAT.
func FromEnv() (Snapshot, error) {
	s := Default()

	s.BaseURL = getEnv("UPSTREAM_BASE_URL", s.BaseURL)
	s.UserAgent = getEnv("USER_AGENT", s.UserAgent)
	s.ImageFormat = getEnv("IMAGE_FORMAT", s.ImageFormat)

	var err error
	if s.CacheMaxEntries, err = getEnvInt("CACHE_MAX_ENTRIES", s.CacheMaxEntries); err != nil {
		return Snapshot{}, err
	}
	if s.MaxConcurrency, err = getEnvInt("MAX_CONCURRENCY", s.MaxConcurrency); err != nil {
		return Snapshot{}, err
	}
	if s.MaxImageBytes, err = getEnvInt("MAX_IMAGE_BYTES", s.MaxImageBytes); err != nil {
		return Snapshot{}, err
	}
	if s.ImageMaxWidth, err = getEnvInt("IMAGE_MAX_WIDTH", s.ImageMaxWidth); err != nil {
		return Snapshot{}, err
	}
	if s.ImageMaxHeight, err = getEnvInt("IMAGE_MAX_HEIGHT", s.ImageMaxHeight); err != nil {
		return Snapshot{}, err
	}
	if s.ImageQuality, err = getEnvInt("IMAGE_QUALITY", s.ImageQuality); err != nil {
		return Snapshot{}, err
	}
	if s.CacheTTL, err = getEnvDuration("CACHE_TTL", s.CacheTTL); err != nil {
		return Snapshot{}, err
	}
	if s.BatchDelay, err = getEnvDuration("BATCH_DELAY", s.BatchDelay); err != nil {
		return Snapshot{}, err
	}
	if s.APITimeout, err = getEnvDuration("API_TIMEOUT", s.APITimeout); err != nil {
		return Snapshot{}, err
	}

	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ValidationError{Field: key, Reason: fmt.Sprintf("not an integer: %q", v)}
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &ValidationError{Field: key, Reason: fmt.Sprintf("not a duration: %q", v)}
	}
	return d, nil
}
