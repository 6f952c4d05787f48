package prefetch

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds warmer configuration.
type Config struct {
	// Workers is the number of parallel warm-up workers.
	Workers int

	// Timeout bounds each individual target fetch.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Workers: 4,
		Timeout: 15 * time.Second,
	}
}

// Getter is the coordinator-side interface the warmer drives.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// Target identifies one request to warm.
type Target struct {
	Path  string
	Query url.Values
}

// TargetError pairs a failed target with its error.
type TargetError struct {
	Target Target
	Err    error
}

// Report summarizes one warm-up run.
type Report struct {
	Warmed   int
	Failed   int
	Errors   []TargetError
	Duration time.Duration
}

// Warmer populates the cache for a set of targets in parallel.
type Warmer struct {
	getter Getter
	config Config
}

// NewWarmer creates a warmer over the given getter.
func NewWarmer(getter Getter, config Config) *Warmer {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Warmer{
		getter: getter,
		config: config,
	}
}

// Warm runs every target through the getter using a bounded worker pool and
// reports per-target outcomes. A failed target never aborts the run.
func (w *Warmer) Warm(ctx context.Context, targets []Target) Report {
	start := time.Now()

	if len(targets) == 0 {
		return Report{Duration: time.Since(start)}
	}

	log.Info().
		Int("targets", len(targets)).
		Int("workers", w.config.Workers).
		Msg("Starting cache warm-up")

	queue := make(chan Target, len(targets))
	for _, target := range targets {
		queue <- target
	}
	close(queue)

	var (
		mu     sync.Mutex
		report Report
		wg     sync.WaitGroup
	)

	for i := 0; i < w.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for target := range queue {
				select {
				case <-ctx.Done():
					log.Debug().
						Int("worker_id", workerID).
						Msg("Warm-up worker stopping (context cancelled)")
					return
				default:
				}

				targetCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
				_, err := w.getter.Get(targetCtx, target.Path, target.Query)
				cancel()

				mu.Lock()
				if err != nil {
					report.Failed++
					report.Errors = append(report.Errors, TargetError{Target: target, Err: err})
					log.Warn().
						Err(err).
						Str("path", target.Path).
						Msg("Warm-up target failed")
				} else {
					report.Warmed++
				}
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	report.Duration = time.Since(start)

	log.Info().
		Int("warmed", report.Warmed).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("Cache warm-up complete")

	return report
}
