// Package imaging fetches remote images and re-encodes them to fit a
// size-constrained consumer: bounding-box resize (never upscaling) plus
// format/quality re-encoding, with size and token metrics reported back
// to the caller.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"time"

	// Register decoders for the formats the upstream may serve.
	_ "image/gif"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/veldt-io/resource-proxy/pkg/config"
	"github.com/veldt-io/resource-proxy/pkg/fetcher"
)

// Prometheus metrics for image processing.
var (
	imagesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_images_processed_total",
		Help: "Total images processed by output format",
	}, []string{"format"})

	imageProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "proxy_image_processing_duration_seconds",
		Help:    "Image fetch+decode+encode duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	imageDecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_image_decode_errors_total",
		Help: "Total image payloads that failed to decode",
	})
)

// ErrDecode is returned when fetched bytes are not a recognized image.
var ErrDecode = errors.New("malformed or unrecognized image data")

// bytesPerToken is the fixed divisor mapping processed payload size onto
// the downstream consumer's token unit. Estimates are intentionally a pure
// function of size so they are non-decreasing in ProcessedSize.
const bytesPerToken = 750

// Options are the transform parameters for one image job. Zero values fall
// back to the configured defaults.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
	Format    string
}

// Result describes a processed image.
type Result struct {
	Data             []byte
	MimeType         string
	OriginalSize     int
	ProcessedSize    int
	Width            int
	Height           int
	EstimatedTokens  int
	CompressionRatio float64
}

// ExceedsLimit reports whether the processed payload is over maxBytes.
// The optimizer is single-pass: callers decide whether to re-invoke with
// lower quality when over budget.
func (r *Result) ExceedsLimit(maxBytes int) bool {
	return r.ProcessedSize > maxBytes
}

// EstimateTokens converts a payload size into the downstream token unit.
func EstimateTokens(sizeBytes int) int {
	if sizeBytes <= 0 {
		return 0
	}
	return (sizeBytes + bytesPerToken - 1) / bytesPerToken
}

// Optimizer fetches and re-encodes remote images.
type Optimizer struct {
	cfg     config.Snapshot
	fetcher fetcher.Fetcher
	logger  zerolog.Logger
}

// New creates an optimizer from a validated config snapshot and a fetcher.
func New(cfg config.Snapshot, f fetcher.Fetcher) (*Optimizer, error) {
	if f == nil {
		return nil, fmt.Errorf("imaging: fetcher is required")
	}
	return &Optimizer{
		cfg:     cfg,
		fetcher: f,
		logger:  log.With().Str("component", "imaging").Logger(),
	}, nil
}

// Process retrieves sourceURL, decodes it, scales it down to fit the
// bounding box (aspect-preserving, never upscaling), and re-encodes it at
// the requested format and quality. It performs a single pass and reports
// the size metrics; no internal quality-step-down retry happens here.
func (o *Optimizer) Process(ctx context.Context, sourceURL string, opts Options) (*Result, error) {
	opts = o.withDefaults(opts)
	start := time.Now()
	defer func() {
		imageProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	raw, err := o.fetcher.Fetch(ctx, sourceURL, nil)
	if err != nil {
		return nil, err
	}
	originalSize := len(raw)

	src, srcFormat, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		imageDecodeErrorsTotal.Inc()
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := src.Bounds()
	targetW, targetH := fitDimensions(bounds.Dx(), bounds.Dy(), opts.MaxWidth, opts.MaxHeight)

	out := src
	if targetW != bounds.Dx() || targetH != bounds.Dy() {
		scaled := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, bounds, draw.Over, nil)
		out = scaled
	}

	data, mimeType, err := encode(out, opts.Format, opts.Quality)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Data:             data,
		MimeType:         mimeType,
		OriginalSize:     originalSize,
		ProcessedSize:    len(data),
		Width:            targetW,
		Height:           targetH,
		EstimatedTokens:  EstimateTokens(len(data)),
		CompressionRatio: float64(originalSize) / float64(len(data)),
	}

	imagesProcessedTotal.WithLabelValues(opts.Format).Inc()
	o.logger.Debug().
		Str("source_format", srcFormat).
		Str("format", opts.Format).
		Int("original_size", result.OriginalSize).
		Int("processed_size", result.ProcessedSize).
		Int("width", result.Width).
		Int("height", result.Height).
		Int("estimated_tokens", result.EstimatedTokens).
		Dur("duration", time.Since(start)).
		Msg("Image processed")

	return result, nil
}

// withDefaults fills unset options from the config snapshot.
func (o *Optimizer) withDefaults(opts Options) Options {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = o.cfg.ImageMaxWidth
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = o.cfg.ImageMaxHeight
	}
	if opts.Quality <= 0 {
		opts.Quality = o.cfg.ImageQuality
	}
	if opts.Format == "" {
		opts.Format = o.cfg.ImageFormat
	}
	return opts
}

// fitDimensions scales (w, h) down to fit (maxW, maxH) preserving aspect
// ratio. The scale factor is clamped to 1.0 so sources are never upscaled.
func fitDimensions(w, h, maxW, maxH int) (int, int) {
	scale := 1.0
	if sw := float64(maxW) / float64(w); sw < scale {
		scale = sw
	}
	if sh := float64(maxH) / float64(h); sh < scale {
		scale = sh
	}
	if scale >= 1.0 {
		return w, h
	}

	targetW := int(float64(w)*scale + 0.5)
	targetH := int(float64(h)*scale + 0.5)
	if targetW < 1 {
		targetW = 1
	}
	if targetH < 1 {
		targetH = 1
	}
	if targetW > maxW {
		targetW = maxW
	}
	if targetH > maxH {
		targetH = maxH
	}
	return targetW, targetH
}

// encode serializes img at the requested format. Quality applies to lossy
// formats only.
func encode(img image.Image, format string, quality int) ([]byte, string, error) {
	var buf bytes.Buffer
	switch format {
	case "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", fmt.Errorf("encode jpeg: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("encode png: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	default:
		return nil, "", fmt.Errorf("unsupported output format %q", format)
	}
}
