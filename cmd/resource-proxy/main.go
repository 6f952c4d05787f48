package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/veldt-io/resource-proxy/pkg/cache"
	"github.com/veldt-io/resource-proxy/pkg/config"
	"github.com/veldt-io/resource-proxy/pkg/coordinator"
	"github.com/veldt-io/resource-proxy/pkg/fetcher"
	"github.com/veldt-io/resource-proxy/pkg/imaging"
	"github.com/veldt-io/resource-proxy/pkg/logging"
	"github.com/veldt-io/resource-proxy/pkg/prefetch"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	logger := logging.Setup(logging.FromEnv())

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	client := fetcher.New(cfg)
	store := cache.NewStore(cfg.CacheMaxEntries)

	coord, err := coordinator.New(cfg, client, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create coordinator")
	}

	optimizer, err := imaging.New(cfg, client)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create image optimizer")
	}

	// Optional cache warm-up: WARMUP_PATHS is a comma-separated path list.
	if paths := os.Getenv("WARMUP_PATHS"); paths != "" {
		warmer := prefetch.NewWarmer(coord, prefetch.DefaultConfig())
		var targets []prefetch.Target
		for _, p := range strings.Split(paths, ",") {
			if p = strings.TrimSpace(p); p != "" {
				targets = append(targets, prefetch.Target{Path: p})
			}
		}
		go warmer.Warm(context.Background(), targets)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/api/", apiHandler(coord))
	mux.HandleFunc("/image", imageHandler(optimizer, cfg))
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + getEnv("PORT", "8080")
	logger.Info().
		Str("addr", addr).
		Str("upstream", cfg.BaseURL).
		Msg("Starting resource proxy")

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// apiHandler proxies /api/<path> through the coordinator.
func apiHandler(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoint := strings.TrimPrefix(r.URL.Path, "/api")

		value, err := coord.Get(r.Context(), endpoint, r.URL.Query())
		if err != nil {
			status := upstreamStatus(err)
			log.Warn().Err(err).Str("endpoint", endpoint).Int("status", status).Msg("Proxy request failed")
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(value)
	}
}

// imageHandler fetches and re-encodes a remote image. The optimizer is
// single-pass: when the result is over the configured ceiling the response
// reports it via header and the caller decides whether to retry with lower
// quality.
func imageHandler(optimizer *imaging.Optimizer, cfg config.Snapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sourceURL := r.URL.Query().Get("url")
		if sourceURL == "" {
			http.Error(w, "missing url parameter", http.StatusBadRequest)
			return
		}

		format := r.URL.Query().Get("format")
		if format != "" && format != "jpeg" && format != "png" {
			http.Error(w, "format must be jpeg or png", http.StatusBadRequest)
			return
		}

		opts := imaging.Options{
			MaxWidth:  queryInt(r, "max_width"),
			MaxHeight: queryInt(r, "max_height"),
			Quality:   queryInt(r, "quality"),
			Format:    format,
		}

		result, err := optimizer.Process(r.Context(), sourceURL, opts)
		if err != nil {
			status := upstreamStatus(err)
			if errors.Is(err, imaging.ErrDecode) {
				status = http.StatusUnprocessableEntity
			}
			log.Warn().Err(err).Str("source_url", sourceURL).Int("status", status).Msg("Image request failed")
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("X-Original-Size", strconv.Itoa(result.OriginalSize))
		w.Header().Set("X-Processed-Size", strconv.Itoa(result.ProcessedSize))
		w.Header().Set("X-Image-Width", strconv.Itoa(result.Width))
		w.Header().Set("X-Image-Height", strconv.Itoa(result.Height))
		w.Header().Set("X-Estimated-Tokens", strconv.Itoa(result.EstimatedTokens))
		w.Header().Set("X-Compression-Ratio", strconv.FormatFloat(result.CompressionRatio, 'f', 3, 64))
		if result.ExceedsLimit(cfg.MaxImageBytes) {
			w.Header().Set("X-Size-Limit-Exceeded", "true")
		}
		w.WriteHeader(http.StatusOK)
		w.Write(result.Data)
	}
}

// upstreamStatus maps the error taxonomy onto proxy response codes.
func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, fetcher.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fetcher.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
