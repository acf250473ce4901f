package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docutag/productmeta"
	"github.com/docutag/productmeta/api"
	"github.com/docutag/productmeta/cache"
	"github.com/docutag/productmeta/config"
	"github.com/docutag/productmeta/metrics"
	"github.com/docutag/productmeta/storage"
	"github.com/docutag/productmeta/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Command-line flags (override configuration)
	port := flag.String("port", cfg.Server.Port, "Server port")
	flag.Parse()

	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("productmeta service initializing", "version", "1.0.0")

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(context.Background(), "productmeta", cfg.Tracing.Endpoint)
		if err != nil {
			logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
		} else {
			defer func() {
				if err := tp.Shutdown(context.Background()); err != nil {
					logger.Error("error shutting down tracer", "error", err)
				}
			}()
			logger.Info("tracing initialized successfully")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics := metrics.NewPipelineMetrics("productmeta", registry)

	extractor := productmeta.New(cfg.Pipeline(logger, pipelineMetrics), cfg.Renderer(), cfg.PreviewProvider())

	resultCache, closeCache, err := newCache(cfg.Cache)
	if err != nil {
		logger.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer closeCache()

	images, err := newImageStore(cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize image storage", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(api.Config{
		Addr:           ":" + *port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		CacheTTL:       cfg.Cache.TTL,
	}, api.Dependencies{
		Pipeline: extractor,
		Cache:    resultCache,
		Images:   images,
		Gatherer: registry,
		Logger:   logger,
	})

	// Start server in a goroutine
	go func() {
		logger.Info("productmeta service starting",
			"port", *port,
			"render_provider", cfg.Render.Provider,
			"render_hosts", cfg.Render.Hosts,
			"preview_provider", cfg.Preview.Provider,
			"cache_type", cfg.Cache.Type,
			"storage_type", cfg.Storage.Type,
			"quickadd_budget", cfg.QuickAdd.Budget.String(),
		)

		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// newCache returns a nil cache for type "none"
func newCache(cfg config.CacheConfig) (cache.Cache, func(), error) {
	switch cfg.Type {
	case "memory":
		c := cache.NewMemoryCache(time.Minute)
		return c, func() { c.Close() }, nil
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := cache.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, func() {}, err
		}
		return c, func() { c.Close() }, nil
	}
	return nil, func() {}, nil
}

// newImageStore returns a nil store for type "none", which makes the API
// return images inline
func newImageStore(cfg config.StorageConfig) (storage.ImageStore, error) {
	switch cfg.Type {
	case "filesystem":
		return storage.New(storage.Config{BasePath: cfg.BasePath})
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}
