// bilifeed — personal video-aggregation dashboard backend.
//
// Wraps the upstream video-platform API behind a signed, rate-limited,
// cached client and serves it to the dashboard UI as a small JSON API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"bilifeed/internal/bili"
	"bilifeed/internal/cache"
	"bilifeed/internal/config"
	"bilifeed/internal/server"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	setupLogging(cfg.Log.Level)

	store, err := openStore(cfg.Cache)
	if err != nil {
		slog.Error("cache init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	client := bili.New(bili.Config{
		Credential:     cfg.Upstream.Credential,
		MinInterval:    cfg.Upstream.MinInterval,
		MaxRetries:     cfg.Upstream.MaxRetries,
		BaseDelay:      cfg.Upstream.BaseDelay,
		RetryableCodes: cfg.Upstream.RetryableCodes,
		AuthCodes:      cfg.Upstream.AuthCodes,
		KeyTTL:         cfg.Upstream.KeyTTL,
		ArtifactTTL:    cfg.Cache.ArtifactTTL,
		Cache:          store,
		HTTPClient: &http.Client{
			Timeout: cfg.Upstream.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	})

	slog.Info("starting bilifeed",
		slog.String("listen", cfg.Server.Listen),
		slog.String("cache", cfg.Cache.Backend),
		slog.Bool("authenticated", cfg.Upstream.Credential != ""))

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      server.New(client, cfg.Server.Mode),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func openStore(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "redis":
		return cache.OpenRedis(context.Background(), cfg.RedisURL)
	case "memory":
		return cache.NewMemory(), nil
	default:
		return cache.OpenSQLite(cfg.Path)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
