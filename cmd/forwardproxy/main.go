package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/slopbox/controlplane/internal/cache"
	"github.com/slopbox/controlplane/internal/config"
	"github.com/slopbox/controlplane/internal/forwardproxy"
	"github.com/slopbox/controlplane/internal/metrics"
	"github.com/slopbox/controlplane/internal/provider"
	"github.com/slopbox/controlplane/internal/store"
)

func main() {
	cfg := config.Get()

	st, err := store.Open(cfg.Database.URL)
	if err != nil {
		slog.Error("forwardproxy: store open failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	var rcache *cache.Cache
	if cfg.Redis.Enabled {
		rcache, err = cache.New(cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			slog.Warn("forwardproxy: redis cache unavailable, continuing without it", "error", err)
			rcache = nil
		} else {
			defer rcache.Close()
		}
	}

	registry, err := provider.New(cfg.Providers)
	if err != nil {
		slog.Error("forwardproxy: provider registry init failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	proxy := forwardproxy.New(cfg.ForwardProxy.ListenAddr, st, rcache, registry, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("forwardproxy: listening", "addr", cfg.ForwardProxy.ListenAddr)
	if err := proxy.ListenAndServe(ctx); err != nil {
		slog.Error("forwardproxy: serve error", "error", err)
		os.Exit(1)
	}
	slog.Info("forwardproxy: shut down")
}
