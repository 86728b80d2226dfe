package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slopbox/controlplane/internal/cache"
	"github.com/slopbox/controlplane/internal/config"
	"github.com/slopbox/controlplane/internal/events"
	"github.com/slopbox/controlplane/internal/metrics"
	"github.com/slopbox/controlplane/internal/monitor"
	"github.com/slopbox/controlplane/internal/notify"
	"github.com/slopbox/controlplane/internal/provider"
	"github.com/slopbox/controlplane/internal/store"
)

func main() {
	cfg := config.Get()

	st, err := store.Open(cfg.Database.URL)
	if err != nil {
		slog.Error("monitor: store open failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	registry, err := provider.New(cfg.Providers)
	if err != nil {
		slog.Error("monitor: provider registry init failed", "error", err)
		os.Exit(1)
	}

	var rcache *cache.Cache
	if cfg.Redis.Enabled {
		rcache, err = cache.New(cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			slog.Warn("monitor: redis cache unavailable, continuing without it", "error", err)
			rcache = nil
		} else {
			defer rcache.Close()
		}
	}

	dispatcher := buildDispatcher(cfg)
	defer dispatcher.Close()

	emitter := buildEmitter(cfg)
	defer emitter.Close()

	m := metrics.New()

	mon := monitor.New(
		st, registry, rcache, m, dispatcher, emitter, monitor.StubCollector{},
		time.Duration(cfg.Monitor.IntervalSec)*time.Second,
		time.Duration(cfg.Monitor.CollectTimeoutSec)*time.Second,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("monitor: starting poll loop", "interval_sec", cfg.Monitor.IntervalSec)
	mon.Run(ctx)
	slog.Info("monitor: shut down")
}

func buildDispatcher(cfg *config.Config) notify.Dispatcher {
	if !cfg.CloudTasks.Enabled {
		return notify.NewInMemoryDispatcher()
	}
	d, err := notify.NewCloudTasksDispatcher(cfg.CloudTasks.ProjectID, cfg.CloudTasks.LocationID, cfg.CloudTasks.QueueID, cfg.CloudTasks.TargetURL)
	if err != nil {
		slog.Warn("monitor: cloud tasks dispatcher unavailable, falling back to in-memory", "error", err)
		return notify.NewInMemoryDispatcher()
	}
	return d
}

func buildEmitter(cfg *config.Config) events.Emitter {
	if !cfg.PubSub.Enabled {
		return events.NoopEmitter{}
	}
	e, err := events.NewPubSubEmitter(cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
	if err != nil {
		slog.Warn("monitor: pubsub emitter unavailable, falling back to noop", "error", err)
		return events.NoopEmitter{}
	}
	return e
}
