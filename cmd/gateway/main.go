package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slopbox/controlplane/internal/config"
	"github.com/slopbox/controlplane/internal/gateway"
	"github.com/slopbox/controlplane/internal/metrics"
	"github.com/slopbox/controlplane/internal/store"
)

func main() {
	cfg := config.Get()

	st, err := store.Open(cfg.Database.URL)
	if err != nil {
		slog.Error("gateway: store open failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if cfg.Gateway.JWTSecret == "" {
		slog.Error("gateway: JWT_SECRET is required")
		os.Exit(1)
	}

	maxTTL := time.Duration(cfg.Gateway.SessionMaxTTLSec) * time.Second
	auth := gateway.NewAuthenticator(cfg.Gateway.JWTSecret, maxTTL, st, cfg.Gateway.RequireActiveSess)

	m := metrics.New()
	gw := gateway.New(st, auth, m, cfg.Gateway.GatewayPort)

	srv := &http.Server{
		Addr:    cfg.Gateway.ListenAddr,
		Handler: gw.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("gateway: shutdown error", "error", err)
		}
	}()

	slog.Info("gateway: listening", "addr", cfg.Gateway.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("gateway: serve error", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway: shut down")
}
