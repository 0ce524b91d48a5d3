package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/flowline/flowline/internal/api"
	"github.com/flowline/flowline/internal/cache"
	"github.com/flowline/flowline/internal/capability"
	"github.com/flowline/flowline/internal/config"
	"github.com/flowline/flowline/internal/engine"
	"github.com/flowline/flowline/internal/repository"
	"github.com/flowline/flowline/internal/typesys"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		serve()
		return
	}
	fmt.Println("flowline v0.1.0")
	fmt.Println("Usage: flowline serve")
}

func serve() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	caps := capability.NewDefaultRegistry()
	types := typesys.NewRegistry()
	invocationCache := cache.New(cfg.Cache.MaxSize)
	store := repository.NewExecutionStore()
	eng := engine.New(caps, types, invocationCache, store, nil, cfg.ExecutionDefaults())

	// Expired entries are otherwise only evicted on access; the sweep keeps
	// a cold cache from pinning memory.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Maintenance.CacheSweep, func() {
		if removed := invocationCache.CleanupExpired(); removed > 0 {
			slog.Info("cache sweep", "removed", removed)
		}
	}); err != nil {
		slog.Error("invalid cache sweep schedule", "spec", cfg.Maintenance.CacheSweep, "err", err)
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	srv := api.NewServer(eng, store)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	slog.Info("starting flowline server", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
