package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nulldrop/internal/server/api"
	"nulldrop/internal/server/app"
	"nulldrop/internal/server/config"
	"nulldrop/internal/server/database"
	"nulldrop/internal/server/namegen"
	"nulldrop/internal/server/pipeline"
	"nulldrop/internal/server/storage"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config; every schema violation is reported at once.
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"upload_dir", cfg.UploadDir,
		"staging_dir", cfg.StagingDir(),
		"strict", cfg.Strict,
	)

	// Assemble in dependency order.
	store := storage.NewFileSystemStore(cfg.UploadDir, cfg.StagingDir())
	if err := store.EnsureDirs(); err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	db := database.New(cfg.DatabasePath())
	repo := database.NewRepository(db)
	gen := namegen.New(store, cfg)
	pipe := pipeline.New(cfg, store, gen, repo)

	interval := time.Duration(cfg.Watchdog.ScanInterval) * time.Second
	watchdog := storage.NewWatchdog(db, repo, store, interval)

	handler := api.NewHandler(pipe)
	e := api.SetupRouter(handler)
	server := app.NewServer(cfg, e, watchdog)

	if err := server.Start(); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on interrupt.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited cleanly")
}
