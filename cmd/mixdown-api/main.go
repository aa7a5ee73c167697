package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mixdown/internal/config"
	server "mixdown/internal/http"
	"mixdown/internal/jobs"
	"mixdown/internal/media"
	"mixdown/internal/procrun"
	"mixdown/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	role := flag.String("role", "all", "process role: api|procd|all")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		cfg = config.Load(*configPath)
	}

	// Set up logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	sup := procrun.New(logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *role {
	case "procd":
		// Standalone process supervisor: accept/poll/cancel only, no
		// scheduler or task API.
		svc := procrun.NewService(rootCtx, sup, cfg.Tools.FFmpegPath, logger)
		srv := server.NewServer(cfg, nil, svc, logger)
		runUntilSignal(rootCtx, srv, nil, logger)
	case "api":
		sched := newScheduler(cfg, sup, logger)
		go sched.Start(rootCtx)
		srv := server.NewServer(cfg, sched, nil, logger)
		runUntilSignal(rootCtx, srv, sched, logger)
	case "all":
		// Default: scheduler, task API, and process surface in one
		// process.
		sched := newScheduler(cfg, sup, logger)
		go sched.Start(rootCtx)
		svc := procrun.NewService(rootCtx, sup, cfg.Tools.FFmpegPath, logger)
		srv := server.NewServer(cfg, sched, svc, logger)
		runUntilSignal(rootCtx, srv, sched, logger)
	default:
		log.Fatalf("invalid role: %s (expected api|procd|all)", *role)
	}
}

func newScheduler(cfg *config.Config, sup *procrun.Supervisor, logger *slog.Logger) *jobs.Scheduler {
	st := store.New(cfg.PersistencePath())

	reg := jobs.NewRegistry()
	media.RegisterAll(reg, sup, cfg, logger)

	opts := jobs.Options{
		MaxConcurrentTasks: cfg.Scheduler.MaxConcurrentTasks,
		MaxRetries:         cfg.Scheduler.MaxRetries,
		PersistInterval:    time.Duration(cfg.Scheduler.PersistIntervalSec) * time.Second,
	}
	for _, sec := range cfg.Scheduler.BackoffSeconds {
		opts.Backoff = append(opts.Backoff, time.Duration(sec)*time.Second)
	}
	if cfg.Retention.Enabled {
		opts.CleanupInterval = time.Duration(cfg.Retention.CleanupIntervalMinutes) * time.Minute
		opts.CompletedTTL = time.Duration(cfg.Retention.CompletedTTLHours) * time.Hour
	}

	return jobs.New(reg, st, logger, opts)
}

// runUntilSignal serves until the root context is cancelled, then
// drains HTTP and shuts the scheduler down with a bounded grace
// period.
func runUntilSignal(ctx context.Context, srv *server.Server, sched *jobs.Scheduler, logger *slog.Logger) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server failed: %v", err)
		}
		return
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := srv.ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if sched != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sched.Shutdown(shutdownCtx); err != nil {
			logger.Error("scheduler shutdown", "error", err)
		}
	}
}
