// Package main is the entrypoint for the Tracely API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tracely-io/tracely/internal/alerting"
	"github.com/tracely-io/tracely/internal/api"
	"github.com/tracely-io/tracely/internal/api/handler"
	mw "github.com/tracely-io/tracely/internal/api/middleware"
	"github.com/tracely-io/tracely/internal/cache"
	"github.com/tracely-io/tracely/internal/config"
	"github.com/tracely-io/tracely/internal/counters"
	"github.com/tracely-io/tracely/internal/ingest"
	"github.com/tracely-io/tracely/internal/notify"
	"github.com/tracely-io/tracely/internal/spanstore"
	"github.com/tracely-io/tracely/internal/store"
	"github.com/tracely-io/tracely/internal/stream"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Postgres
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Connect to ClickHouse and ensure the span schema exists
	chStore, err := spanstore.Connect(ctx, cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("connect clickhouse: %w", err)
	}
	defer chStore.Close()

	if err := chStore.InitSchema(ctx); err != nil {
		return fmt.Errorf("init clickhouse schema: %w", err)
	}
	slog.Info("clickhouse connected")

	// 6. Create stores and the ingest pipeline
	pgStore := store.NewPostgresStore(pool)
	counterStore := counters.NewStore(redisCache)
	streamManager := stream.NewManager()
	writer := ingest.NewWriter(chStore, counterStore, streamManager)

	// 7. Start the alert scheduler
	dispatcher := notify.NewDispatcher(pgStore, cfg.Notify)
	evaluator := alerting.NewEvaluator(counterStore, chStore)
	recorder := alerting.NewRecorder(pgStore, counterStore, cfg.Alerting.CooldownTTL)
	scheduler := alerting.NewScheduler(pgStore, counterStore, evaluator, recorder, dispatcher,
		cfg.Alerting.ThresholdInterval, cfg.Alerting.CriticalInterval)

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start alert scheduler: %w", err)
	}
	defer scheduler.Stop()
	slog.Info("alert scheduler started",
		"threshold_interval", cfg.Alerting.ThresholdInterval,
		"critical_interval", cfg.Alerting.CriticalInterval)

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 0)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:         handler.NewHealthHandler(pgStore, redisCache, chStore),
		IngestHandler:         handler.NewIngestHandler(writer),
		StreamHandler:         handler.NewStreamHandler(streamManager),
		AlertTemplatesHandler: handler.NewAlertTemplatesHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE streams stay open until the client disconnects.
		IdleTimeout: 60 * time.Second,
		// Request contexts inherit the signal context so open SSE streams
		// unwind when a shutdown signal arrives.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Let in-flight counter updates land before the Redis client closes.
	writer.Drain(shutdownCtx)

	slog.Info("server stopped gracefully")
	return nil
}
