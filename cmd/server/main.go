// Package main is the entrypoint for the Miss Match API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/missmatchapp/missmatch/internal/api"
	"github.com/missmatchapp/missmatch/internal/api/handler"
	mw "github.com/missmatchapp/missmatch/internal/api/middleware"
	"github.com/missmatchapp/missmatch/internal/blob"
	"github.com/missmatchapp/missmatch/internal/cache"
	"github.com/missmatchapp/missmatch/internal/cleanup"
	"github.com/missmatchapp/missmatch/internal/config"
	"github.com/missmatchapp/missmatch/internal/imaging"
	"github.com/missmatchapp/missmatch/internal/moderation"
	"github.com/missmatchapp/missmatch/internal/store"
	"github.com/missmatchapp/missmatch/internal/tryon"
)

const (
	shutdownTimeout = 30 * time.Second

	// sweepInterval paces the scheduled retention sweep. Each run is
	// idempotent, so the interval only affects how promptly expired data
	// disappears.
	sweepInterval = time.Hour
)

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
	// 1. Load config, failing fast on anything invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "driver", cfg.TryOn.Driver, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
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

	// 5. Connect blob storage
	blobs, err := blob.NewMinioStore(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("connect blob storage: %w", err)
	}
	slog.Info("blob storage connected", "bucket", cfg.Blob.Bucket)

	// 6. Build the domain services
	pgStore := store.NewPostgresStore(pool)
	images := imaging.NewJPEGTransformer()
	classifier := moderation.NewClassifier(cfg.Moderation)
	drivers := tryon.NewDefaultRegistry(cfg.TryOn, cfg.Server.BaseURL)

	svc := tryon.NewService(pgStore, blobs, images, drivers,
		cfg.Retention.Period, cfg.TryOn.ProcessingTimeout)
	sweeper := cleanup.NewSweeper(pgStore, blobs,
		cfg.Retention.Period, cfg.Retention.FailedJobPeriod)

	go runSweepLoop(ctx, sweeper)

	// 7. Build router with dependencies
	uploads := handler.NewUploads(pgStore, blobs, images, classifier, cfg.Retention.Period)
	garments := handler.NewGarments(pgStore, redisCache, blobs, images)
	tryOn := handler.NewTryOn(svc)
	webhooks := handler.NewWebhooks(svc, cfg.TryOn.WebhookSecret)
	cleanupHandler := handler.NewCleanup(sweeper)

	deps := api.Dependencies{
		AdminAuth: mw.NewAdminAuth(cfg.Admin.TokenHash),
		RateLimit: mw.NewRateLimit(redisCache),

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache, blobs, drivers),

		CreateUpload: uploads.Create,
		GetUpload:    uploads.Get,

		ListGarments:      garments.List,
		GetGarment:        garments.Get,
		CreateGarment:     garments.Create,
		DeactivateGarment: garments.Deactivate,

		CreateTryOn: tryOn.Create,
		GetTryOn:    tryOn.Get,

		WebhookHandler: webhooks.Receive,

		CleanupHandler: cleanupHandler.Run,
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func runSweepLoop(ctx context.Context, sweeper *cleanup.Sweeper) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweeper.Run(ctx)
		}
	}
}
