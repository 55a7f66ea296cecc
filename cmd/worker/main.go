package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	analyticsdb "github.com/loja-gestor/loja-gestor/internal/analytics/db"
	"github.com/loja-gestor/loja-gestor/internal/app"
	"github.com/loja-gestor/loja-gestor/internal/observability"
	"github.com/loja-gestor/loja-gestor/internal/platform/cache"
	"github.com/loja-gestor/loja-gestor/internal/platform/db"
	"github.com/loja-gestor/loja-gestor/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	if cfg.AnalyticsCacheBackend != app.CacheBackendRedis {
		logger.Info("analytics cache is process local, warmup only primes the worker")
	}

	metrics := observability.NewMetrics()
	analyticsRepo := analyticsdb.NewRepository(pool, logger)
	analyticsCache, err := app.NewAnalyticsCache(cfg, redisClient)
	if err != nil {
		logger.Error("init analytics cache", slog.Any("error", err))
		os.Exit(1)
	}
	analyticsService, err := app.NewAnalyticsService(ctx, cfg, analyticsCache, app.AnalyticsDeps{
		Repository: analyticsRepo,
		Targets:    analyticsRepo,
		Redis:      redisClient,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		logger.Error("init analytics service", slog.Any("error", err))
		os.Exit(1)
	}

	warmupJob := jobs.NewAnalyticsWarmupJob(analyticsService, analyticsRepo, logger, metrics.Jobs())
	invalidateJob := jobs.NewAnalyticsInvalidateJob(analyticsService, logger, metrics.Jobs())

	warmupTask, err := jobs.NewAnalyticsWarmupTask(jobs.AnalyticsWarmupPayload{Months: cfg.AnalyticsWindowMonths})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("load timezone", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAnalyticsWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskAnalyticsInvalidate, Handler: invalidateJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.AnalyticsWarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	metricsServer := &http.Server{
		Addr: cfg.WorkerMetricsAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:     logger,
			Config:     cfg,
			JobHandler: jobs.NewHandler(inspector, logger),
			Metrics:    metrics,
		}),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	go func() {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
