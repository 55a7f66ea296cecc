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
	analytichttp "github.com/loja-gestor/loja-gestor/internal/analytics/http"
	"github.com/loja-gestor/loja-gestor/internal/app"
	"github.com/loja-gestor/loja-gestor/internal/observability"
	"github.com/loja-gestor/loja-gestor/internal/platform/cache"
	"github.com/loja-gestor/loja-gestor/internal/platform/db"
	"github.com/loja-gestor/loja-gestor/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		if cfg.AnalyticsCacheBackend == app.CacheBackendRedis {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Warn("redis unavailable, cross-process invalidation disabled", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	analyticsRepo := analyticsdb.NewRepository(dbpool, logger)
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
	analyticsHandler := analytichttp.NewHandler(logger, analyticsService, cfg.AnalyticsRequestTimeout)

	var jobHandler *jobs.Handler
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)

		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Warn("init job client", slog.Any("error", err))
		} else {
			defer func() { _ = jobClient.Close() }()
			if _, err := jobClient.EnqueueAnalyticsWarmup(ctx, jobs.AnalyticsWarmupPayload{Months: cfg.AnalyticsWindowMonths}); err != nil {
				logger.Warn("enqueue analytics warmup", slog.Any("error", err))
			}
		}
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AnalyticsHandler: analyticsHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
