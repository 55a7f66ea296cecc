package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/loja-gestor/loja-gestor/internal/analytics"
	"github.com/loja-gestor/loja-gestor/internal/observability"
)

// AnalyticsDeps are the collaborators shared by the server and the worker.
type AnalyticsDeps struct {
	Repository analytics.Repository
	Targets    analytics.TargetWriter
	Redis      *redis.Client
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// NewAnalyticsCache picks the cache backend named by the configuration. The
// redis backend requires a client.
func NewAnalyticsCache(cfg *Config, client *redis.Client) (analytics.Cache, error) {
	switch cfg.AnalyticsCacheBackend {
	case CacheBackendRedis:
		if client == nil {
			return nil, fmt.Errorf("app: redis cache backend without a redis client")
		}
		return analytics.NewRedisCache(client, cfg.AnalyticsCacheTTL), nil
	default:
		return analytics.NewMemoryCache(cfg.AnalyticsCacheTTL), nil
	}
}

// NewAnalyticsService builds the engine over cache. When a redis client is
// present, invalidations are published on the configured channel and
// notifications from other processes are applied to cache until ctx ends.
func NewAnalyticsService(ctx context.Context, cfg *Config, cache analytics.Cache, deps AnalyticsDeps) (*analytics.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	svcCfg := analytics.ServiceConfig{
		Logger:        deps.Logger,
		Location:      loc,
		DefaultMonths: cfg.AnalyticsWindowMonths,
		Targets:       deps.Targets,
	}
	if deps.Metrics != nil {
		svcCfg.Metrics = deps.Metrics
	}
	if deps.Redis != nil {
		svcCfg.Notifier = analytics.NewPublisher(deps.Redis, cfg.AnalyticsInvalidationChannel)
		if err := analytics.Listen(ctx, deps.Redis, cfg.AnalyticsInvalidationChannel, cache, deps.Logger); err != nil {
			return nil, err
		}
	}
	return analytics.NewService(deps.Repository, cache, svcCfg), nil
}
