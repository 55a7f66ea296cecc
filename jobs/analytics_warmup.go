package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/loja-gestor/loja-gestor/internal/analytics"
	jobmetrics "github.com/loja-gestor/loja-gestor/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const tenantWarmupTimeout = 20 * time.Second

// AnalyticsComputer is the slice of analytics.Service the warmup needs.
type AnalyticsComputer interface {
	ComputeAnalytics(ctx context.Context, w analytics.Window) (analytics.Result, error)
}

// TenantLister enumerates the tenants to warm.
type TenantLister interface {
	ActiveTenants(ctx context.Context) ([]uuid.UUID, error)
}

// AnalyticsWarmupJob pre-populates the analytics cache for every tenant.
type AnalyticsWarmupJob struct {
	Analytics AnalyticsComputer
	Tenants   TenantLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewAnalyticsWarmupJob wires dependencies for the warmup handler.
func NewAnalyticsWarmupJob(svc AnalyticsComputer, tenants TenantLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnalyticsWarmupJob {
	return &AnalyticsWarmupJob{
		Analytics: svc,
		Tenants:   tenants,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes analytics warmup tasks. One failing tenant does not stop
// the others; the task fails at the end so asynq retries it.
func (j *AnalyticsWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Analytics == nil {
		return errors.New("analytics warmup: handler not configured")
	}
	var payload AnalyticsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("analytics warmup: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskAnalyticsWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := j.now()
	tenants := payload.Tenants
	if len(tenants) == 0 {
		if j.Tenants == nil {
			return errors.New("analytics warmup: tenant lister not configured")
		}
		listed, err := j.Tenants.ActiveTenants(ctx)
		if err != nil {
			logger.Error("load warmup tenants", slog.Any("error", err))
			return err
		}
		tenants = listed
	}
	if len(tenants) == 0 {
		logger.Info("no tenants discovered for warmup")
		return nil
	}

	warmed := 0
	var failed []error
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := j.warmTenant(ctx, tenant, payload.Months); err != nil {
			logger.Error("warm tenant", slog.String("tenant", tenant.String()), slog.Any("error", err))
			failed = append(failed, fmt.Errorf("tenant %s: %w", tenant, err))
			continue
		}
		warmed++
	}
	j.metrics().AddWarmed(warmed)

	logger.Info("completed analytics warmup",
		slog.Int("tenants", warmed),
		slog.Int("failed", len(failed)),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return errors.Join(failed...)
}

func (j *AnalyticsWarmupJob) warmTenant(ctx context.Context, tenant uuid.UUID, months int) error {
	tenantCtx, cancel := context.WithTimeout(ctx, tenantWarmupTimeout)
	defer cancel()
	_, err := j.Analytics.ComputeAnalytics(tenantCtx, analytics.Window{Tenant: tenant, Months: months})
	return err
}

func (j *AnalyticsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAnalyticsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskAnalyticsWarmup))
}

func (j *AnalyticsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AnalyticsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
