package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/loja-gestor/loja-gestor/internal/analytics"
	jobmetrics "github.com/loja-gestor/loja-gestor/internal/jobs"
)

// AnalyticsInvalidateJob forwards data-change tasks to the analytics cache.
type AnalyticsInvalidateJob struct {
	Target  analytics.Invalidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAnalyticsInvalidateJob wires the invalidation handler.
func NewAnalyticsInvalidateJob(target analytics.Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnalyticsInvalidateJob {
	return &AnalyticsInvalidateJob{Target: target, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAnalyticsInvalidate tasks.
func (j *AnalyticsInvalidateJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Target == nil {
		return errors.New("analytics invalidate: handler not configured")
	}
	var payload AnalyticsInvalidatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("analytics invalidate: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	payload.Tag = strings.TrimSpace(payload.Tag)
	if payload.Tag == "" {
		return fmt.Errorf("analytics invalidate: empty tag: %w", asynq.SkipRetry)
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskAnalyticsInvalidate)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Target.Invalidate(ctx, payload.Tenant, payload.Tag); err != nil {
		return err
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("analytics invalidated", slog.String("tenant", payload.Tenant.String()), slog.String("tag", payload.Tag))
	return nil
}
