package perf

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/loja-gestor/loja-gestor/internal/analytics"
	jobmetrics "github.com/loja-gestor/loja-gestor/internal/jobs"
	"github.com/loja-gestor/loja-gestor/jobs"
)

type tenantList []uuid.UUID

func (l tenantList) ActiveTenants(context.Context) ([]uuid.UUID, error) {
	return l, nil
}

func TestWarmupThroughput(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	cache := analytics.NewMemoryCache(time.Hour)
	svc := analytics.NewService(newSyntheticRepo(benchNow, 200), cache, analytics.ServiceConfig{})
	svc.WithNow(func() time.Time { return benchNow })

	tenants := make(tenantList, 50)
	for i := range tenants {
		tenants[i] = uuid.New()
	}
	job := jobs.NewAnalyticsWarmupJob(svc, tenants, nil, metrics)
	task, err := jobs.NewAnalyticsWarmupTask(jobs.AnalyticsWarmupPayload{Months: 6})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	start := time.Now()
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("warmup of %d tenants took %s", len(tenants), elapsed)
	}

	if got := cache.Len(); got != len(tenants) {
		t.Fatalf("expected %d cached windows, got %d", len(tenants), got)
	}
	expected := `
# HELP lojagestor_analytics_tenants_warmed_total Tenants whose default analytics window was precomputed.
# TYPE lojagestor_analytics_tenants_warmed_total counter
lojagestor_analytics_tenants_warmed_total 50
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "lojagestor_analytics_tenants_warmed_total"); err != nil {
		t.Fatalf("warmed counter: %v", err)
	}
	if got := testutil.CollectAndCount(reg, "lojagestor_jobs_failures_total"); got != 0 {
		t.Fatalf("expected no failures, got %d series", got)
	}
}
