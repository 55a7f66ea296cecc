package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAnalyticsWarmup recomputes the default analytics window per tenant.
	TaskAnalyticsWarmup = "analytics:warmup"
	// TaskAnalyticsInvalidate drops cached analytics after a data change.
	TaskAnalyticsInvalidate = "analytics:invalidate"
)

// AnalyticsWarmupPayload selects what the warmup recomputes. An empty tenant
// list warms every active tenant; zero months uses the configured default.
type AnalyticsWarmupPayload struct {
	Tenants []uuid.UUID `json:"tenants,omitempty"`
	Months  int         `json:"months,omitempty"`
}

// NewAnalyticsWarmupTask constructs a warmup task.
func NewAnalyticsWarmupTask(payload AnalyticsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsWarmup, data), nil
}

// AnalyticsInvalidatePayload names the tenant and the changed table.
// uuid.Nil targets every tenant.
type AnalyticsInvalidatePayload struct {
	Tenant uuid.UUID `json:"tenant"`
	Tag    string    `json:"tag"`
}

// NewAnalyticsInvalidateTask constructs an invalidation task.
func NewAnalyticsInvalidateTask(payload AnalyticsInvalidatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsInvalidate, data), nil
}
