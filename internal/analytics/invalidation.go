package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultInvalidationChannel carries "<tenant>:<tag>" change notifications.
const DefaultInvalidationChannel = "analytics.invalidate"

// Tags published when the underlying tables change.
const (
	TagSales      = "sales"
	TagPurchases  = "purchases"
	TagExpenses   = "expenses"
	TagOrders     = "orders"
	TagClients    = "clients"
	TagProducts   = "products"
	TagKPITargets = "kpi_targets"
)

// Invalidator drops cached results for a tenant.
type Invalidator interface {
	Invalidate(ctx context.Context, tenant uuid.UUID, tag string) error
}

// Notification is one change signal.
type Notification struct {
	Tenant uuid.UUID
	Tag    string
}

// String encodes the notification as a channel payload.
func (n Notification) String() string {
	return n.Tenant.String() + ":" + n.Tag
}

// ParseNotification decodes a channel payload. A payload without a tenant
// part, or with "*", targets every tenant.
func ParseNotification(payload string) (Notification, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Notification{}, fmt.Errorf("analytics: empty notification")
	}
	tenantPart, tag, found := strings.Cut(payload, ":")
	if !found {
		return Notification{Tenant: uuid.Nil, Tag: tenantPart}, nil
	}
	if tenantPart == "*" || tenantPart == "" {
		return Notification{Tenant: uuid.Nil, Tag: tag}, nil
	}
	tenant, err := uuid.Parse(tenantPart)
	if err != nil {
		return Notification{}, fmt.Errorf("analytics: notification tenant: %w", err)
	}
	return Notification{Tenant: tenant, Tag: tag}, nil
}

// Publisher broadcasts change notifications to every process.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher creates a Publisher on channel.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	return &Publisher{client: client, channel: channel}
}

// Publish sends a notification for tenant and tag.
func (p *Publisher) Publish(ctx context.Context, tenant uuid.UUID, tag string) error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Publish(ctx, p.channel, Notification{Tenant: tenant, Tag: tag}.String()).Err()
}

// Listen subscribes to channel and invalidates target on every notification
// until ctx ends. It returns once the subscription is confirmed. Malformed
// payloads are logged and skipped; a lost subscription leaves entries to
// expire through their TTL.
func Listen(ctx context.Context, client *redis.Client, channel string, target Invalidator, logger *slog.Logger) error {
	if client == nil || target == nil {
		return nil
	}
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("analytics: subscribe %s: %w", channel, err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				n, err := ParseNotification(msg.Payload)
				if err != nil {
					logger.Warn("analytics invalidation payload", slog.String("payload", msg.Payload), slog.Any("error", err))
					continue
				}
				if err := target.Invalidate(ctx, n.Tenant, n.Tag); err != nil {
					logger.Warn("analytics invalidation", slog.String("tenant", n.Tenant.String()), slog.String("tag", n.Tag), slog.Any("error", err))
				}
			}
		}
	}()
	return nil
}
