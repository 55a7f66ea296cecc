package shared

import (
	"context"

	"github.com/google/uuid"
)

type tenantContextKey struct{}

// ContextWithTenant stores the resolved tenant in context.
func ContextWithTenant(ctx context.Context, tenant uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenant)
}

// TenantFromContext extracts the tenant from context.
func TenantFromContext(ctx context.Context) (uuid.UUID, bool) {
	tenant, ok := ctx.Value(tenantContextKey{}).(uuid.UUID)
	if !ok || tenant == uuid.Nil {
		return uuid.Nil, false
	}
	return tenant, true
}
