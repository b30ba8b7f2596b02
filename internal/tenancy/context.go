package tenancy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type ctxKey string

const tenantKey ctxKey = "dentalbridge.tenant_id"

// WithTenantID stores the tenant id in context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantIDFromContext extracts the tenant id if present.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(tenantKey)
	if val == nil {
		return "", false
	}
	tenantID, ok := val.(string)
	return tenantID, ok && tenantID != ""
}

// ParseTenantID validates that the raw value is a well-formed tenant id
// before any repository work happens on its behalf.
func ParseTenantID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("tenancy: malformed tenant id %q: %w", raw, err)
	}
	return id, nil
}
