// internal/gate/context.go
package gate

import (
	"context"

	"gatehouse/pkg/tenants"
)

type ctxTenantKey struct{}
type ctxSubjectKey struct{}

func WithTenant(ctx context.Context, t tenants.TenantConfig) context.Context {
	return context.WithValue(ctx, ctxTenantKey{}, t)
}

// TenantFrom returns the tenant the gate resolved for this request.
func TenantFrom(ctx context.Context) tenants.TenantConfig {
	if v := ctx.Value(ctxTenantKey{}); v != nil {
		return v.(tenants.TenantConfig)
	}
	return tenants.TenantConfig{}
}

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxSubjectKey{}, sub)
}

// SubjectFrom returns the authenticated subject, or "" when the request
// carried no valid token.
func SubjectFrom(ctx context.Context) string {
	if v := ctx.Value(ctxSubjectKey{}); v != nil {
		return v.(string)
	}
	return ""
}
