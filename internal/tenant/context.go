// Package tenant carries the ambient tenant identity through a
// context.Context. The HTTP layer (out of process here) resolves the tenant
// from the request and attaches it; the job system reads it when a payload
// does not name a tenant explicitly.
package tenant

import "context"

type contextKey string

const tenantContextKey contextKey = "tenant_id"

// WithTenant returns a context carrying the given tenant id.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey, tenantID)
}

// FromContext returns the tenant id attached to the context, if any.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantContextKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
