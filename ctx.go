package auth

import "context"

type requestContextKey struct{}

// RequestContext is the immutable per-request identity snapshot installed by
// the session middleware. Role reflects the session cookie, not the current
// database row; a role change takes effect on the next login.
type RequestContext struct {
	AccountID   string
	DisplayName string
	Role        UserRole
	IssuedAt    int64
}

func (r RequestContext) IsAdmin() bool { return r.Role.IsAdmin() }

// WithRequestContext returns a context carrying the identity snapshot.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestFromContext retrieves the identity snapshot set by the session
// middleware. The boolean is false on unauthenticated requests.
func RequestFromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}
