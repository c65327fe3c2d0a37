package middleware

import "context"

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
	ctxEmail  contextKey = "actor_email"
)

func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserID)
}

func RoleFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxRole)
}

func EmailFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxEmail)
}

// WithIdentity injects the caller identity the way Auth does. Tests use it to
// skip token minting.
func WithIdentity(ctx context.Context, userID, role, email string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	if email != "" {
		ctx = context.WithValue(ctx, ctxEmail, email)
	}
	return ctx
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
