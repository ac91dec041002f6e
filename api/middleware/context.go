package middleware

import "context"

type contextKey string

const (
	ctxAdminID  contextKey = "admin_id"
	ctxUsername contextKey = "admin_username"
	ctxRole     contextKey = "actor_role"
)

func AdminIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if v, ok := ctx.Value(ctxAdminID).(int64); ok {
		return v
	}
	return 0
}

func UsernameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUsername).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// WithAdmin injects the admin identity into the context for downstream handlers.
func WithAdmin(ctx context.Context, adminID int64, username, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxAdminID, adminID)
	ctx = context.WithValue(ctx, ctxUsername, username)
	return context.WithValue(ctx, ctxRole, role)
}
