package authcore

import "context"

type contextKey int

const (
	contextKeyClientIP contextKey = iota
)

// WithClientIP attaches the caller's source address to the context. The
// engine uses it as the rate-limit identity for unauthenticated operations
// and records it in audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, contextKeyClientIP, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if ip, ok := ctx.Value(contextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}
