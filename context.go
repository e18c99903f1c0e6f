package tokengate

import "context"

type clientIPContextKey struct{}
type actorContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for rate limiting and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithActor attaches the acting identity to ctx: the operator requesting a
// pairing token, or the terminal presenting one. Rate limit counters and
// audit entries are keyed by it.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func actorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}
