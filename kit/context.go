package kit

import "context"

type ctxKey int

const (
	transportKey ctxKey = iota // "http" or "mcp"
	traceIDKey
	viewIDKey
)

func stringValue(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// WithTransport records which surface a call arrived on.
func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// GetTransport returns the transport of the call, "http" when unset.
func GetTransport(ctx context.Context) string {
	if t := stringValue(ctx, transportKey); t != "" {
		return t
	}
	return "http"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

func GetTraceID(ctx context.Context) string { return stringValue(ctx, traceIDKey) }

// WithViewID tags the context with the page view a request belongs to.
func WithViewID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, viewIDKey, id)
}

func GetViewID(ctx context.Context) string { return stringValue(ctx, viewIDKey) }
