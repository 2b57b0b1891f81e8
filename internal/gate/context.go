package gate

import (
	"context"

	"rategate/internal/limiter"
	"rategate/internal/policy"
)

// Metadata is the request-scoped decision record attached for downstream
// observability. It is created once per request and discarded at request
// end.
type Metadata struct {
	Key    string
	Type   policy.LimitType
	Result limiter.Result
	Config policy.Config
}

type contextKey struct{}

// NewContext attaches decision metadata to a request context.
func NewContext(ctx context.Context, meta *Metadata) context.Context {
	return context.WithValue(ctx, contextKey{}, meta)
}

// FromContext retrieves decision metadata, if the gate produced any.
func FromContext(ctx context.Context) (*Metadata, bool) {
	meta, ok := ctx.Value(contextKey{}).(*Metadata)
	return meta, ok
}
