package contextx

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const requestIDKey ctxKey = iota

// WithNewRequestID attaches a freshly generated request id to the context.
func WithNewRequestID(ctx context.Context) context.Context {
	return WithRequestID(ctx, uuid.New().String())
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request id carried by the context, or "" if none.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
