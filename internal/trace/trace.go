// Package trace threads a request's trace id through context.Context.
// The id lives only as long as the context that carries it.
package trace

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type ctxKey struct{}

// WithTraceID returns a copy of ctx carrying id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// ID returns the trace id carried by ctx, or "".
func ID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Ensure returns ctx with a trace id, minting one when ctx has none or
// when id is empty.
func Ensure(ctx context.Context, id string) context.Context {
	if id == "" {
		id = ID(ctx)
	}
	if id == "" {
		id = uuid.NewString()
	}
	return WithTraceID(ctx, id)
}

// Logger returns the default logger annotated with ctx's trace id.
func Logger(ctx context.Context) *slog.Logger {
	if id := ID(ctx); id != "" {
		return slog.Default().With("trace_id", id)
	}
	return slog.Default()
}
