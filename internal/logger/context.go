package logger

import (
	"context"

	"github.com/google/uuid"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithDispatchID adds a dispatch run ID to the context.
func WithDispatchID(ctx context.Context, dispatchID string) context.Context {
	return context.WithValue(ctx, ContextKeyDispatchID, dispatchID)
}

// WithEndpointKey adds the derived subscription key to the context.
// The raw endpoint URL is a bearer capability and never goes into logs.
func WithEndpointKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ContextKeyEndpointKey, key)
}

// WithOperation adds an operation name to the context.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, ContextKeyOperation, operation)
}

// GenerateRequestID generates a new request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}
