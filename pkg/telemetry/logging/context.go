package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// InteractionIDKey is the context key for analytics interaction IDs.
	InteractionIDKey contextKey = "interaction_id"

	// ModelKey is the context key for model names.
	ModelKey contextKey = "model"

	// TraceIDKey is the context key for trace IDs.
	TraceIDKey contextKey = "trace_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithInteractionID adds an interaction ID to the context.
func WithInteractionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, InteractionIDKey, id)
}

// GetInteractionID retrieves the interaction ID from the context.
func GetInteractionID(ctx context.Context) string {
	if id, ok := ctx.Value(InteractionIDKey).(string); ok {
		return id
	}
	return ""
}

// WithModel adds a model name to the context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

// GetModel retrieves the model name from the context.
func GetModel(ctx context.Context) string {
	if model, ok := ctx.Value(ModelKey).(string); ok {
		return model
	}
	return ""
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// contextAttrs extracts the request fields present in ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	if v := GetRequestID(ctx); v != "" {
		attrs = append(attrs, slog.String("request_id", v))
	}
	if v := GetInteractionID(ctx); v != "" {
		attrs = append(attrs, slog.String("interaction_id", v))
	}
	if v := GetModel(ctx); v != "" {
		attrs = append(attrs, slog.String("model", v))
	}
	if v := GetTraceID(ctx); v != "" {
		attrs = append(attrs, slog.String("trace_id", v))
	}
	return attrs
}
