package logging

import (
	"context"
)

const (
	TraceIDKey       = "trace_id"
	MessageIDKey     = "message_id"
	ServiceNameKey   = "service_name"
	IntegrationIDKey = "integration_id"
	ActorIDKey       = "actor_id"
)

type contextKey string

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKey(TraceIDKey), traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, contextKey(MessageIDKey), messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, contextKey(ServiceNameKey), serviceName)
}

func WithIntegrationID(ctx context.Context, integrationID string) context.Context {
	return context.WithValue(ctx, contextKey(IntegrationIDKey), integrationID)
}

func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, contextKey(ActorIDKey), actorID)
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return stringValue(ctx, MessageIDKey)
}

func GetServiceName(ctx context.Context) string {
	return stringValue(ctx, ServiceNameKey)
}

func GetIntegrationID(ctx context.Context) string {
	return stringValue(ctx, IntegrationIDKey)
}

func GetActorID(ctx context.Context) string {
	return stringValue(ctx, ActorIDKey)
}

func stringValue(ctx context.Context, key string) string {
	if v, ok := ctx.Value(contextKey(key)).(string); ok {
		return v
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 10)

	for _, key := range []string{TraceIDKey, MessageIDKey, ServiceNameKey, IntegrationIDKey, ActorIDKey} {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}

	return fields
}
