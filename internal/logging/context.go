package logging

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	// CorrelationIDKey is the context key for correlation ID
	CorrelationIDKey contextKey = "correlation_id"

	// HeaderCorrelationID carries the correlation ID across HTTP hops.
	HeaderCorrelationID = "X-Correlation-ID"

	maxCorrelationIDLen = 128
)

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// GetCorrelationID retrieves the correlation ID from the context
// Returns empty string if not set
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// GenerateCorrelationID generates a new UUID-based correlation ID
func GenerateCorrelationID() string {
	return uuid.New().String()
}

// CorrelationIDFromHeader returns a sanitized inbound header value, or a
// fresh ID when the header is empty or unusable.
func CorrelationIDFromHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxCorrelationIDLen || strings.ContainsAny(value, "\r\n") {
		return GenerateCorrelationID()
	}
	return value
}
