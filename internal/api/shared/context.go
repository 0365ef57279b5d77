package shared

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"time"
)

// ContextKey is the private key type for request-scoped values, so other
// packages cannot collide with ours.
type ContextKey string

const (
	// UserIDContextKey holds the authenticated user's uuid.UUID, set by
	// the auth middleware and read by every job handler.
	UserIDContextKey ContextKey = "userID"

	// TraceIDKey holds the per-request trace ID.
	TraceIDKey ContextKey = "traceID"

	traceIDBytes = 16
)

// SetTraceID attaches a fresh trace ID to ctx. Called once per request
// by the trace middleware; logs and error responses quote it so a
// client-reported failure can be found in the logs.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, newTraceID())
}

// GetTraceID returns the trace ID from ctx, or "" when none was set.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// newTraceID returns 32 hex characters of randomness. If the random
// source fails it falls back to a timestamp-derived ID; a weak trace ID
// is still more useful than aborting the request.
func newTraceID() string {
	b := make([]byte, traceIDBytes)
	if n, err := rand.Read(b); err != nil || n != traceIDBytes {
		slog.Error("failed to generate random trace ID", "error", err)
		now := time.Now()
		binary.BigEndian.PutUint64(b[:8], uint64(now.UnixNano()))
		binary.BigEndian.PutUint64(b[8:], uint64(now.Unix())<<32|uint64(now.Nanosecond()))
	}
	return hex.EncodeToString(b)
}
