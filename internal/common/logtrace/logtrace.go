// Package logtrace provides logging bootstrap and request tracing helpers.
// It integrates with zerolog for structured logging.
package logtrace

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type requestIdContextKey string

// RequestIdKey is the context key under which the request id is stored.
const RequestIdKey = requestIdContextKey("requestId")

// InitLogger initializes the global logger to write structured JSON to
// stderr with Unix timestamps.
func InitLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// WithRequestId stores the request id in the context.
func WithRequestId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIdKey, id)
}

// RequestIdFromContext extracts the request id from the context. Returns an
// empty string if none is set.
func RequestIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	r, ok := ctx.Value(RequestIdKey).(string)
	if !ok {
		return ""
	}
	return r
}
