package audit

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	EventIngest  = "ingest"
	EventSync    = "sync"
	EventLock    = "lock"
	EventPublish = "publish"
	EventSearch  = "search"
)

// Logger emits one event per completed pipeline stage. Emission is
// fire-and-forget: it can never fail the operation that produced the event.
type Logger interface {
	Emit(ctx context.Context, event string, fields map[string]interface{})
}

type zapLogger struct{}

func NewLogger() Logger {
	return zapLogger{}
}

func (zapLogger) Emit(ctx context.Context, event string, fields map[string]interface{}) {
	zapFields := make([]zap.Field, 0, len(fields)+1)
	zapFields = append(zapFields, zap.String("event", event))
	for key, value := range fields {
		zapFields = append(zapFields, zap.Any(key, value))
	}
	logutil.GetLogger(ctx).Info("audit", zapFields...)
}

type nopLogger struct{}

func NewNopLogger() Logger {
	return nopLogger{}
}

func (nopLogger) Emit(ctx context.Context, event string, fields map[string]interface{}) {}
