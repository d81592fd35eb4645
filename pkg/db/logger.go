package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// slowQueryThreshold flags ledger queries worth looking at. Balance and
// owned-quantity reads are SUM scans, so this is the first place load
// problems show up.
const slowQueryThreshold = 200 * time.Millisecond

// queryLogger adapts gorm's logging callbacks onto the service's global zap
// logger. Errors and slow queries are always reported; the full SQL echo
// only runs in development, where the Info level is active. Log lines carry
// the request's trace id when one is in the context, same as the service
// layer's own logging.
type queryLogger struct {
	log           *zap.Logger
	level         logger.LogLevel
	slowThreshold time.Duration
	echoSQL       bool
}

func newQueryLogger(level logger.LogLevel, echoSQL bool) logger.Interface {
	return &queryLogger{
		log:           zap.L(),
		level:         level,
		slowThreshold: slowQueryThreshold,
		echoSQL:       echoSQL,
	}
}

func (l *queryLogger) LogMode(level logger.LogLevel) logger.Interface {
	copied := *l
	copied.level = level
	return &copied
}

func (l *queryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		l.log.Info(fmt.Sprintf(msg, data...), l.traceField(ctx)...)
	}
}

func (l *queryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		l.log.Warn(fmt.Sprintf(msg, data...), l.traceField(ctx)...)
	}
}

func (l *queryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		l.log.Error(fmt.Sprintf(msg, data...), l.traceField(ctx)...)
	}
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := append(l.traceField(ctx),
		zap.String("file", utils.FileWithLineNum()),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	)

	switch {
	case err != nil && !errors.Is(err, logger.ErrRecordNotFound):
		l.log.Error("query failed", append(fields, zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		l.log.Warn("slow query", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	case l.level >= logger.Info && l.echoSQL:
		l.log.Info("query", fields...)
	}
}

func (l *queryLogger) traceField(ctx context.Context) []zap.Field {
	if span := trace.SpanFromContext(ctx); span.SpanContext().HasTraceID() {
		return []zap.Field{zap.String("trace_id", span.SpanContext().TraceID().String())}
	}
	return nil
}
