package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracerName = "github.com/fluxbotics/visionflow/pkg/runtime"

// Span is the handle a Component's run(ctx) sees through log_span(): one
// otel trace.Span plus a zap.Logger already annotated with the
// invocation's run id, pipeline id, component name, and source name.
// The runtime starts one of these when an invocation is dequeued and ends
// it when the invocation returns.
type Span struct {
	span   trace.Span
	logger *zap.Logger
}

// StartSpan starts a new child span named after the component and returns
// the Span handle plus the context carrying it, for propagation into any
// further otel-instrumented calls the component makes.
func StartSpan(ctx context.Context, component string, logger *zap.Logger, fields ...zap.Field) (context.Context, *Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, component)
	return ctx, &Span{span: span, logger: logger.With(fields...)}
}

// Logger returns the span-scoped structured logger.
func (s *Span) Logger() *zap.Logger {
	return s.logger
}

// Log is a convenience wrapper logging msg at info level with the span's
// fields plus any extras.
func (s *Span) Log(msg string, fields ...zap.Field) {
	s.logger.Info(msg, fields...)
}

// RecordError marks the span as failed and records err on both the trace
// and the logger.
func (s *Span) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	s.logger.Error("invocation failed", zap.Error(err))
}

// End closes the underlying trace span. Safe to call once per Span.
func (s *Span) End() {
	s.span.End()
}

// NoOpSpan returns a Span that logs to a no-op zap.Logger and records to a
// no-op trace.Span, for tests and contexts with no configured pipeline.
func NoOpSpan() *Span {
	return &Span{span: trace.SpanFromContext(context.Background()), logger: zap.NewNop()}
}
