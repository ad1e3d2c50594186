package logging

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FlowLogger writes login journey lifecycle events.
type FlowLogger struct {
	logger *zap.Logger
}

// NewFlowLogger creates a lifecycle logger.
func NewFlowLogger(logger *zap.Logger) *FlowLogger {
	return &FlowLogger{logger: logger.Named("flow")}
}

// StepStarted logs the start of a step.
func (l *FlowLogger) StepStarted(userID, step string) {
	l.logger.Info("step started", zap.String("user", userID), zap.String("step", step))
}

// StepSucceeded logs a completed step.
func (l *FlowLogger) StepSucceeded(userID, step string, elapsed time.Duration) {
	l.logger.Info("step succeeded",
		zap.String("user", userID),
		zap.String("step", step),
		zap.Duration("elapsed", elapsed))
}

// StepFailed logs the step that aborted the flow.
func (l *FlowLogger) StepFailed(userID, step string, err error) {
	l.logger.Error("step failed",
		zap.String("user", userID),
		zap.String("step", step),
		zap.Error(err))
}

// FlowCompleted logs a verified login.
func (l *FlowLogger) FlowCompleted(userID string, total time.Duration) {
	l.logger.Info("login flow completed", zap.String("user", userID), zap.Duration("total", total))
}

// Span is one reported step.
type Span struct {
	Name     string
	Start    time.Time
	Duration time.Duration
	Err      error
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s Span) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("step", s.Name)
	enc.AddDuration("duration", s.Duration)
	if s.Err != nil {
		enc.AddString("error", s.Err.Error())
	}
	return nil
}

// SpanList logs spans as an array field.
type SpanList []Span

// MarshalLogArray implements zapcore.ArrayMarshaler.
func (l SpanList) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, s := range l {
		if err := enc.AppendObject(s); err != nil {
			return err
		}
	}
	return nil
}

// StepReporter records a span per step and logs it at debug level. It never
// alters the error returned by the wrapped step.
type StepReporter struct {
	logger *zap.Logger

	mu    sync.Mutex
	spans []Span
}

// NewStepReporter creates a step reporter bound to one trace.
func NewStepReporter(logger *zap.Logger, traceID string) *StepReporter {
	return &StepReporter{logger: logger.Named("step").With(zap.String("trace_id", traceID))}
}

// Step runs fn as the named step.
func (r *StepReporter) Step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	span := Span{Name: name, Start: start, Duration: time.Since(start), Err: err}

	r.mu.Lock()
	r.spans = append(r.spans, span)
	r.mu.Unlock()

	fields := []zap.Field{zap.String("step", name), zap.Duration("duration", span.Duration)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	r.logger.Debug("step", fields...)
	return err
}

// Spans returns the spans recorded so far, oldest first.
func (r *StepReporter) Spans() []Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Span, len(r.spans))
	copy(out, r.spans)
	return out
}
