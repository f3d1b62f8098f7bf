// ABOUTME: Per-operation instrumentation shared by the club, membership and feed managers
// ABOUTME: Wraps each call in an otel span, structured logs, prometheus metrics and panic recovery

package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/fanclub-gateway/internal/apperr"
)

// Metrics counts operation outcomes and durations per component.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the operation collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fanclub",
			Name:      "operations_total",
			Help:      "Core operations by component, operation and result code.",
		}, []string{"component", "operation", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fanclub",
			Name:      "operation_duration_seconds",
			Help:      "Core operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component", "operation"}),
	}
	reg.MustRegister(m.operations, m.duration)
	return m
}

func (m *Metrics) record(component, op string, code apperr.Code, d time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = "OK"
	}
	m.operations.WithLabelValues(component, op, string(code)).Inc()
	m.duration.WithLabelValues(component, op).Observe(d.Seconds())
}

// Instrument bundles the observability handles of one component.
type Instrument struct {
	Component string
	Tracer    trace.Tracer
	Logger    *slog.Logger
	Metrics   *Metrics
}

// NewInstrument returns an Instrument with a tracer from the global provider
// and a component-scoped logger. metrics may be nil.
func NewInstrument(component string, logger *slog.Logger, metrics *Metrics) Instrument {
	if logger == nil {
		logger = slog.Default()
	}
	return Instrument{
		Component: component,
		Tracer:    otel.Tracer("fanclub/" + component),
		Logger:    logger.With("component", component),
		Metrics:   metrics,
	}
}

// Run executes fn as the named operation. Domain errors pass through unchanged
// and are logged at Warn; other errors are prefixed with the operation name and
// logged at Error. A panic in fn becomes an INTERNAL error.
func Run[T any](ctx context.Context, in Instrument, op, identifier string, fn func(ctx context.Context) (T, error)) (result T, err error) {
	tracer := in.Tracer
	if tracer == nil {
		tracer = otel.Tracer("fanclub")
	}
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, span := tracer.Start(ctx, in.Component+"."+op, trace.WithAttributes(
		attribute.String("operation", op),
		attribute.String("identifier", identifier),
	))
	defer span.End()

	start := time.Now()
	logger.DebugContext(ctx, "operation started", "operation", op, "identifier", identifier)

	defer func() {
		if r := recover(); r != nil {
			err = apperr.Wrap(apperr.CodeInternal, "internal error", fmt.Errorf("panic in %s: %v", op, r))
			var zero T
			result = zero
			logger.ErrorContext(ctx, "panic recovered", "operation", op, "identifier", identifier, "error", err)
		}

		code := apperr.CodeOf(err)
		in.Metrics.record(in.Component, op, code, time.Since(start))

		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
			logger.DebugContext(ctx, "operation succeeded", "operation", op, "identifier", identifier, "duration", time.Since(start))
		case apperr.IsDomain(err):
			span.SetAttributes(attribute.String("error.code", string(code)))
			logger.WarnContext(ctx, "operation rejected", "operation", op, "identifier", identifier, "code", code, "error", err)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.ErrorContext(ctx, "operation failed", "operation", op, "identifier", identifier, "code", code, "error", err)
		}
	}()

	result, err = fn(ctx)
	if err != nil && !apperr.IsDomain(err) && apperr.CodeOf(err) != apperr.CodeTransientStorage {
		err = fmt.Errorf("%s: %w", op, err)
	}
	return result, err
}
