package cloudysetup

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName scopes every span emitted by this package.
const tracerName = "github.com/AltairaLabs/cloudysetup/internal/cloudysetup"

var (
	// Poll metrics
	pollAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudysetup_poll_attempts_total",
			Help: "Status queries issued while polling, by observed status",
		},
		[]string{"status"}, // PENDING, IN_PROGRESS, ..., or error
	)

	pollOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudysetup_poll_outcomes_total",
			Help: "Finished poll sessions, by final status and reason",
		},
		[]string{"status", "reason"},
	)

	pollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cloudysetup_poll_duration_seconds",
			Help:    "Wall time of a poll session",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800},
		},
	)

	// Dispatch metrics
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudysetup_dispatch_total",
			Help: "Resource operations dispatched, by operation and result",
		},
		[]string{"operation", "result"}, // result: ok, invalid, error
	)

	// Generation metrics
	generationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudysetup_generation_total",
			Help: "Template generations, by result",
		},
		[]string{"result"}, // ok or error
	)
)

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startSpan begins a span with the given attributes.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span (if any) and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
