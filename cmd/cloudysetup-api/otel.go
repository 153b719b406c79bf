package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AltairaLabs/cloudysetup/internal/cloudysetup"
)

// serviceName identifies this binary in traces and the root response.
const serviceName = "cloudysetup-api"

// tracingShutdown flushes and shuts down the trace exporter.
type tracingShutdown func(context.Context) error

// setupTracing configures OTLP/HTTP trace export if enabled and installs the
// provider and W3C propagators globally.
func setupTracing(ctx context.Context, cfg *apiConfig, log *slog.Logger) (tracingShutdown, error) {
	if !cfg.TracingEnabled || cfg.OTLPEndpoint == "" {
		log.Info("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(tracesURL(cfg.OTLPEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", cloudysetup.Version),
		)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("tracing enabled", "endpoint", cfg.OTLPEndpoint)
	return provider.Shutdown, nil
}

// tracesURL appends the OTLP traces path when the endpoint is a bare
// collector address, as OTEL_EXPORTER_OTLP_ENDPOINT usually is.
func tracesURL(endpoint string) string {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/traces"
	}
	return u.String()
}
