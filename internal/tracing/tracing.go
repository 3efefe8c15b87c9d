// Package tracing initializes OpenTelemetry tracing for the consumer loop,
// giving each processed message a span so latency can be correlated across
// decode, policy, resolver and sink stages.
package tracing

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	Tracer   trace.Tracer = trace.NewNoopTracerProvider().Tracer("noop")
	provider *sdktrace.TracerProvider
)

// Init wires a tracer provider for serviceName. The OTLP/HTTP endpoint is
// read from OTEL_EXPORTER_OTLP_ENDPOINT and defaults to localhost:4318. If
// the exporter cannot be created, a warning is logged and the noop tracer
// keeps running — tracing is observability, not a hard dependency for
// correctness. Init does not check that a collector is reachable.
func Init(ctx context.Context, serviceName string) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		logrus.WithError(err).Warn("tracing disabled: failed to create OTLP exporter")
		return
	}

	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName))
	provider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res))
	otel.SetTracerProvider(provider)
	Tracer = provider.Tracer(serviceName)

	logrus.Info("tracing initialized")
}

// Shutdown flushes and stops the tracer provider, if one was started.
func Shutdown(ctx context.Context) {
	if provider == nil {
		return
	}
	if err := provider.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("error shutting down tracer provider")
	}
}
