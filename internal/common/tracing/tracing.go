// Package tracing bootstraps OpenTelemetry tracing for the orchestration core.
// Without OTEL_EXPORTER_OTLP_ENDPOINT set, Tracer returns a no-op tracer so
// the rest of the codebase never has to branch on whether tracing is enabled.
package tracing

import (
	"context"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	providerOnce sync.Once
	provider     *sdktrace.TracerProvider
)

// Tracer returns a trace.Tracer scoped to serverName. The first call
// bootstraps a process-wide TracerProvider (exporting via OTLP/HTTP when
// OTEL_EXPORTER_OTLP_ENDPOINT is set, otherwise a provider with no
// exporter attached, whose spans are dropped on End).
func Tracer(serverName string) trace.Tracer {
	providerOnce.Do(func() {
		provider = newProvider(serverName)
		otel.SetTracerProvider(provider)
	})
	return otel.Tracer(serverName)
}

// Shutdown flushes and stops the process-wide TracerProvider, if one was
// initialized. Safe to call even if Tracer was never called.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

func newProvider(serverName string) *sdktrace.TracerProvider {
	res, _ := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceNameKey.String(serverName)),
	)

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	}

	exporter, err := otlptracehttp.New(context.Background())
	if err != nil {
		// Fall back to a provider with no exporter rather than fail startup.
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
}
