package tracer

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"filings-rag-be/internal/pkg/logger"
)

const ServiceName = "filings-rag-backend"

// InitTracer installs an OTLP HTTP exporter when enabled. The returned
// function flushes and stops it; it is a no-op when tracing is off. Workflow
// node spans and HTTP spans both go through the global provider set here.
func InitTracer(enabled bool, log logger.ILogger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !enabled {
		log.Debug("tracer", "tracing disabled", nil)
		return noop
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.Warn("tracer", "otlp exporter unavailable, tracing disabled", map[string]interface{}{"error": err.Error()})
		return noop
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)
	log.Info("tracer", "tracing enabled", map[string]interface{}{"endpoint": endpoint})

	return tp.Shutdown
}
