// Package observability wires optional OTLP trace export into the Genkit
// tracer provider.
//
// Genkit instruments every model call with spans on its own tracer provider.
// Setup attaches an OTLP/HTTP exporter to that provider and installs it as
// the global OpenTelemetry provider, so spans started through the otel API
// and Genkit's generation spans land in the same export pipeline.
//
// The exporter speaks OTLP over plain HTTP to a local collector or agent;
// the collector handles authentication and forwarding, so no backend
// credentials live in this process.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config for trace export.
type Config struct {
	// Endpoint is the OTLP/HTTP collector address (host:port). Config
	// validation guarantees it is set whenever tracing is enabled.
	Endpoint string

	// Service is the service.name reported on exported spans.
	Service string
}

// Setup registers an OTLP exporter with Genkit's tracer provider and makes
// that provider the global one.
//
// Returns a shutdown function that flushes pending spans; call it during
// teardown with a bounded context. Exporter construction failure disables
// tracing with a warning rather than failing startup: tracing is an
// observation aid, never a dependency.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) func(context.Context) error {
	// Genkit's TracerProvider reads the service name from the environment.
	// Called once during startup, before any goroutines exist.
	if cfg.Service != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.Service)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }
	}

	provider := tracing.TracerProvider()
	provider.RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
	otel.SetTracerProvider(provider)

	// Startup span verifies the pipeline end to end.
	_, span := Tracer("vitrine").Start(ctx, "vitrine.start")
	span.End()

	logger.Debug("trace export enabled", "endpoint", cfg.Endpoint, "service", cfg.Service)
	return provider.Shutdown
}

// Tracer returns a named tracer from the global provider Setup installed.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
