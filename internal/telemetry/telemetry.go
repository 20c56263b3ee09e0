// Package telemetry configures OpenTelemetry tracing for the process.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/kalambet/bidfetch/internal/config"
)

// Telemetry owns the installed tracer provider. A zero Telemetry is a no-op.
type Telemetry struct {
	TracerProvider *trace.TracerProvider
}

func (t Telemetry) Shutdown(ctx context.Context) error {
	if t.TracerProvider == nil {
		return nil
	}
	return errors.Join(t.TracerProvider.Shutdown(ctx))
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
}

// Setup installs a global tracer provider exporting over OTLP/HTTP. With no
// endpoint configured, tracing stays on the global no-op provider.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (Telemetry, error) {
	if cfg.OTLPEndpoint == "" {
		slog.Debug("tracing disabled", "reason", "no otlp endpoint")
		return Telemetry{}, nil
	}
	name := cfg.ServiceName
	if name == "" {
		name = "bidfetch"
	}

	r, err := newResource(name)
	if err != nil {
		return Telemetry{}, fmt.Errorf("building resource: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
	if err != nil {
		return Telemetry{}, fmt.Errorf("creating trace exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(r),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	slog.Info("tracer export initialized", "type", "http", "endpoint", cfg.OTLPEndpoint)

	return Telemetry{TracerProvider: tp}, nil
}
