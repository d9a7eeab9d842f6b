package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Setup configures the global tracer provider from the config. Returns the
// provider so the caller can shut it down (flushing pending spans) on exit.
func Setup(ctx context.Context, config Config) (*tracesdk.TracerProvider, error) {
	res, err := newResource(config)
	if err != nil {
		return nil, err
	}

	options := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.OTLP.Host)}
	if !config.OTLP.Secure {
		options = append(options, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, options...)
	if err != nil {
		return nil, err
	}

	provider := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(res),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	service := config.Service
	if service == "" {
		service = defaultService
	}
	tracer = otel.Tracer(service)

	return provider, nil
}

// Identifies this client instance; endpoint ids are not globally unique over
// time, so a random instance id is attached as well.
func newResource(config Config) (*resource.Resource, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	service := config.Service
	if service == "" {
		service = defaultService
	}

	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
		attribute.String("instance.id", id.String()),
	), nil
}
