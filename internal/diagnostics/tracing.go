package diagnostics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "mpctracker"

// NewTracerProvider builds a root-sampled tracer provider exporting
// spans to stdout by default — enough to inspect the shape of one
// control tick's internal work without wiring a collector.
func NewTracerProvider(serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res := resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return tp, nil
}

// Tracer returns the package-level tracer, usable before or after a
// custom TracerProvider is registered with otel.SetTracerProvider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartTick opens one span covering a single MPC control tick; the
// caller defers the returned function.
func StartTick(ctx context.Context) (context.Context, func()) {
	ctx, span := Tracer().Start(ctx, "mpc_tick")
	return ctx, func() { span.End() }
}
