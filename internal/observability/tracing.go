// Package observability sets up the process-wide tracer used to trace
// per-source aggregation work (C9) and connection pool acquisition
// (C1), matching the teacher's worker pipeline's use of a single
// ambient tracer rather than one per component.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bluekornchips/gandalf-aggregator"

// Init installs a sampling-always TracerProvider as the global
// provider. Spans are recorded in-process; no exporter is configured,
// since none of the pack's OTLP/stdout exporter modules are wired in
// go.mod and fabricating that dependency would contradict the rest of
// this project's grounding discipline. Call once from each cmd/ main.
func Init() func(context.Context) error {
	tp := trace.NewTracerProvider(trace.WithSampler(trace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// Tracer returns the package-wide tracer. Safe to call before Init;
// otel falls back to a no-op tracer until a provider is installed.
func Tracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}
