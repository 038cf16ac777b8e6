// Package tracing wires go.opentelemetry.io/otel into the Agent Core: one
// span per turn, child spans per tool/peer call, linked across the
// delegation boundary via the sub_task_id span attribute (SPEC_FULL domain
// stack). Grounded on the teacher's pkg/observability/tracer.go, narrowed
// to the SDK-only surface this module's go.mod carries (no OTLP exporter
// wired — see DESIGN.md for why).
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const InstrumentationName = "github.com/solacelabs/sam-core/agent/sac"

// Init installs a process-wide TracerProvider tagged with serviceName and
// returns it so callers can flush it on shutdown. With no span processor
// registered, spans are created and sampled but not exported anywhere
// until an exporter is attached — this keeps the dependency surface to
// exactly what the examples' go.mod carries (otel + otel/sdk + otel/trace,
// no exporter package) while still exercising the real span API.
func Init(serviceName string) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// Tracer returns the Agent Core's named tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
