package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestNewTracer_RealSDK wires the Tracer adapter to a genuine OpenTelemetry
// SDK TracerProvider (sdktrace.NewTracerProvider with a synchronous test
// exporter) rather than a fake, exercising the otel/sdk dependency the
// engine's span hook is built to support.
func TestNewTracer_RealSDK(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	defer provider.Shutdown(context.Background())

	tracer := NewTracer(provider.Tracer("authz-engine-test"))

	ctx, span := tracer.Start(context.Background(), "authz.check",
		PrincipalIDKey.String("u1"),
		ResourceKindKey.String("document"),
	)
	span.SetAttributes(EffectKey.String("allow"))
	span.End()
	_ = ctx

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "authz.check", spans[0].Name)

	names := make(map[string]attribute.Value, len(spans[0].Attributes))
	for _, a := range spans[0].Attributes {
		names[string(a.Key)] = a.Value
	}
	assert.Equal(t, "u1", names["authz.principal.id"].AsString())
	assert.Equal(t, "document", names["authz.resource.kind"].AsString())
	assert.Equal(t, "allow", names["authz.effect"].AsString())
}

// TestSpan_SetError confirms SetError both records and flags the span,
// the behavior authz.check's panic-recovery path relies on.
func TestSpan_SetError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer provider.Shutdown(context.Background())

	tracer := NewTracer(provider.Tracer("authz-engine-test"))
	_, span := tracer.Start(context.Background(), "authz.check")
	span.SetError(errors.New("boom"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "boom", spans[0].Status.Description)
}
