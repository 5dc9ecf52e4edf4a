// Package telemetry provides the engine's span-emission hook: the
// engine emits spans named authz.check, authz.derived_roles,
// authz.policy_match and authz.cel_evaluate through an injected Tracer.
// When no tracer is injected, a no-op implementation is used so the
// engine never depends on a real exporter being present.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans for a decision-engine stage. It mirrors
// OpenTelemetry's trace.Tracer narrowed to what the engine needs.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span)
}

// Span is the subset of OpenTelemetry's trace.Span the engine touches.
type Span interface {
	SetAttributes(attrs ...attribute.KeyValue)
	RecordError(err error)
	SetError(err error)
	End()
}

// otelTracer adapts a real OpenTelemetry trace.Tracer to Tracer.
type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry trace.Tracer, e.g. one obtained from
// an injected TracerProvider.
func NewTracer(tracer trace.Tracer) Tracer {
	return &otelTracer{tracer: tracer}
}

func (t *otelTracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func (s *otelSpan) SetError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) End() {
	s.span.End()
}

// NoopTracer is the default Tracer when no exporter is injected.
type NoopTracer struct{}

// Start returns ctx unchanged and a no-op span.
func (NoopTracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetAttributes(attrs ...attribute.KeyValue) {}
func (noopSpan) RecordError(err error)                     {}
func (noopSpan) SetError(err error)                        {}
func (noopSpan) End()                                      {}

// Common attribute keys the engine's spans carry.
var (
	PrincipalIDKey    = attribute.Key("authz.principal.id")
	ResourceKindKey   = attribute.Key("authz.resource.kind")
	ResourceIDKey     = attribute.Key("authz.resource.id")
	ActionCountKey    = attribute.Key("authz.action_count")
	PolicyCountKey    = attribute.Key("authz.policy_count")
	ActionKey         = attribute.Key("authz.action")
	EffectKey         = attribute.Key("authz.effect")
	PolicyNameKey     = attribute.Key("authz.policy_name")
	DerivedRoleCount  = attribute.Key("authz.derived_role_count")
	ExpressionLenKey  = attribute.Key("authz.cel.expr_len")
)
