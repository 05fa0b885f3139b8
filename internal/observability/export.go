package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/conduit/pkg/trace"
)

// Exporter replays finalized conversation traces through the OpenTelemetry
// SDK so they show up in Jaeger/Tempo next to the rest of the fleet. The
// in-process span tree remains the source of truth; this is a mirror, and a
// failed export never affects the stored trace.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   oteltrace.Tracer
}

// ExportConfig configures the OTLP connection.
type ExportConfig struct {
	// ServiceName identifies this service in exported traces.
	ServiceName string

	// Endpoint is the OTLP gRPC collector endpoint (e.g. "localhost:4317").
	// Empty disables export.
	Endpoint string

	// Insecure disables TLS for the OTLP connection (dev/testing only).
	Insecure bool
}

// NewExporter creates an OTLP trace exporter. With an empty endpoint it
// returns a nil exporter and a no-op shutdown; callers treat nil as disabled.
func NewExporter(cfg ExportConfig) (*Exporter, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if cfg.Endpoint == "" {
		return nil, noop, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "conduit"
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, noop, err
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	e := &Exporter{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
	}
	return e, provider.Shutdown, nil
}

// ExportTrace mirrors one finalized trace. Open spans are skipped; the
// finalizer should have closed everything.
func (e *Exporter) ExportTrace(ctx context.Context, tr *trace.Trace) {
	if e == nil || tr == nil || tr.RootSpan == nil {
		return
	}
	e.replay(ctx, tr, tr.RootSpan, []attribute.KeyValue{
		attribute.String("conversation_id", tr.ConversationID),
		attribute.String("session_id", tr.SessionID),
	})
}

func (e *Exporter) replay(ctx context.Context, tr *trace.Trace, s *trace.Span, common []attribute.KeyValue) {
	if s.Open() {
		return
	}

	attrs := append([]attribute.KeyValue{
		attribute.String("span_type", string(s.Type)),
		attribute.Int64("duration_ms", s.DurationMs),
	}, common...)

	ctx, span := e.tracer.Start(ctx, s.Name,
		oteltrace.WithTimestamp(s.StartTime),
		oteltrace.WithAttributes(attrs...),
	)
	for _, ev := range s.Events {
		evAttrs := make([]attribute.KeyValue, 0, len(ev.Attributes))
		for k, v := range ev.Attributes {
			evAttrs = append(evAttrs, attributeFromValue(k, v))
		}
		span.AddEvent(ev.Name,
			oteltrace.WithTimestamp(ev.Timestamp),
			oteltrace.WithAttributes(evAttrs...))
	}
	if s.Status == trace.StatusError {
		span.SetStatus(codes.Error, s.Name)
	} else if s.Status == trace.StatusSuccess {
		span.SetStatus(codes.Ok, "")
	}

	for _, child := range s.Children {
		e.replay(ctx, tr, child, common)
	}
	span.End(oteltrace.WithTimestamp(*s.EndTime))
}

func attributeFromValue(key string, val any) attribute.KeyValue {
	switch v := val.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
