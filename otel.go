package pollz

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OTel adapts an OpenTelemetry span to Handle.
// Entering it makes span current for trace.SpanFromContext; the span is not
// ended by the wrapper.
func OTel(span trace.Span) Handle {
	if span == nil {
		return Noop
	}
	return otelHandle{span: span}
}

type otelHandle struct {
	span trace.Span
}

func (h otelHandle) Enter(parent context.Context) context.Context {
	return trace.ContextWithSpan(parent, h.span)
}

func (otelHandle) Exit() {}

// OTelExporter returns a SpanHandler that replays completed spans into an
// OpenTelemetry tracer. Native ids are kept as attributes since OpenTelemetry
// assigns its own.
func OTelExporter(tracer trace.Tracer) SpanHandler {
	return func(span Span) {
		attrs := make([]attribute.KeyValue, 0, len(span.Tags)+3)
		attrs = append(attrs,
			attribute.String("pollz.trace_id", span.TraceID),
			attribute.String("pollz.span_id", span.SpanID),
		)
		if span.ParentID != "" {
			attrs = append(attrs, attribute.String("pollz.parent_id", span.ParentID))
		}
		for k, v := range span.Tags {
			attrs = append(attrs, attribute.String(k, v))
		}

		_, out := tracer.Start(context.Background(), span.Name,
			trace.WithTimestamp(span.StartTime),
			trace.WithAttributes(attrs...),
		)
		out.End(trace.WithTimestamp(span.EndTime))
	}
}
