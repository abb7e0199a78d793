package pollz

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Handle is a span that can be entered for the duration of a poll.
//
// Enter returns parent with the span made current. Exit is called once for
// every Enter, after the context returned by Enter stops being ambient.
// Both must be infallible and safe to nest.
type Handle interface {
	Enter(parent context.Context) context.Context
	Exit()
}

// Releaser is implemented by handles that hold a reference which must be
// given back when the owner is done with it.
type Releaser interface {
	Release()
}

// Noop is the empty span. Entering it has no observable effect.
var Noop Handle = noopHandle{}

type noopHandle struct{}

func (noopHandle) Enter(parent context.Context) context.Context { return parent }
func (noopHandle) Exit()                                        {}

// orNoop maps an absent span to Noop. A nil *ActiveSpan stored in a Handle
// is not == nil, so it is checked separately.
func orNoop(h Handle) Handle {
	switch span := h.(type) {
	case nil:
		return Noop
	case *ActiveSpan:
		if span == nil {
			return Noop
		}
	}
	return h
}

// CurrentHandle returns the span current in ctx.
// A native span takes precedence over an OpenTelemetry span with a valid
// span context, local or remote, recording or not; Noop is returned when
// neither is present. The returned native span is not retained.
func CurrentHandle(ctx context.Context) Handle {
	if ctx == nil {
		return Noop
	}
	if span := CurrentSpan(ctx); span != nil {
		return span
	}
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return OTel(span)
	}
	return Noop
}
