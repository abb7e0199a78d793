// Package pollz attaches tracing spans to actor-bound futures.
//
// An actor-bound future is a computation that the actor runtime advances by
// polling it repeatedly, each time with exclusive access to the owning actor
// and its execution context. Work driven this way loses its tracing context
// between polls unless something re-establishes it on every resumption.
// pollz does exactly that: the span is entered for the duration of each poll
// step and exited before the step returns.
//
// Core Components:
//   - ActorFuture: the poll contract consumed from the actor runtime.
//   - Task: the suspension handle, carrying the ambient context.Context.
//   - Handle: a span that can be entered and exited.
//   - Instrumented: the wrapper pairing one future with one span.
//   - Tracer, ActiveSpan, Collector: a native span implementation.
//
// Basic Usage:
//
//	tracer := pollz.New()
//	defer tracer.Close()
//
//	ctx, span := tracer.StartSpan(ctx, "handle-ping")
//	fut := pollz.Instrument(send, span)
//
//	// The runtime drives fut.Poll(actor, actx, task) until it is ready.
//
// Or capture whatever span is active in the handler's context:
//
//	fut := pollz.InCurrentSpan(ctx, send)
//
// Ambient Context:
//
// Go has no thread-local storage, so the ambient span lives in the
// context.Context carried by Task. Entering a span replaces the task's
// context with one in which the span is current; exiting restores it.
// Anything the inner future starts from task.Context() becomes a child of
// the instrumenting span.
//
// Thread Safety:
//
// Polls of one future are serialized by the owning actor, so Instrumented
// and Task need no locking. Tracer, Collector and ActiveSpan are safe for
// concurrent use.
//
// Resource Cleanup:
//
// Call Instrumented.Drop when discarding a wrapper that may hold live state.
// Call tracer.Close() to shut down background goroutines.
package pollz

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string
