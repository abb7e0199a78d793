package pollz

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "pollz"
)

// Span is the record of a single unit of work in a trace.
// Spans are NOT thread-safe - do not modify from multiple goroutines.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Tags      map[Tag]string `json:"tags,omitempty"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time,omitempty"`
	Duration  time.Duration  `json:"duration"`
	TraceID   string         `json:"trace_id"`
	SpanID    string         `json:"span_id"`
	ParentID  string         `json:"parent_id,omitempty"`
	Name      string         `json:"name"`
}

// ActiveSpan is a live, shared handle to a Span.
// Safe for concurrent use by multiple goroutines.
//
// An ActiveSpan starts with one reference. Retain adds one, Release drops
// one, and the span finishes when the last reference is released.
type ActiveSpan struct {
	span   *Span
	tracer *Tracer
	refs   atomic.Int32
	enters atomic.Uint64
	depth  atomic.Int32
	mu     sync.Mutex // Protects span fields from concurrent writes.
}

// SetTag adds a key-value pair to the span.
// No-op if span is already finished.
func (a *ActiveSpan) SetTag(key Tag, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.span.EndTime.IsZero() {
		return
	}

	if a.span.Tags == nil {
		a.span.Tags = make(map[Tag]string)
	}
	a.span.Tags[key] = value
}

// GetTag retrieves a tag value by key.
func (a *ActiveSpan) GetTag(key Tag) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Tags == nil {
		return "", false
	}
	value, ok := a.span.Tags[key]
	return value, ok
}

// Finish completes the span and sends it to the tracer for collection.
// Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) Finish() {
	a.mu.Lock()
	if !a.span.EndTime.IsZero() {
		a.mu.Unlock()
		return
	}

	a.span.EndTime = a.tracer.clock.Now()
	a.span.Duration = a.span.EndTime.Sub(a.span.StartTime)
	finished := copySpan(a.span)
	a.mu.Unlock()

	a.tracer.collectSpan(finished)
}

// Finished reports whether Finish has run.
func (a *ActiveSpan) Finished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.span.EndTime.IsZero()
}

// Retain adds a reference and returns the same handle.
func (a *ActiveSpan) Retain() *ActiveSpan {
	a.refs.Add(1)
	return a
}

// Release drops a reference. The span finishes when the last one is released.
func (a *ActiveSpan) Release() {
	if a.refs.Add(-1) == 0 {
		a.Finish()
	}
}

// Refs returns the number of live references.
func (a *ActiveSpan) Refs() int32 {
	return a.refs.Load()
}

// Enter implements Handle. The span becomes current in the returned context.
func (a *ActiveSpan) Enter(parent context.Context) context.Context {
	a.enters.Add(1)
	a.depth.Add(1)
	return a.Context(parent)
}

// Exit implements Handle.
func (a *ActiveSpan) Exit() {
	a.depth.Add(-1)
}

// EnterCount returns how many times the span has been entered.
func (a *ActiveSpan) EnterCount() uint64 {
	return a.enters.Load()
}

// Entered returns the number of activations not yet exited.
func (a *ActiveSpan) Entered() int {
	return int(a.depth.Load())
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.TraceID
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.SpanID
}

// Name returns the operation name of this span.
func (a *ActiveSpan) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.Name
}

// Context creates a new context with this span embedded.
// The returned context can be used to start child spans.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, bundleKey, a)
}

// CurrentSpan returns the span current in ctx, or nil.
func CurrentSpan(ctx context.Context) *ActiveSpan {
	if ctx == nil {
		return nil
	}
	if active, ok := ctx.Value(bundleKey).(*ActiveSpan); ok {
		return active
	}
	return nil
}

// GetSpan extracts the record of the current span from a context.
// Returns nil if no span is present.
func GetSpan(ctx context.Context) *Span {
	if active := CurrentSpan(ctx); active != nil {
		return active.span
	}
	return nil
}
