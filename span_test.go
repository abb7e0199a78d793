package pollz

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// newBareSpan builds an ActiveSpan around a fixed record for direct testing.
func newBareSpan(tracer *Tracer) *ActiveSpan {
	active := &ActiveSpan{
		span: &Span{
			SpanID:    "test-span",
			TraceID:   "test-trace",
			Name:      "test",
			StartTime: time.Now(),
		},
		tracer: tracer,
	}
	active.refs.Store(1)
	return active
}

func TestActiveSpanSetTag(t *testing.T) {
	active := newBareSpan(New())

	active.SetTag("key1", "value1")
	active.SetTag("key2", "value2")

	if len(active.span.Tags) != 2 {
		t.Errorf("Expected 2 tags, got %d", len(active.span.Tags))
	}
	if active.span.Tags["key1"] != "value1" {
		t.Errorf("Expected tag key1=value1, got %s", active.span.Tags["key1"])
	}
}

func TestActiveSpanGetTag(t *testing.T) {
	active := newBareSpan(New())
	active.span.Tags = map[string]string{"existing": "value"}

	value, ok := active.GetTag("existing")
	if !ok || value != "value" {
		t.Errorf("Expected existing=value, got %q (found=%v)", value, ok)
	}

	if _, ok := active.GetTag("missing"); ok {
		t.Error("Expected not to find missing tag")
	}

	active.span.Tags = nil
	if _, ok := active.GetTag("any"); ok {
		t.Error("Expected not to find any tag when map is nil")
	}
}

func TestConcurrentSetAndGet(t *testing.T) {
	active := newBareSpan(New())

	var wg sync.WaitGroup
	numGoroutines := 50

	for i := 0; i < numGoroutines; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			active.SetTag(fmt.Sprintf("key%d", n), fmt.Sprintf("value%d", n))
		}(i)
		go func(n int) {
			defer wg.Done()
			// May or may not find the key depending on timing.
			active.GetTag(fmt.Sprintf("key%d", n))
		}(i)
	}

	wg.Wait()

	if len(active.span.Tags) != numGoroutines {
		t.Errorf("Expected %d tags, got %d", numGoroutines, len(active.span.Tags))
	}
}

func TestActiveSpanFinish(t *testing.T) {
	clock := clockz.NewFakeClock()
	tracer := New().WithClock(clock)
	defer tracer.Close()

	_, active := tracer.StartSpan(context.Background(), "finish")
	clock.Advance(5 * time.Millisecond)
	active.Finish()

	if active.span.EndTime.IsZero() {
		t.Error("Expected EndTime to be set after Finish()")
	}
	if active.span.Duration != 5*time.Millisecond {
		t.Errorf("Expected duration 5ms, got %v", active.span.Duration)
	}

	endTime := active.span.EndTime
	clock.Advance(time.Second)
	active.Finish()

	if !active.span.EndTime.Equal(endTime) {
		t.Error("Expected EndTime to remain unchanged on second Finish()")
	}

	// Tags on a finished span are ignored.
	active.SetTag("late", "value")
	if _, ok := active.GetTag("late"); ok {
		t.Error("Expected tag on finished span to be dropped")
	}
}

func TestActiveSpanRefCounting(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	var finished []string
	tracer.OnSpanComplete(func(s Span) {
		finished = append(finished, s.Name)
	})

	_, active := tracer.StartSpan(context.Background(), "shared")
	if active.Refs() != 1 {
		t.Fatalf("Expected new span to have 1 reference, got %d", active.Refs())
	}

	clone := active.Retain()
	if clone != active {
		t.Error("Retain must return the same handle")
	}

	active.Release()
	if active.Finished() {
		t.Error("Span finished while a reference was still held")
	}

	clone.Release()
	if !active.Finished() {
		t.Error("Span should finish when the last reference is released")
	}
	if len(finished) != 1 || finished[0] != "shared" {
		t.Errorf("Expected one completed span, got %v", finished)
	}
}

func TestActiveSpanEnterExit(t *testing.T) {
	active := newBareSpan(New())
	parent := context.Background()

	ctx := active.Enter(parent)
	if CurrentSpan(ctx) != active {
		t.Error("Entered span should be current in returned context")
	}
	if CurrentSpan(parent) != nil {
		t.Error("Entering must not modify the parent context")
	}

	active.Enter(ctx)
	if active.Entered() != 2 {
		t.Errorf("Expected depth 2, got %d", active.Entered())
	}

	active.Exit()
	active.Exit()
	if active.Entered() != 0 {
		t.Errorf("Expected depth 0, got %d", active.Entered())
	}
	if active.EnterCount() != 2 {
		t.Errorf("Expected 2 enters, got %d", active.EnterCount())
	}
}

func TestGetSpanFromContext(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	ctx, active := tracer.StartSpan(context.Background(), "test-operation")
	if GetSpan(ctx) != active.span {
		t.Error("Expected to extract the span from context")
	}
	if CurrentSpan(ctx) != active {
		t.Error("Expected to extract the active span from context")
	}

	if GetSpan(context.Background()) != nil {
		t.Error("Expected nil span from empty context")
	}

	//nolint:staticcheck // nil context is the case under test
	if GetSpan(nil) != nil {
		t.Error("Expected nil span from nil context")
	}

	wrongCtx := context.WithValue(context.Background(), bundleKey, "not-a-span")
	if GetSpan(wrongCtx) != nil {
		t.Error("Expected nil span from context with wrong type")
	}
}

func TestContextKeySafety(t *testing.T) {
	type testKey string
	ctx := context.WithValue(context.Background(), testKey("pollz"), "fake")

	tracer := New()
	defer tracer.Close()
	ctx, active := tracer.StartSpan(ctx, "test-operation")

	if GetSpan(ctx) != active.span {
		t.Error("Context key collision: extracted wrong span")
	}
	if value := ctx.Value(testKey("pollz")); value != "fake" {
		t.Error("String context key was affected by span key")
	}
}
