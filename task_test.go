package pollz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskEnterExit(t *testing.T) {
	tracer := newTestTracer(t)
	_, span := tracer.StartSpan(context.Background(), "enter")

	base := context.Background()
	task := NewTask(base, nil)

	entered := task.Enter(span)
	assert.Same(t, span, CurrentSpan(task.Context()))
	assert.Equal(t, 1, span.Entered())

	entered.Exit()
	assert.Equal(t, base, task.Context())
	assert.Equal(t, 0, span.Entered())

	entered.Exit()
	assert.Equal(t, 0, span.Entered(), "Exit must be idempotent")
}

func TestTaskNestedEnter(t *testing.T) {
	tracer := newTestTracer(t)
	outerCtx, outer := tracer.StartSpan(context.Background(), "outer")
	_, inner := tracer.StartSpan(outerCtx, "inner")

	task := NewTask(context.Background(), nil)

	first := task.Enter(outer)
	second := task.Enter(inner)
	assert.Same(t, inner, CurrentSpan(task.Context()))

	second.Exit()
	assert.Same(t, outer, CurrentSpan(task.Context()))

	first.Exit()
	assert.Nil(t, CurrentSpan(task.Context()))
}

func TestTaskEnterNilHandle(t *testing.T) {
	base := context.WithValue(context.Background(), bundleKeyType("other"), 1)
	task := NewTask(base, nil)

	entered := task.Enter(nil)
	assert.Equal(t, base, task.Context())
	entered.Exit()
	assert.Equal(t, base, task.Context())
}

func TestTaskEnterNilActiveSpan(t *testing.T) {
	base := context.Background()
	task := NewTask(base, nil)

	var span *ActiveSpan
	var entered *Entered
	require.NotPanics(t, func() { entered = task.Enter(span) })
	assert.Equal(t, base, task.Context())
	assert.NotPanics(t, entered.Exit)
}

func TestTaskDefaults(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	task := NewTask(nil, nil)
	require.NotNil(t, task.Context())
	assert.NotPanics(t, task.Wake)
}

func TestTaskWake(t *testing.T) {
	var wakes int
	task := NewTask(context.Background(), func() { wakes++ })

	fut := Steps[*counter, *mailbox](2, "ok")
	_, n := drive(t, fut, task)

	assert.Equal(t, 3, n)
	assert.Equal(t, 2, wakes)
}
