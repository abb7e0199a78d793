package pollz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPollValues(t *testing.T) {
	ready := Ready("v")
	v, ok := ready.Value()
	assert.True(t, ok)
	assert.True(t, ready.IsReady())
	assert.False(t, ready.IsPending())
	assert.Equal(t, "v", v)

	pending := Pending[int]()
	n, ok := pending.Value()
	assert.False(t, ok)
	assert.True(t, pending.IsPending())
	assert.Zero(t, n)
}

func TestReadyFuture(t *testing.T) {
	fut := ReadyFuture[*counter, *mailbox]("now")
	task := newTask()

	v, ok := fut.Poll(&counter{}, &mailbox{}, task).Value()
	assert.True(t, ok)
	assert.Equal(t, "now", v)

	assert.Panics(t, func() {
		fut.Poll(&counter{}, &mailbox{}, task)
	}, "polling past completion is a programmer error")
}

func TestStepsFuture(t *testing.T) {
	actor, actx := &counter{}, &mailbox{}
	task := newTask()
	fut := Steps[*counter, *mailbox](2, 7)

	assert.True(t, fut.Poll(actor, actx, task).IsPending())
	assert.True(t, fut.Poll(actor, actx, task).IsPending())

	v, ok := fut.Poll(actor, actx, task).Value()
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	assert.Panics(t, func() { fut.Poll(actor, actx, task) })
}

func TestFutureFuncMutatesActor(t *testing.T) {
	fut := FutureFunc[*counter, *mailbox, int](func(actor *counter, actx *mailbox, _ *Task) Poll[int] {
		actor.polls++
		actx.wakes++
		return Ready(actor.polls)
	})

	actor, actx := &counter{polls: 4}, &mailbox{}
	v, _ := fut.Poll(actor, actx, newTask()).Value()

	assert.Equal(t, 5, v)
	assert.Equal(t, 1, actx.wakes)
}
