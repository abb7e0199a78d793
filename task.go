package pollz

import "context"

// Task is the suspension handle passed to every poll.
//
// It carries the ambient context.Context for the poll: whatever span is
// current in Context() is the parent of any span started during the poll.
// A Task belongs to one actor and is not safe for concurrent use.
type Task struct {
	ctx  context.Context
	wake func()
}

// NewTask creates a task with the given ambient context and wake callback.
// Either may be nil.
func NewTask(ctx context.Context, wake func()) *Task {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Task{ctx: ctx, wake: wake}
}

// Context returns the ambient context, including any entered spans.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Wake signals the runtime that the task should be polled again.
func (t *Task) Wake() {
	if t.wake != nil {
		t.wake()
	}
}

// Enter makes h the current span of the task until the returned guard exits.
// Entering a span while another is current nests them.
func (t *Task) Enter(h Handle) *Entered {
	h = orNoop(h)
	prev := t.ctx
	t.ctx = h.Enter(prev)
	return &Entered{task: t, prev: prev, handle: h}
}

// Entered is a scoped activation of a span on a task.
// Exit it with defer so it is released on every return path, including panics.
type Entered struct {
	task   *Task
	prev   context.Context
	handle Handle
	exited bool
}

// Exit restores the context that was current before the span was entered.
// Calling Exit more than once has no effect.
func (e *Entered) Exit() {
	if e.exited {
		return
	}
	e.exited = true
	e.task.ctx = e.prev
	e.handle.Exit()
}
