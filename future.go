package pollz

// Poll is the outcome of one poll step: either a final value or pending.
type Poll[T any] struct {
	value T
	ready bool
}

// Ready returns a completed poll carrying v.
func Ready[T any](v T) Poll[T] {
	return Poll[T]{value: v, ready: true}
}

// Pending returns a poll that made no further progress.
func Pending[T any]() Poll[T] {
	return Poll[T]{}
}

// IsReady reports whether the poll produced a final value.
func (p Poll[T]) IsReady() bool { return p.ready }

// IsPending reports whether the future must be polled again.
func (p Poll[T]) IsPending() bool { return !p.ready }

// Value returns the final value and true, or the zero value and false if pending.
func (p Poll[T]) Value() (T, bool) {
	return p.value, p.ready
}

// ActorFuture is a computation advanced by an actor runtime.
//
// Each call to Poll has exclusive access to actor and actx for its duration.
// Poll must not be called again after it returned a ready result.
// A future that cannot progress returns Pending and arranges for task.Wake
// to be called when it can.
type ActorFuture[A, C, T any] interface {
	Poll(actor A, actx C, task *Task) Poll[T]
}

// Dropper is implemented by futures that hold live state which must be
// released when the future is discarded. Runtimes call Drop on any future
// they discard, finished or not; Drop must tolerate being called after the
// future completed.
type Dropper interface {
	Drop()
}

// Unpin is implemented by futures that may be replaced or moved after
// polling has begun. Futures without it are treated as address-sensitive.
type Unpin interface {
	Unpin()
}

// FutureFunc adapts a function to the ActorFuture contract.
type FutureFunc[A, C, T any] func(actor A, actx C, task *Task) Poll[T]

// Poll calls f.
func (f FutureFunc[A, C, T]) Poll(actor A, actx C, task *Task) Poll[T] {
	return f(actor, actx, task)
}

// ReadyFuture returns a future that completes with v on its first poll.
func ReadyFuture[A, C, T any](v T) ActorFuture[A, C, T] {
	return &readyFuture[A, C, T]{value: v}
}

type readyFuture[A, C, T any] struct {
	value T
	taken bool
}

func (f *readyFuture[A, C, T]) Poll(_ A, _ C, _ *Task) Poll[T] {
	if f.taken {
		panic("pollz: ready future polled after completion")
	}
	f.taken = true
	return Ready(f.value)
}

func (*readyFuture[A, C, T]) Unpin() {}

// Steps returns a future that reports pending on its first n polls, waking
// the task each time, and completes with v on poll n+1.
func Steps[A, C, T any](n int, v T) ActorFuture[A, C, T] {
	return &stepFuture[A, C, T]{remaining: n, value: v}
}

type stepFuture[A, C, T any] struct {
	value     T
	remaining int
	done      bool
}

func (f *stepFuture[A, C, T]) Poll(_ A, _ C, task *Task) Poll[T] {
	if f.done {
		panic("pollz: step future polled after completion")
	}
	if f.remaining > 0 {
		f.remaining--
		task.Wake()
		return Pending[T]()
	}
	f.done = true
	return Ready(f.value)
}

func (*stepFuture[A, C, T]) Unpin() {}
