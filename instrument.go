package pollz

import (
	"context"
	"errors"
)

var (
	// ErrPinned is returned when the inner future is requested for
	// replacement after polling began and it does not implement Unpin.
	ErrPinned = errors.New("pollz: inner future is pinned once polling has begun")

	// ErrReleased is the panic value for polling a wrapper after IntoInner or Drop.
	ErrReleased = errors.New("pollz: instrumented future already released")
)

// Instrumented is an actor future with a span entered around every poll.
//
// It has the same actor, context and output types as the future it wraps
// and returns its results unchanged. Use it through the pointer returned by
// Instrument or InCurrentSpan; it must not be copied.
type Instrumented[A, C, T any] struct {
	_           noCopy
	inner       ActorFuture[A, C, T]
	span        Handle
	polled      bool
	released    bool
	spanDropped bool
}

// Instrument wraps fut so that span is entered for the duration of each poll.
// The wrapper takes ownership of fut and of the caller's reference to span.
// A nil span, including a nil *ActiveSpan, is treated as Noop.
func Instrument[A, C, T any](fut ActorFuture[A, C, T], span Handle) *Instrumented[A, C, T] {
	return &Instrumented[A, C, T]{inner: fut, span: orNoop(span)}
}

// InCurrentSpan wraps fut with the span current in ctx at the time of the
// call. The lookup happens once; later changes to ctx are not observed.
// If no span is current, entering the wrapper's span has no effect.
func InCurrentSpan[A, C, T any](ctx context.Context, fut ActorFuture[A, C, T]) *Instrumented[A, C, T] {
	span := CurrentHandle(ctx)
	if active, ok := span.(*ActiveSpan); ok {
		span = active.Retain()
	}
	return Instrument(fut, span)
}

// Poll enters the span, polls the inner future and exits the span before
// returning the inner result.
//
// Once the inner future is ready the wrapper gives back its span reference,
// so a runtime that discards completed futures without calling Drop still
// finishes the span. Span keeps returning the handle afterwards.
func (f *Instrumented[A, C, T]) Poll(actor A, actx C, task *Task) Poll[T] {
	if f.released {
		panic(ErrReleased)
	}
	res := f.pollEntered(actor, actx, task)
	if res.IsReady() {
		f.releaseSpan()
	}
	return res
}

func (f *Instrumented[A, C, T]) pollEntered(actor A, actx C, task *Task) Poll[T] {
	entered := task.Enter(f.span)
	defer entered.Exit()

	f.polled = true
	return f.inner.Poll(actor, actx, task)
}

// Span returns the span this future is instrumented with.
func (f *Instrumented[A, C, T]) Span() Handle {
	return f.span
}

// SpanMut returns a pointer to the stored span so it can be replaced before
// the next poll. A replacement handle is owned by the wrapper only if it is
// set before the wrapper completes.
func (f *Instrumented[A, C, T]) SpanMut() *Handle {
	return &f.span
}

// Inner returns the wrapped future.
func (f *Instrumented[A, C, T]) Inner() ActorFuture[A, C, T] {
	return f.inner
}

// InnerMut returns a pointer to the stored future. After the first poll it
// fails with ErrPinned unless the future implements Unpin.
func (f *Instrumented[A, C, T]) InnerMut() (*ActorFuture[A, C, T], error) {
	if err := f.checkMovable(); err != nil {
		return nil, err
	}
	return &f.inner, nil
}

// IntoInner releases the span and returns the wrapped future. After the
// first poll it fails with ErrPinned unless the future implements Unpin.
// On success the wrapper must not be polled again.
func (f *Instrumented[A, C, T]) IntoInner() (ActorFuture[A, C, T], error) {
	if err := f.checkMovable(); err != nil {
		return nil, err
	}
	inner := f.inner
	f.releaseSpan()
	f.inner = nil
	f.released = true
	return inner, nil
}

// Drop discards the wrapper without polling it further. The inner future's
// Drop runs if it has one, and the wrapper's span reference is released if
// completion has not already released it. Calling Drop more than once has no effect.
func (f *Instrumented[A, C, T]) Drop() {
	if f.released {
		return
	}
	f.released = true
	if d, ok := f.inner.(Dropper); ok {
		d.Drop()
	}
	f.inner = nil
	f.releaseSpan()
}

// Polled reports whether the wrapper has been polled at least once.
func (f *Instrumented[A, C, T]) Polled() bool {
	return f.polled
}

func (f *Instrumented[A, C, T]) checkMovable() error {
	if f.released {
		return ErrReleased
	}
	if !f.polled {
		return nil
	}
	if _, ok := f.inner.(Unpin); ok {
		return nil
	}
	return ErrPinned
}

// releaseSpan gives back the wrapper's span reference at most once.
func (f *Instrumented[A, C, T]) releaseSpan() {
	if f.spanDropped {
		return
	}
	f.spanDropped = true
	if r, ok := orNoop(f.span).(Releaser); ok {
		r.Release()
	}
}

// noCopy may be embedded into structs which must not be copied after first
// use. See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
