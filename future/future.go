// Package future implements a small promise/future pair used by the
// invocation subsystem to run services off the actor goroutine and deliver
// their results back as events.
package future

import (
	"context"
	"sync"

	"github.com/amp-labs/statechart/try"
)

// Future is the read side of an asynchronous computation. It is fulfilled
// exactly once through its Promise; all waiters observe the same result.
type Future[T any] struct {
	once        sync.Once
	mu          sync.Mutex
	resultReady chan struct{}
	result      try.Try[T]

	resultCallbacks  []func(try.Try[T])
	successCallbacks []func(T)
	errorCallbacks   []func(error)
}

// New creates an unfulfilled future and its promise.
func New[T any]() (*Future[T], *Promise[T]) {
	f := &Future[T]{resultReady: make(chan struct{})}
	p := newPromise(f)

	return f, p
}

// Successful creates a future that is already fulfilled with value.
func Successful[T any](value T) *Future[T] {
	f, p := New[T]()
	p.Success(value)

	return f
}

// Failed creates a future that is already fulfilled with err.
func Failed[T any](err error) *Future[T] {
	f, p := New[T]()
	p.Failure(err)

	return f
}

// Go runs fn in a new goroutine and returns a future fulfilled with its
// result. A panic in fn is not recovered.
func Go[T any](fn func() (T, error)) *Future[T] {
	f, p := New[T]()

	go func() {
		p.Complete(fn())
	}()

	return f
}

// GoContext runs fn in a new goroutine, passing it a context that is
// canceled when the returned future's promise is canceled.
func GoContext[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (*Future[T], func()) {
	runCtx, cancel := context.WithCancel(ctx)

	f, p := New[T]()
	p.onCancel(cancel)

	go func() {
		defer cancel()

		p.Complete(fn(runCtx))
	}()

	return f, p.Cancel
}

// IsDone reports whether the future has been fulfilled.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.resultReady:
		return true
	default:
		return false
	}
}

// Ready returns a channel closed when the future is fulfilled.
func (f *Future[T]) Ready() <-chan struct{} {
	return f.resultReady
}

// Await blocks until the future is fulfilled or ctx is done. When ctx wins,
// the future itself remains unfulfilled and ctx.Err is returned.
func (f *Future[T]) Await(ctx context.Context) (T, error) { //nolint:ireturn
	select {
	case <-f.resultReady:
		return f.result.Get()
	case <-ctx.Done():
		var zero T

		return zero, ctx.Err()
	}
}

// Result returns the fulfillment result. It must only be called after the
// future is done; before that it returns the zero Try.
func (f *Future[T]) Result() try.Try[T] {
	return f.result
}

// OnResult registers a callback invoked with the result once the future is
// fulfilled. When the future is already done the callback runs immediately in
// a new goroutine. Callbacks run at most once.
func (f *Future[T]) OnResult(callback func(try.Try[T])) {
	f.mu.Lock()

	if !f.IsDone() {
		f.resultCallbacks = append(f.resultCallbacks, callback)
		f.mu.Unlock()

		return
	}

	f.mu.Unlock()

	go callback(f.result)
}

// OnSuccess registers a callback invoked with the value when the future is
// fulfilled successfully.
func (f *Future[T]) OnSuccess(callback func(T)) {
	f.OnResult(func(result try.Try[T]) {
		if result.IsSuccess() {
			callback(result.Value)
		}
	})
}

// OnError registers a callback invoked with the error when the future is
// fulfilled with a failure.
func (f *Future[T]) OnError(callback func(error)) {
	f.OnResult(func(result try.Try[T]) {
		if result.IsFailure() {
			callback(result.Error)
		}
	})
}
