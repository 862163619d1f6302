package future

import (
	"go.uber.org/atomic"

	"github.com/amp-labs/statechart/try"
)

// Promise is the write side of a Future. It can be fulfilled at most once;
// later fulfillment attempts are ignored. All methods are safe for
// concurrent use.
type Promise[T any] struct {
	future      *Future[T]
	canceled    *atomic.Bool
	cancelFuncs []func()
}

func newPromise[T any](f *Future[T]) *Promise[T] {
	return &Promise[T]{
		future:   f,
		canceled: atomic.NewBool(false),
	}
}

// Success fulfills the future with value.
func (p *Promise[T]) Success(value T) {
	p.fulfill(try.Ok(value))
}

// Failure fulfills the future with err.
func (p *Promise[T]) Failure(err error) {
	p.fulfill(try.Fail[T](err))
}

// Complete fulfills the future from a (value, error) pair, treating a non-nil
// error as failure.
func (p *Promise[T]) Complete(value T, err error) {
	if err != nil {
		p.Failure(err)

		return
	}

	p.Success(value)
}

// Cancel marks the promise as canceled and runs the registered cancel
// functions. It does not fulfill the future. Idempotent.
func (p *Promise[T]) Cancel() {
	if p.canceled.CompareAndSwap(false, true) {
		for _, cancel := range p.cancelFuncs {
			cancel()
		}
	}
}

// IsCanceled reports whether Cancel has been called.
func (p *Promise[T]) IsCanceled() bool {
	return p.canceled.Load()
}

// onCancel registers a function to run when the promise is canceled. Must be
// called before the promise escapes to other goroutines.
func (p *Promise[T]) onCancel(cancel func()) {
	p.cancelFuncs = append(p.cancelFuncs, cancel)
}

func (p *Promise[T]) fulfill(result try.Try[T]) {
	p.future.once.Do(func() {
		p.future.result = result

		// The lock makes channel close atomic with callback collection, so a
		// callback registered concurrently is either invoked here or by
		// OnResult's done path, never both.
		p.future.mu.Lock()

		close(p.future.resultReady)

		callbacks := p.future.resultCallbacks
		p.future.resultCallbacks = nil

		p.future.mu.Unlock()

		for _, callback := range callbacks {
			go callback(result)
		}
	})
}
