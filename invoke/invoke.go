// Package invoke provides service constructors for statechart invocations.
// A service is started when its owning state is entered and canceled when
// that state exits; results flow back to the machine as done.invoke.*,
// error.invoke.* and emitted events.
package invoke

import (
	"context"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"

	"github.com/amp-labs/statechart/channels"
	"github.com/amp-labs/statechart/chart"
	"github.com/amp-labs/statechart/future"
	"github.com/amp-labs/statechart/try"
)

const defaultWorkerCount = 32

var (
	poolOnce sync.Once
	pool     pond.Pool
)

// workerPool lazily initializes the shared invocation worker pool.
func workerPool() pond.Pool { //nolint:ireturn
	poolOnce.Do(func() {
		pool = pond.NewPool(defaultWorkerCount)
	})

	return pool
}

// ServiceFunc adapts a plain function into a chart.Service.
type ServiceFunc func(ctx context.Context, cb chart.ServiceCallback) func()

func (f ServiceFunc) Start(ctx context.Context, cb chart.ServiceCallback) func() {
	return f(ctx, cb)
}

// Task creates a service that runs fn once on the worker pool. A nil error
// completes the invocation with done.invoke carrying the returned value; a
// non-nil error produces error.invoke.
func Task(fn func(ctx context.Context) (any, error)) chart.Service { //nolint:ireturn
	return ServiceFunc(func(ctx context.Context, cb chart.ServiceCallback) func() {
		runCtx, cancel := context.WithCancel(ctx)

		f, p := future.New[any]()

		err := workerPool().Go(func() {
			if runCtx.Err() != nil {
				p.Failure(runCtx.Err())

				return
			}

			p.Complete(fn(runCtx))
		})
		if err != nil {
			cancel()
			cb.Fail(fmt.Errorf("submitting invocation task: %w", err))

			return func() {}
		}

		f.OnResult(func(result try.Try[any]) {
			if runCtx.Err() != nil {
				return
			}

			if result.IsFailure() {
				cb.Fail(result.Error)

				return
			}

			cb.Done(result.Value)
		})

		return cancel
	})
}

// Stream creates a service that runs fn on the worker pool, forwarding every
// value passed to emit as an emitted event before completing. Emission never
// blocks fn; values are buffered and delivered in order.
func Stream(fn func(ctx context.Context, emit func(any)) error) chart.Service { //nolint:ireturn
	return ServiceFunc(func(ctx context.Context, cb chart.ServiceCallback) func() {
		runCtx, cancel := context.WithCancel(ctx)

		in, out := channels.Unbounded[any]()

		resultCh := make(chan error, 1)

		err := workerPool().Go(func() {
			defer channels.CloseIgnorePanic(in)

			resultCh <- fn(runCtx, func(value any) {
				select {
				case in <- value:
				case <-runCtx.Done():
				}
			})
		})
		if err != nil {
			cancel()
			cb.Fail(fmt.Errorf("submitting invocation stream: %w", err))

			return func() {}
		}

		// Deliver buffered emissions in order, then the final result. The
		// drain goroutine exits once fn returns and the buffer empties.
		go func() {
			for value := range out {
				if runCtx.Err() != nil {
					continue
				}

				cb.Emit(value)
			}

			if runCtx.Err() != nil {
				return
			}

			if err := <-resultCh; err != nil {
				cb.Fail(err)

				return
			}

			cb.Done(nil)
		}()

		return cancel
	})
}

// FromChannel creates a service that emits every value received from ch and
// completes when ch closes. The channel is owned by the caller; canceling the
// invocation stops delivery but does not close ch.
func FromChannel[T any](ch <-chan T) chart.Service { //nolint:ireturn
	return ServiceFunc(func(ctx context.Context, cb chart.ServiceCallback) func() {
		runCtx, cancel := context.WithCancel(ctx)

		go func() {
			for {
				select {
				case value, ok := <-ch:
					if !ok {
						cb.Done(nil)

						return
					}

					cb.Emit(value)
				case <-runCtx.Done():
					return
				}
			}
		}()

		return cancel
	})
}

// Callback creates a service from a start function that drives the callback
// surface directly. start must return quickly; long work belongs in its own
// goroutine. The returned stop function is called on cancellation.
func Callback(start func(ctx context.Context, cb chart.ServiceCallback) func()) chart.Service { //nolint:ireturn
	return ServiceFunc(start)
}
