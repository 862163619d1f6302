// Package channels provides small channel utilities used by the actor
// runtime and the invocation subsystem: safe closing, unbounded buffering
// for streaming services, and counted channel pairs.
package channels

import "sync"

// CloseIgnorePanic closes a channel, suppressing the panic raised when the
// channel has already been closed. Nil channels are ignored.
func CloseIgnorePanic[T any](ch chan<- T) {
	if ch == nil {
		return
	}

	defer func() {
		// Recover if the channel was already closed.
		_ = recover()
	}()

	close(ch)
}

// Unbounded creates a channel pair with unbounded buffering between them.
// Values written to the send side are delivered to the receive side in order
// without ever blocking the sender. Closing the send side drains the queue
// and then closes the receive side.
//
// The internal queue grows without limit when the sender outpaces the
// receiver; callers owning long-lived streams should monitor consumption.
func Unbounded[A any]() (chan<- A, <-chan A) {
	in := make(chan A)
	out := make(chan A)

	go func() {
		var queue []A

		// outOrNil disables the send case while the queue is empty.
		outOrNil := func() chan A {
			if len(queue) == 0 {
				return nil
			}

			return out
		}

		head := func() A {
			if len(queue) == 0 {
				var zero A

				return zero
			}

			return queue[0]
		}

		for in != nil || len(queue) > 0 {
			select {
			case v, ok := <-in:
				if !ok {
					in = nil
				} else {
					queue = append(queue, v)
				}
			case outOrNil() <- head():
				queue = queue[1:]
			}
		}

		close(out)
	}()

	return in, out
}

// Counted creates a buffered channel together with a function reporting how
// many values are currently queued. Depth 0 yields an unbuffered channel.
func Counted[T any](depth int) (chan<- T, <-chan T, func() int) {
	ch := make(chan T, depth)

	var mu sync.Mutex

	count := 0

	in := make(chan T)
	go func() {
		for v := range in {
			mu.Lock()
			count++
			mu.Unlock()

			ch <- v
		}

		close(ch)
	}()

	out := make(chan T)
	go func() {
		for v := range ch {
			mu.Lock()
			count--
			mu.Unlock()

			out <- v
		}

		close(out)
	}()

	getCount := func() int {
		mu.Lock()
		defer mu.Unlock()

		return count
	}

	return in, out, getCount
}
