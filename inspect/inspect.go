// Package inspect provides a lightweight observation bus for statechart
// actors. Observers receive one Observation per macrostep that changed an
// actor's snapshot, which is enough to build loggers, debuggers and test
// probes without touching the runtime.
package inspect

import (
	"sync"
	"time"

	"github.com/amp-labs/statechart/chart"
)

// Observation describes one completed macrostep.
type Observation struct {
	// ActorID identifies the actor that processed the event.
	ActorID string
	// Machine is the machine definition id.
	Machine string
	// Event is the external event that opened the macrostep.
	Event chart.Event
	// Prev is the snapshot before the macrostep.
	Prev chart.Snapshot
	// Next is the snapshot after the macrostep completed.
	Next chart.Snapshot
	// At is the clock reading when the macrostep finished.
	At time.Time
}

// Observer consumes observations. Implementations must not block: they are
// called synchronously on the sending actor's goroutine.
type Observer interface {
	Observe(obs Observation)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(obs Observation)

func (f ObserverFunc) Observe(obs Observation) {
	f(obs)
}

// Registry fans observations out to registered observers. Registration order
// is preserved for delivery. All methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	observers map[int]Observer
	order     []int
	nextID    int
}

// NewRegistry creates an empty observation registry.
func NewRegistry() *Registry {
	return &Registry{observers: make(map[int]Observer)}
}

// Register adds an observer and returns a function that removes it.
func (r *Registry) Register(observer Observer) func() {
	r.mu.Lock()

	id := r.nextID
	r.nextID++
	r.observers[id] = observer
	r.order = append(r.order, id)

	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		delete(r.observers, id)

		for i, existing := range r.order {
			if existing == id {
				r.order = append(r.order[:i], r.order[i+1:]...)

				break
			}
		}
	}
}

// Broadcast delivers an observation to every registered observer in
// registration order.
func (r *Registry) Broadcast(obs Observation) {
	r.mu.RLock()

	observers := make([]Observer, 0, len(r.order))
	for _, id := range r.order {
		observers = append(observers, r.observers[id])
	}

	r.mu.RUnlock()

	for _, observer := range observers {
		observer.Observe(obs)
	}
}

// Len returns the number of registered observers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.observers)
}

// Recorder is an Observer that retains every observation, for tests and
// interactive debugging.
type Recorder struct {
	mu   sync.Mutex
	seen []Observation
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Observe(obs Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen = append(r.seen, obs)
}

// Observations returns a copy of everything recorded so far.
func (r *Recorder) Observations() []Observation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Observation, len(r.seen))
	copy(out, r.seen)

	return out
}
