package actor

import (
	"errors"
	"sync"

	"github.com/amp-labs/statechart/chart"
)

// ErrUnknownActor is returned when a registry lookup finds no actor.
var ErrUnknownActor = errors.New("unknown actor")

// Registry is the address book for a set of cooperating actors. sendTo
// actions resolve target ids through it; spawned children register
// themselves on start and unregister on stop.
type Registry struct {
	mu     sync.RWMutex
	actors map[string]*Actor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actors: make(map[string]*Actor)}
}

// Lookup returns the actor registered under id, or nil.
func (r *Registry) Lookup(id string) *Actor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.actors[id]
}

// Send delivers an event to the actor registered under id. Unknown ids
// return ErrUnknownActor.
func (r *Registry) Send(id string, event chart.Event) error {
	target := r.Lookup(id)
	if target == nil {
		return ErrUnknownActor
	}

	return target.Send(event)
}

// IDs returns the ids of all registered actors.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.actors))
	for id := range r.actors {
		ids = append(ids, id)
	}

	return ids
}

func (r *Registry) register(a *Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actors[a.id] = a
}

func (r *Registry) unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.actors, id)
}
