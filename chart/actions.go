package chart

// Action is a pure function executed during transition processing. It
// receives the current context and the triggering event and returns a new
// context plus queued side effects. Actions never fail by contract; a panic
// in an action propagates to the caller of Send/Resolve.
type Action func(ctx any, event Event) ActionResult

// ActionResult carries the context produced by an action together with the
// side effects it queued. Raised events are reprocessed before any externally
// sent event; sends, spawns and stops are dispatched after the macrostep.
type ActionResult struct {
	Context any
	Raised  []Event
	Logs    []LogMessage
	Sends   []SendRequest
	Spawns  []SpawnRequest
	Stops   []StopRequest
}

// merge appends the side effects of other onto r, adopting other's context.
func (r *ActionResult) merge(other ActionResult) {
	r.Context = other.Context
	r.Raised = append(r.Raised, other.Raised...)
	r.Logs = append(r.Logs, other.Logs...)
	r.Sends = append(r.Sends, other.Sends...)
	r.Spawns = append(r.Spawns, other.Spawns...)
	r.Stops = append(r.Stops, other.Stops...)
}

// Assign returns an action that replaces the context, producing no other side
// effects. The updater receives the current context and the event and returns
// the new context value; it must not mutate the old one in place.
func Assign(update func(ctx any, event Event) any) Action {
	return func(ctx any, event Event) ActionResult {
		return ActionResult{Context: update(ctx, event)}
	}
}

// Raise returns an action that emits an event back into the owning actor's
// queue. Raised events are fully processed before the next external event.
func Raise(event Event) Action {
	return func(ctx any, _ Event) ActionResult {
		return ActionResult{
			Context: ctx,
			Raised:  []Event{event},
		}
	}
}

// RaiseFrom returns an action whose raised event is computed from the context
// and the triggering event.
func RaiseFrom(factory func(ctx any, event Event) Event) Action {
	return func(ctx any, event Event) ActionResult {
		return ActionResult{
			Context: ctx,
			Raised:  []Event{factory(ctx, event)},
		}
	}
}

// Log returns an action that emits a fixed side-channel message.
func Log(level LogLevel, message string) Action {
	return func(ctx any, _ Event) ActionResult {
		return ActionResult{
			Context: ctx,
			Logs:    []LogMessage{{Level: level, Message: message}},
		}
	}
}

// LogMessageFrom returns an action whose message is computed from the context
// and the triggering event.
func LogMessageFrom(level LogLevel, format func(ctx any, event Event) string) Action {
	return func(ctx any, event Event) ActionResult {
		return ActionResult{
			Context: ctx,
			Logs:    []LogMessage{{Level: level, Message: format(ctx, event)}},
		}
	}
}

// SendTo returns an action that queues an outgoing message to a named actor.
// The message is dispatched only after the whole macrostep completes.
func SendTo(actorID string, event Event) Action {
	return func(ctx any, _ Event) ActionResult {
		return ActionResult{
			Context: ctx,
			Sends:   []SendRequest{{ActorID: actorID, Event: event}},
		}
	}
}

// SendToFrom returns an action whose outgoing message is computed from the
// context and the triggering event.
func SendToFrom(factory func(ctx any, event Event) SendRequest) Action {
	return func(ctx any, event Event) ActionResult {
		return ActionResult{
			Context: ctx,
			Sends:   []SendRequest{factory(ctx, event)},
		}
	}
}

// Pure returns an action that runs an arbitrary side effect and leaves the
// context unchanged.
func Pure(effect func(ctx any, event Event)) Action {
	return func(ctx any, event Event) ActionResult {
		effect(ctx, event)

		return ActionResult{Context: ctx}
	}
}

// Sequence returns an action that chains the given actions, threading the
// context through each and concatenating all side-effect lists.
func Sequence(actions ...Action) Action {
	return func(ctx any, event Event) ActionResult {
		result := ActionResult{Context: ctx}

		for _, action := range actions {
			result.merge(action(result.Context, event))
		}

		return result
	}
}

// When returns an action that executes the inner action only when the guard
// passes, and is the identity otherwise.
func When(guard Guard, action Action) Action {
	return func(ctx any, event Event) ActionResult {
		if !guard(ctx, event) {
			return ActionResult{Context: ctx}
		}

		return action(ctx, event)
	}
}

// Spawn returns an action that creates an independently addressable child
// actor from the machine definition. The child id may be computed from the
// context and event at spawn time.
func Spawn(childID func(ctx any, event Event) string, machine *Machine) Action {
	return func(ctx any, event Event) ActionResult {
		return ActionResult{
			Context: ctx,
			Spawns:  []SpawnRequest{{ChildID: childID(ctx, event), Machine: machine}},
		}
	}
}

// SpawnStatic returns a spawn action with a fixed child id.
func SpawnStatic(childID string, machine *Machine) Action {
	return Spawn(func(any, Event) string { return childID }, machine)
}

// StopChild returns an action that stops a previously spawned child actor.
func StopChild(childID string) Action {
	return func(ctx any, _ Event) ActionResult {
		return ActionResult{
			Context: ctx,
			Stops:   []StopRequest{{ChildID: childID}},
		}
	}
}
