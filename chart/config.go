package chart

import (
	"context"
	"strings"
	"time"
)

// StateConfig is an immutable node in a machine's compiled definition tree.
// It is constructed once by a Builder, never mutated afterwards, and shared
// by reference across every actor instantiated from the same definition.
type StateConfig struct {
	id         string
	kind       Kind
	parent     *StateConfig
	initial    string
	children   map[string]*StateConfig
	childOrder []string
	on         map[string][]Transition
	eventOrder []string
	entry      []Action
	exit       []Action
	invokes    []InvokeConfig
	delays     []DelayConfig
	output     OutputFunc
	deep       bool
	defaultTo  string
}

// OutputFunc computes the output value of a final state from the context and
// the event that caused the state to be entered.
type OutputFunc func(ctx any, event Event) any

// Transition is a possible event-triggered move. A nil (empty) Target with
// Internal=false is a self-transition: the source leaf is fully exited and
// re-entered. Internal=true suppresses all exit/entry processing; only the
// transition's actions run. The two flags are independent and must not be
// collapsed into one.
type Transition struct {
	Target      string
	Guard       Guard
	Actions     []Action
	Internal    bool
	Description string
}

// To creates an external transition to the target state id, with optional
// transition actions.
func To(target string, actions ...Action) Transition {
	return Transition{
		Target:  target,
		Actions: actions,
	}
}

// ToWhen creates a guarded external transition to the target state id.
func ToWhen(target string, guard Guard, actions ...Action) Transition {
	return Transition{
		Target:  target,
		Guard:   guard,
		Actions: actions,
	}
}

// Self creates a self-transition: the current leaf runs its exit actions,
// then the transition actions, then its entry actions, even though the
// resulting state shape is unchanged.
func Self(actions ...Action) Transition {
	return Transition{
		Actions: actions,
	}
}

// Internal creates an internal transition: no exit or entry processing at
// all, only the given actions run.
func Internal(actions ...Action) Transition {
	return Transition{
		Actions:  actions,
		Internal: true,
	}
}

// InvokeConfig declares a service that must be alive exactly while its owning
// state is active. The runtime starts the service on state entry and tears it
// down unconditionally on state exit.
type InvokeConfig struct {
	// ID identifies the invocation; done/error events carry it.
	ID string
	// Src is the service to supervise.
	Src Service
}

// Service is an asynchronous unit supervised by the actor runtime for the
// lifetime of a state. Start must not block; it returns a cancel function
// that tears the service down. After cancel returns, the service must not
// call any callback again.
type Service interface {
	Start(ctx context.Context, cb ServiceCallback) (cancel func())
}

// ServiceCallback is the completion contract handed to a starting service.
// Exactly how the calls map to events is the runtime's concern: Done becomes
// a done-invoke event, Fail becomes an error-invoke event, Emit wraps each
// streamed value in an emit event (or forwards it unchanged when the value is
// already an Event), and Send delivers a raw event from callback or child
// machine services.
type ServiceCallback struct {
	Emit func(value any)
	Done func(value any)
	Fail func(err error)
	Send func(event Event)
}

// DelayConfig declares a timer bound to its owning state's active lifetime.
// Exactly one of After or Every is set. One-shot timers may carry a Guard
// evaluated against the snapshot context at fire time; a failing guard
// produces no event but still consumes the timer. Periodic timers invoke
// Factory once per tick and are resubmitted.
type DelayConfig struct {
	// ID optionally names the timer for explicit cancellation.
	ID string
	// After is the one-shot delay.
	After time.Duration
	// Event is sent when a one-shot timer fires.
	Event Event
	// Guard optionally gates a one-shot firing against the context.
	Guard Guard
	// Every is the periodic interval.
	Every time.Duration
	// Immediate fires the first periodic tick on arming.
	Immediate bool
	// Factory produces the event for each periodic tick (1-based).
	Factory func(tick int) Event
}

// Machine is a compiled, immutable machine definition: the root of the
// StateConfig tree plus identity and the initial context value.
type Machine struct {
	id             string
	version        int
	root           *StateConfig
	initialContext any
}

// ID returns the machine id.
func (m *Machine) ID() string { return m.id }

// Version returns the definition version recorded for serialized snapshots.
func (m *Machine) Version() int { return m.version }

// Root returns the root state of the definition tree.
func (m *Machine) Root() *StateConfig { return m.root }

// InitialContext returns the context value a fresh actor starts with.
func (m *Machine) InitialContext() any { return m.initialContext }

// WithInitialContext returns a copy of the machine definition carrying a
// different initial context. The definition tree is shared, so the copy is
// cheap; the context value itself must not be shared mutable state.
func (m *Machine) WithInitialContext(ctx any) *Machine {
	clone := *m
	clone.initialContext = ctx

	return &clone
}

// ID returns the state's id, unique within its sibling scope.
func (s *StateConfig) ID() string { return s.id }

// Kind returns the state's variant.
func (s *StateConfig) Kind() Kind { return s.kind }

// Parent returns the parent state, or nil for the root.
func (s *StateConfig) Parent() *StateConfig { return s.parent }

// Initial returns the id of the default child entered on descent.
func (s *StateConfig) Initial() string { return s.initial }

// Child returns the child with the given id, or nil.
func (s *StateConfig) Child(id string) *StateConfig { return s.children[id] }

// Children returns the child states in declaration order.
func (s *StateConfig) Children() []*StateConfig {
	out := make([]*StateConfig, 0, len(s.childOrder))
	for _, id := range s.childOrder {
		out = append(out, s.children[id])
	}

	return out
}

// Transitions returns the transition list for the event type, in declaration
// order. The order is the tie-break order: the first enabled transition wins.
func (s *StateConfig) Transitions(eventType string) []Transition {
	return s.on[eventType]
}

// EventTypes returns the event types the state declares transitions for, in
// declaration order.
func (s *StateConfig) EventTypes() []string {
	return append([]string(nil), s.eventOrder...)
}

// EntryActions returns the ordered entry actions.
func (s *StateConfig) EntryActions() []Action { return s.entry }

// ExitActions returns the ordered exit actions.
func (s *StateConfig) ExitActions() []Action { return s.exit }

// Invocations returns the services bound to this state's active lifetime.
func (s *StateConfig) Invocations() []InvokeConfig { return s.invokes }

// Delays returns the timers bound to this state's active lifetime.
func (s *StateConfig) Delays() []DelayConfig { return s.delays }

// Output returns the final-state output function, or nil.
func (s *StateConfig) Output() OutputFunc { return s.output }

// Deep reports whether a history state records full depth.
func (s *StateConfig) Deep() bool { return s.deep }

// DefaultTarget returns a history state's fallback target id.
func (s *StateConfig) DefaultTarget() string { return s.defaultTo }

// Path returns the ids from the root down to this state.
func (s *StateConfig) Path() []string {
	var ids []string
	for node := s; node != nil; node = node.parent {
		ids = append(ids, node.id)
	}

	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}

	return ids
}

// PathString returns the dotted root-to-state path, used as the key for
// history records and invocation ownership.
func (s *StateConfig) PathString() string {
	return strings.Join(s.Path(), ".")
}

// historyChildren returns the history-kind children, in declaration order.
func (s *StateConfig) historyChildren() []*StateConfig {
	var out []*StateConfig

	for _, id := range s.childOrder {
		if s.children[id].kind == KindHistory {
			out = append(out, s.children[id])
		}
	}

	return out
}

// resolveTarget resolves a transition target id from the perspective of the
// owning state. Dotted paths resolve from the root; bare ids resolve by
// walking up the ancestor chain, preferring at each level the ancestor itself
// and then its children. Returns nil when the id cannot be resolved.
func (s *StateConfig) resolveTarget(target string) *StateConfig {
	if target == "" {
		return nil
	}

	if strings.Contains(target, ".") {
		root := s
		for root.parent != nil {
			root = root.parent
		}

		segments := strings.Split(target, ".")

		node := root
		if segments[0] == root.id {
			segments = segments[1:]
		}

		for _, seg := range segments {
			node = node.children[seg]
			if node == nil {
				return nil
			}
		}

		return node
	}

	for node := s; node != nil; node = node.parent {
		if node.id == target {
			return node
		}

		if child, ok := node.children[target]; ok {
			return child
		}
	}

	return nil
}
