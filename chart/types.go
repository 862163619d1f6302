// Package chart provides the core data model and transition resolution for
// hierarchical statecharts: immutable state definition trees, the runtime
// state-value model, composable guards and actions, and the resolver that
// computes exit/entry sets and ordered side effects for each event.
package chart

import "fmt"

// Kind identifies the variant of a state node in the definition tree.
type Kind string

// State node kinds.
const (
	KindAtomic   Kind = "atomic"
	KindCompound Kind = "compound"
	KindParallel Kind = "parallel"
	KindFinal    Kind = "final"
	KindHistory  Kind = "history"
)

// InitEventType is the pseudo-event used when a machine enters its initial
// configuration on start. It never matches a transition table entry.
const InitEventType = "statechart.init"

// WildcardEventType matches any event type. Transitions registered under it
// are consulted after transitions registered under the explicit event type.
const WildcardEventType = "*"

// Event is the immutable unit of input to a statechart. Type is the dispatch
// tag; Payload is opaque to the core and only inspected by guards and actions.
type Event struct {
	Type    string
	Payload any
}

// NewEvent creates an event with the given type and payload.
func NewEvent(eventType string, payload any) Event {
	return Event{
		Type:    eventType,
		Payload: payload,
	}
}

// DoneInvokeEvent returns the event type delivered to an actor when the
// invocation with the given id completes successfully.
func DoneInvokeEvent(invokeID string) string {
	return "done.invoke." + invokeID
}

// ErrorInvokeEvent returns the event type delivered to an actor when the
// invocation with the given id fails.
func ErrorInvokeEvent(invokeID string) string {
	return "error.invoke." + invokeID
}

// EmitInvokeEvent returns the event type used to wrap values emitted by a
// streaming invocation that are not already events.
func EmitInvokeEvent(invokeID string) string {
	return "emit.invoke." + invokeID
}

// LogLevel classifies log messages produced by actions.
type LogLevel string

// Log levels for action-produced messages.
const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogMessage is a side-channel message produced by a log action. It carries
// no state change; the runtime forwards it to the configured Logger.
type LogMessage struct {
	Level   LogLevel
	Message string
}

// SendRequest is an outgoing message produced by a sendTo action. The runtime
// queues it during the macrostep and dispatches it to the named actor only
// after the macrostep completes.
type SendRequest struct {
	ActorID string
	Event   Event
}

// SpawnRequest is a directive produced by a spawn action. The runtime creates
// an independently addressable child actor from the machine definition; the
// child's lifetime is not bound to any single state.
type SpawnRequest struct {
	ChildID string
	Machine *Machine
}

// StopRequest is a directive produced by a stopChild action.
type StopRequest struct {
	ChildID string
}

func (e Event) String() string {
	if e.Payload == nil {
		return e.Type
	}

	return fmt.Sprintf("%s(%v)", e.Type, e.Payload)
}
