package chart

import (
	"errors"
	"fmt"
)

// Definition errors, detected when a Builder compiles a machine. They are
// fatal: a malformed machine is never constructed and never silently
// repaired.
var (
	// ErrMachineIDRequired indicates that a machine id is required.
	ErrMachineIDRequired = errors.New("machine id is required")
	// ErrInitialRequired indicates that a compound state with children is
	// missing its initial child id.
	ErrInitialRequired = errors.New("compound state requires an initial child")
	// ErrInitialNotFound indicates that a declared initial child id does not
	// exist among the state's children.
	ErrInitialNotFound = errors.New("initial child does not exist")
	// ErrDuplicateStateID indicates two siblings with the same id.
	ErrDuplicateStateID = errors.New("duplicate state id")
	// ErrTargetNotFound indicates an unresolvable transition target id.
	ErrTargetNotFound = errors.New("transition target does not resolve")
	// ErrHistoryDefaultNotFound indicates an unresolvable history default
	// target.
	ErrHistoryDefaultNotFound = errors.New("history default target does not resolve")
	// ErrHistoryParent indicates a history state declared outside a compound
	// or parallel parent.
	ErrHistoryParent = errors.New("history state requires a compound or parallel parent")
	// ErrDuplicateInvokeID indicates two invocations with the same id on one
	// state.
	ErrDuplicateInvokeID = errors.New("duplicate invocation id")
	// ErrInvokeSrcRequired indicates an invocation without a service.
	ErrInvokeSrcRequired = errors.New("invocation requires a service")
	// ErrDelayShape indicates a delay config with neither or both of
	// After/Every set, or a periodic delay without an event factory.
	ErrDelayShape = errors.New("delay must set exactly one of after or every")
	// ErrFinalChildren indicates a final state with children.
	ErrFinalChildren = errors.New("final state cannot have children")
	// ErrParallelRegions indicates a parallel state with fewer than two
	// regions.
	ErrParallelRegions = errors.New("parallel state requires at least two regions")
)

// Resolution errors.
var (
	// ErrValueShape indicates a StateValue that does not correspond to a
	// path through the definition tree.
	ErrValueShape = errors.New("state value does not match definition tree")
)

// DefinitionError wraps a definition error with the dotted path of the state
// it was detected on.
type DefinitionError struct {
	StatePath string
	Err       error
}

func (e *DefinitionError) Error() string {
	if e.StatePath == "" {
		return e.Err.Error()
	}

	return fmt.Sprintf("state %s: %v", e.StatePath, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

// newDefinitionError wraps err with state context, preserving nil.
func newDefinitionError(statePath string, err error) error {
	if err == nil {
		return nil
	}

	return &DefinitionError{
		StatePath: statePath,
		Err:       err,
	}
}

// ResolveError wraps a resolution error with the event being processed.
type ResolveError struct {
	EventType string
	Err       error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolving %s: %v", e.EventType, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}
