package chart

import "reflect"

// Snapshot is the full observable state of an actor at one point in time.
// Snapshots are produced by the resolver and replaced atomically by the actor
// runtime at the end of each microstep; a no-op resolution returns a snapshot
// equal to its input so change detection stays cheap.
type Snapshot struct {
	// Value is the active state shape.
	Value StateValue
	// Context is the caller-supplied data payload. It is owned by exactly
	// one snapshot at a time; holders of an older snapshot must treat its
	// context as a frozen, unrelated copy.
	Context any
	// Done is true once a final state has been reached. No transition ever
	// applies to a done snapshot.
	Done bool
	// Output is the final state's configured output, populated when Done
	// becomes true.
	Output any
	// LastEvent is the event that produced this snapshot.
	LastEvent Event
}

// Equal reports whether two snapshots are interchangeable: structural value
// equality, deep context equality and identical done/output.
func (s Snapshot) Equal(other Snapshot) bool {
	if s.Done != other.Done {
		return false
	}

	if (s.Value == nil) != (other.Value == nil) {
		return false
	}

	if s.Value != nil && !s.Value.Equal(other.Value) {
		return false
	}

	return reflect.DeepEqual(s.Context, other.Context) &&
		reflect.DeepEqual(s.Output, other.Output)
}

// Matches reports whether the dotted state path is active in the snapshot.
func (s Snapshot) Matches(path string) bool {
	return ValueMatches(s.Value, path)
}
