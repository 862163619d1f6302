package chart

import (
	"sort"
	"strings"
)

// StateValue describes the currently active state shape of a machine: a leaf,
// a compound state with one active child, or a parallel state whose named
// regions are all simultaneously active.
//
// The variant set is closed. A StateValue always corresponds to a real path
// through the StateConfig tree at the same ids, and equality is structural.
type StateValue interface {
	// ID returns the state id at the root of this value.
	ID() string
	// Equal reports whether two values have identical shape, recursively.
	Equal(other StateValue) bool
	// String renders the value as a dotted path; parallel regions render as
	// id{region:child,region:child} with regions in sorted order.
	String() string

	sealed()
}

// AtomicValue is a leaf state.
type AtomicValue struct {
	StateID string
}

// CompoundValue is a state with exactly one active child.
type CompoundValue struct {
	StateID string
	Child   StateValue
}

// ParallelValue is a state whose named regions are all active. Region names
// are the ids of the parallel node's children.
type ParallelValue struct {
	StateID string
	Regions map[string]StateValue
}

// Atomic creates a leaf state value.
func Atomic(id string) AtomicValue {
	return AtomicValue{StateID: id}
}

// Compound creates a compound state value with one active child.
func Compound(id string, child StateValue) CompoundValue {
	return CompoundValue{
		StateID: id,
		Child:   child,
	}
}

// Parallel creates a parallel state value from its active regions.
func Parallel(id string, regions map[string]StateValue) ParallelValue {
	return ParallelValue{
		StateID: id,
		Regions: regions,
	}
}

func (v AtomicValue) ID() string   { return v.StateID }
func (v CompoundValue) ID() string { return v.StateID }
func (v ParallelValue) ID() string { return v.StateID }

func (v AtomicValue) sealed()   {}
func (v CompoundValue) sealed() {}
func (v ParallelValue) sealed() {}

// Equal reports structural equality with another value.
func (v AtomicValue) Equal(other StateValue) bool {
	o, ok := other.(AtomicValue)

	return ok && o.StateID == v.StateID
}

// Equal reports structural equality with another value.
func (v CompoundValue) Equal(other StateValue) bool {
	o, ok := other.(CompoundValue)
	if !ok || o.StateID != v.StateID {
		return false
	}

	if v.Child == nil || o.Child == nil {
		return v.Child == nil && o.Child == nil
	}

	return v.Child.Equal(o.Child)
}

// Equal reports structural equality with another value, comparing every
// region recursively.
func (v ParallelValue) Equal(other StateValue) bool {
	o, ok := other.(ParallelValue)
	if !ok || o.StateID != v.StateID || len(o.Regions) != len(v.Regions) {
		return false
	}

	for name, region := range v.Regions {
		otherRegion, exists := o.Regions[name]
		if !exists || !region.Equal(otherRegion) {
			return false
		}
	}

	return true
}

func (v AtomicValue) String() string {
	return v.StateID
}

func (v CompoundValue) String() string {
	if v.Child == nil {
		return v.StateID
	}

	return v.StateID + "." + v.Child.String()
}

func (v ParallelValue) String() string {
	names := make([]string, 0, len(v.Regions))
	for name := range v.Regions {
		names = append(names, name)
	}

	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, v.Regions[name].String())
	}

	return v.StateID + "{" + strings.Join(parts, ",") + "}"
}

// ValueMatches reports whether the dotted state path is active somewhere in
// the value. A path like "player.playing" matches when "player" is active and
// its active child chain continues with "playing"; inside a parallel state,
// any region may satisfy the remainder of the path.
func ValueMatches(value StateValue, path string) bool {
	if value == nil || path == "" {
		return false
	}

	return matchSegments(value, strings.Split(path, "."))
}

func matchSegments(value StateValue, segments []string) bool {
	if len(segments) == 0 {
		return true
	}

	switch v := value.(type) {
	case AtomicValue:
		return len(segments) == 1 && v.StateID == segments[0]
	case CompoundValue:
		if v.StateID != segments[0] {
			return false
		}

		if len(segments) == 1 {
			return true
		}

		return v.Child != nil && matchSegments(v.Child, segments[1:])
	case ParallelValue:
		if v.StateID == segments[0] {
			if len(segments) == 1 {
				return true
			}

			for _, region := range v.Regions {
				if matchSegments(region, segments[1:]) {
					return true
				}
			}

			return false
		}

		// The path may address a region directly, without naming the
		// parallel ancestor.
		for _, region := range v.Regions {
			if matchSegments(region, segments) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// LeafPaths returns every active root-to-leaf id path in the value. A
// non-parallel value yields exactly one path; each parallel region
// contributes its own. The returned slices are copies.
func LeafPaths(value StateValue) [][]string {
	paths := leafPaths(value)

	out := make([][]string, len(paths))
	for i, path := range paths {
		out[i] = append([]string(nil), path...)
	}

	return out
}

// leafPaths returns every active root-to-leaf id path in the value. A
// non-parallel value yields exactly one path; each parallel region
// contributes its own.
func leafPaths(value StateValue) [][]string {
	switch v := value.(type) {
	case AtomicValue:
		return [][]string{{v.StateID}}
	case CompoundValue:
		if v.Child == nil {
			return [][]string{{v.StateID}}
		}

		paths := leafPaths(v.Child)
		for i, p := range paths {
			paths[i] = append([]string{v.StateID}, p...)
		}

		return paths
	case ParallelValue:
		names := make([]string, 0, len(v.Regions))
		for name := range v.Regions {
			names = append(names, name)
		}

		sort.Strings(names)

		var paths [][]string

		for _, name := range names {
			for _, p := range leafPaths(v.Regions[name]) {
				paths = append(paths, append([]string{v.StateID}, p...))
			}
		}

		return paths
	default:
		return nil
	}
}

// subValueAt returns the sub-value rooted at the given id path, or nil when
// the path is not active in the value.
func subValueAt(value StateValue, path []string) StateValue {
	if len(path) == 0 {
		return value
	}

	if value == nil || value.ID() != path[0] {
		return nil
	}

	if len(path) == 1 {
		return value
	}

	switch v := value.(type) {
	case CompoundValue:
		return subValueAt(v.Child, path[1:])
	case ParallelValue:
		region, ok := v.Regions[path[1]]
		if !ok {
			return nil
		}

		return subValueAt(region, path[1:])
	default:
		return nil
	}
}

// graftValue returns a copy of value with the subtree at the id path replaced.
// The path addresses the node being replaced; its ancestors are rebuilt and
// untouched siblings (parallel regions) are shared.
func graftValue(value StateValue, path []string, replacement StateValue) StateValue {
	if len(path) <= 1 {
		return replacement
	}

	switch v := value.(type) {
	case CompoundValue:
		return CompoundValue{
			StateID: v.StateID,
			Child:   graftValue(v.Child, path[1:], replacement),
		}
	case ParallelValue:
		regions := make(map[string]StateValue, len(v.Regions))
		for name, region := range v.Regions {
			regions[name] = region
		}

		regions[path[1]] = graftValue(v.Regions[path[1]], path[1:], replacement)

		return ParallelValue{
			StateID: v.StateID,
			Regions: regions,
		}
	default:
		return replacement
	}
}
