// Package viz renders machine definitions for humans: a Mermaid state
// diagram for docs and review, and a YAML outline for quick inspection of
// large charts. Sibling states render in natural sort order so numbered
// states (step2 before step10) read correctly.
package viz

import (
	"fmt"
	"strings"

	"facette.io/natsort"
	"gopkg.in/yaml.v3"

	"github.com/amp-labs/statechart/chart"
)

// Mermaid renders the machine as a Mermaid stateDiagram-v2.
func Mermaid(machine *chart.Machine) string {
	var b strings.Builder

	b.WriteString("stateDiagram-v2\n")

	root := machine.Root()

	if initial := root.Initial(); initial != "" {
		fmt.Fprintf(&b, "    [*] --> %s\n", initial)
	}

	for _, child := range sortedChildren(root) {
		writeMermaidState(&b, child, 1)
	}

	writeMermaidTransitions(&b, root)

	return b.String()
}

func writeMermaidState(b *strings.Builder, state *chart.StateConfig, depth int) {
	pad := strings.Repeat("    ", depth)

	switch state.Kind() {
	case chart.KindAtomic, chart.KindHistory:
		fmt.Fprintf(b, "%sstate %s\n", pad, state.ID())
	case chart.KindFinal:
		fmt.Fprintf(b, "%sstate %s\n", pad, state.ID())
		fmt.Fprintf(b, "%s%s --> [*]\n", pad, state.ID())
	case chart.KindCompound, chart.KindParallel:
		fmt.Fprintf(b, "%sstate %s {\n", pad, state.ID())

		if initial := state.Initial(); initial != "" {
			fmt.Fprintf(b, "%s    [*] --> %s\n", pad, initial)
		}

		children := sortedChildren(state)

		for i, child := range children {
			writeMermaidState(b, child, depth+1)

			if state.Kind() == chart.KindParallel && i < len(children)-1 {
				fmt.Fprintf(b, "%s    --\n", pad)
			}
		}

		fmt.Fprintf(b, "%s}\n", pad)
	}
}

// writeMermaidTransitions walks the whole tree emitting one edge per
// declared transition. Mermaid resolves state names globally, so edges can
// be listed after the nesting structure.
func writeMermaidTransitions(b *strings.Builder, state *chart.StateConfig) {
	for _, eventType := range sortedEventTypes(state) {
		for _, transition := range state.Transitions(eventType) {
			label := eventType
			if transition.Guard != nil {
				label += " [guarded]"
			}

			target := transition.Target
			if target == "" {
				target = state.ID()
			} else if idx := strings.LastIndex(target, "."); idx >= 0 {
				target = target[idx+1:]
			}

			fmt.Fprintf(b, "    %s --> %s: %s\n", state.ID(), target, label)
		}
	}

	for _, child := range sortedChildren(state) {
		writeMermaidTransitions(b, child)
	}
}

// Outline is the YAML-friendly shape of one state.
type Outline struct {
	ID          string             `yaml:"id"`
	Kind        string             `yaml:"kind"`
	Initial     string             `yaml:"initial,omitempty"`
	Deep        bool               `yaml:"deep,omitempty"`
	Events      map[string][]Edge  `yaml:"on,omitempty"`
	Invocations []string           `yaml:"invoke,omitempty"`
	Timers      []string           `yaml:"timers,omitempty"`
	Children    []Outline          `yaml:"states,omitempty"`
}

// Edge is one transition in the outline.
type Edge struct {
	Target   string `yaml:"target,omitempty"`
	Guarded  bool   `yaml:"guarded,omitempty"`
	Internal bool   `yaml:"internal,omitempty"`
}

// YAML renders the machine as a YAML outline.
func YAML(machine *chart.Machine) (string, error) {
	doc := struct {
		Machine string  `yaml:"machine"`
		Version int     `yaml:"version"`
		Root    Outline `yaml:"root"`
	}{
		Machine: machine.ID(),
		Version: machine.Version(),
		Root:    outlineOf(machine.Root()),
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("rendering machine outline: %w", err)
	}

	return string(data), nil
}

func outlineOf(state *chart.StateConfig) Outline {
	out := Outline{
		ID:      state.ID(),
		Kind:    string(state.Kind()),
		Initial: state.Initial(),
		Deep:    state.Deep(),
	}

	for _, inv := range state.Invocations() {
		out.Invocations = append(out.Invocations, inv.ID)
	}

	for _, delay := range state.Delays() {
		if delay.Every > 0 {
			out.Timers = append(out.Timers, fmt.Sprintf("%s every %s", delay.ID, delay.Every))
		} else {
			out.Timers = append(out.Timers, fmt.Sprintf("%s after %s", delay.ID, delay.After))
		}
	}

	eventTypes := sortedEventTypes(state)
	if len(eventTypes) > 0 {
		out.Events = make(map[string][]Edge, len(eventTypes))

		for _, eventType := range eventTypes {
			for _, transition := range state.Transitions(eventType) {
				out.Events[eventType] = append(out.Events[eventType], Edge{
					Target:   transition.Target,
					Guarded:  transition.Guard != nil,
					Internal: transition.Internal,
				})
			}
		}
	}

	for _, child := range sortedChildren(state) {
		out.Children = append(out.Children, outlineOf(child))
	}

	return out
}

// sortedChildren returns the state's children in natural sort order by id.
func sortedChildren(state *chart.StateConfig) []*chart.StateConfig {
	children := state.Children()

	ids := make([]string, 0, len(children))
	for _, child := range children {
		ids = append(ids, child.ID())
	}

	natsort.Sort(ids)

	out := make([]*chart.StateConfig, 0, len(ids))
	for _, id := range ids {
		out = append(out, state.Child(id))
	}

	return out
}

// sortedEventTypes returns the event types a state handles, naturally
// sorted.
func sortedEventTypes(state *chart.StateConfig) []string {
	types := state.EventTypes()
	natsort.Sort(types)

	return types
}
