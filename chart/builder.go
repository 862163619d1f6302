package chart

import (
	"fmt"
	"time"
)

// Builder accumulates a machine definition and compiles it into an immutable
// Machine via Build. Build validates the definition and fails fast with a
// definition error; a malformed machine is never constructed.
type Builder struct {
	machineID string
	version   int
	context   any
	root      *StateDraft
}

// StateDraft is a mutable state node under construction. All methods return
// the draft for chaining.
type StateDraft struct {
	id         string
	kind       Kind
	kindSet    bool
	initial    string
	children   []*StateDraft
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

// NewMachine creates a builder for a machine with the given id. The root of
// the definition tree carries the machine id.
func NewMachine(id string) *Builder {
	return &Builder{
		machineID: id,
		version:   1,
		root:      newDraft(id),
	}
}

func newDraft(id string) *StateDraft {
	return &StateDraft{
		id: id,
		on: make(map[string][]Transition),
	}
}

// WithVersion records the definition version carried into serialized
// snapshots.
func (b *Builder) WithVersion(version int) *Builder {
	b.version = version

	return b
}

// WithContext sets the initial context value for fresh actors.
func (b *Builder) WithContext(ctx any) *Builder {
	b.context = ctx

	return b
}

// WithInitial sets the root's initial child id.
func (b *Builder) WithInitial(id string) *Builder {
	b.root.initial = id

	return b
}

// Root returns the root state draft for attaching top-level states.
func (b *Builder) Root() *StateDraft {
	return b.root
}

// State adds a top-level child state and returns its draft.
func (b *Builder) State(id string) *StateDraft {
	return b.root.State(id)
}

// On registers transitions for an event type on the root.
func (b *Builder) On(eventType string, transitions ...Transition) *Builder {
	b.root.On(eventType, transitions...)

	return b
}

// State adds a child state and returns the child's draft. Adding a child
// makes this state compound unless it was declared parallel.
func (d *StateDraft) State(id string) *StateDraft {
	child := newDraft(id)
	d.children = append(d.children, child)

	return child
}

// Final adds a final child state.
func (d *StateDraft) Final(id string) *StateDraft {
	child := d.State(id)
	child.kind = KindFinal
	child.kindSet = true

	return child
}

// History adds a shallow history child state.
func (d *StateDraft) History(id string) *StateDraft {
	child := d.State(id)
	child.kind = KindHistory
	child.kindSet = true

	return child
}

// Parallel marks this state as parallel; every child becomes a region.
func (d *StateDraft) Parallel() *StateDraft {
	d.kind = KindParallel
	d.kindSet = true

	return d
}

// Deep marks a history state as deep: the full recorded subtree is restored
// rather than only the immediate child.
func (d *StateDraft) Deep() *StateDraft {
	d.deep = true

	return d
}

// DefaultTo sets a history state's fallback target, used when no history has
// been recorded yet.
func (d *StateDraft) DefaultTo(target string) *StateDraft {
	d.defaultTo = target

	return d
}

// Initial sets the default child entered on descent.
func (d *StateDraft) Initial(id string) *StateDraft {
	d.initial = id

	return d
}

// On registers transitions for an event type, appended in declaration order.
// Declaration order is the tie-break order at resolution time.
func (d *StateDraft) On(eventType string, transitions ...Transition) *StateDraft {
	if _, exists := d.on[eventType]; !exists {
		d.eventOrder = append(d.eventOrder, eventType)
	}

	d.on[eventType] = append(d.on[eventType], transitions...)

	return d
}

// Entry appends entry actions.
func (d *StateDraft) Entry(actions ...Action) *StateDraft {
	d.entry = append(d.entry, actions...)

	return d
}

// Exit appends exit actions.
func (d *StateDraft) Exit(actions ...Action) *StateDraft {
	d.exit = append(d.exit, actions...)

	return d
}

// Invoke binds a service to this state's active lifetime.
func (d *StateDraft) Invoke(id string, src Service) *StateDraft {
	d.invokes = append(d.invokes, InvokeConfig{ID: id, Src: src})

	return d
}

// After arms a one-shot timer on entry that sends the event after the delay.
func (d *StateDraft) After(delay time.Duration, event Event) *StateDraft {
	d.delays = append(d.delays, DelayConfig{After: delay, Event: event})

	return d
}

// AfterGuarded arms a named one-shot timer whose guard is evaluated against
// the context at fire time. A failing guard produces no event but still
// consumes the timer.
func (d *StateDraft) AfterGuarded(id string, delay time.Duration, event Event, guard Guard) *StateDraft {
	d.delays = append(d.delays, DelayConfig{ID: id, After: delay, Event: event, Guard: guard})

	return d
}

// Every arms a periodic timer on entry. The factory is invoked once per tick;
// immediate fires the first tick on arming.
func (d *StateDraft) Every(interval time.Duration, immediate bool, factory func(tick int) Event) *StateDraft {
	d.delays = append(d.delays, DelayConfig{Every: interval, Immediate: immediate, Factory: factory})

	return d
}

// Output sets a final state's output function.
func (d *StateDraft) Output(fn OutputFunc) *StateDraft {
	d.output = fn

	return d
}

// Build compiles and validates the definition. All definition errors surface
// here, wrapped with the dotted path of the offending state.
func (b *Builder) Build() (*Machine, error) {
	if b.machineID == "" {
		return nil, newDefinitionError("", ErrMachineIDRequired)
	}

	root, err := compileState(b.root, nil)
	if err != nil {
		return nil, err
	}

	err = validateTree(root)
	if err != nil {
		return nil, err
	}

	return &Machine{
		id:             b.machineID,
		version:        b.version,
		root:           root,
		initialContext: b.context,
	}, nil
}

// compileState turns a draft subtree into immutable StateConfig nodes,
// inferring kinds and checking per-node invariants.
func compileState(draft *StateDraft, parent *StateConfig) (*StateConfig, error) {
	node := &StateConfig{
		id:         draft.id,
		parent:     parent,
		initial:    draft.initial,
		children:   make(map[string]*StateConfig, len(draft.children)),
		on:         make(map[string][]Transition, len(draft.on)),
		eventOrder: append([]string(nil), draft.eventOrder...),
		entry:      append([]Action(nil), draft.entry...),
		exit:       append([]Action(nil), draft.exit...),
		invokes:    append([]InvokeConfig(nil), draft.invokes...),
		delays:     append([]DelayConfig(nil), draft.delays...),
		output:     draft.output,
		deep:       draft.deep,
		defaultTo:  draft.defaultTo,
	}

	node.kind = inferKind(draft)

	path := node.PathString()

	if node.kind == KindFinal && len(draft.children) > 0 {
		return nil, newDefinitionError(path, ErrFinalChildren)
	}

	for _, eventType := range draft.eventOrder {
		node.on[eventType] = append([]Transition(nil), draft.on[eventType]...)
	}

	for _, childDraft := range draft.children {
		if _, dup := node.children[childDraft.id]; dup {
			return nil, newDefinitionError(path, fmt.Errorf("%w: %s", ErrDuplicateStateID, childDraft.id))
		}

		child, err := compileState(childDraft, node)
		if err != nil {
			return nil, err
		}

		node.children[childDraft.id] = child
		node.childOrder = append(node.childOrder, childDraft.id)
	}

	return node, nil
}

func inferKind(draft *StateDraft) Kind {
	if draft.kindSet {
		return draft.kind
	}

	if len(draft.children) > 0 {
		return KindCompound
	}

	return KindAtomic
}

// validateTree checks cross-node invariants once the full tree exists:
// initial-child presence, target resolvability, history placement, invoke
// uniqueness and delay shapes.
func validateTree(node *StateConfig) error {
	path := node.PathString()

	err := validateNode(node, path)
	if err != nil {
		return err
	}

	for _, id := range node.childOrder {
		err = validateTree(node.children[id])
		if err != nil {
			return err
		}
	}

	return nil
}

//nolint:cyclop // Validation is a flat sequence of independent checks.
func validateNode(node *StateConfig, path string) error {
	realChildren := 0

	for _, id := range node.childOrder {
		if node.children[id].kind != KindHistory {
			realChildren++
		}
	}

	if node.kind == KindCompound && realChildren > 0 {
		if node.initial == "" {
			return newDefinitionError(path, ErrInitialRequired)
		}

		child, ok := node.children[node.initial]
		if !ok || child.kind == KindHistory {
			return newDefinitionError(path, fmt.Errorf("%w: %s", ErrInitialNotFound, node.initial))
		}
	}

	if node.kind == KindParallel && realChildren < 2 {
		return newDefinitionError(path, ErrParallelRegions)
	}

	if node.kind == KindHistory {
		if node.parent == nil || (node.parent.kind != KindCompound && node.parent.kind != KindParallel) {
			return newDefinitionError(path, ErrHistoryParent)
		}

		if node.defaultTo != "" && node.parent.children[node.defaultTo] == nil {
			return newDefinitionError(path, fmt.Errorf("%w: %s", ErrHistoryDefaultNotFound, node.defaultTo))
		}
	}

	for _, eventType := range node.eventOrder {
		for _, t := range node.on[eventType] {
			if t.Target == "" {
				continue
			}

			if node.resolveTarget(t.Target) == nil {
				return newDefinitionError(path, fmt.Errorf("%w: %q on %s", ErrTargetNotFound, t.Target, eventType))
			}
		}
	}

	seen := make(map[string]bool, len(node.invokes))

	for _, inv := range node.invokes {
		if inv.Src == nil {
			return newDefinitionError(path, fmt.Errorf("%w: %s", ErrInvokeSrcRequired, inv.ID))
		}

		if seen[inv.ID] {
			return newDefinitionError(path, fmt.Errorf("%w: %s", ErrDuplicateInvokeID, inv.ID))
		}

		seen[inv.ID] = true
	}

	for _, delay := range node.delays {
		oneShot := delay.After > 0
		periodic := delay.Every > 0

		if oneShot == periodic || (periodic && delay.Factory == nil) {
			return newDefinitionError(path, ErrDelayShape)
		}
	}

	return nil
}
