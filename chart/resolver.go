package chart

import (
	"fmt"
	"time"
)

// Resolver computes transitions: given a current snapshot and an event it
// produces the exit set, entry set, resulting state value and the ordered
// side-effect lists. Resolution is deterministic; the only mutable state it
// touches besides the context is the history manager, and only on exits that
// cross a state with history children.
type Resolver struct {
	machine *Machine
	history *HistoryManager
}

// NewResolver creates a resolver for the machine. When history is nil a
// fresh HistoryManager is created; the manager must be owned by exactly one
// actor's snapshot lineage.
func NewResolver(machine *Machine, history *HistoryManager) *Resolver {
	if history == nil {
		history = NewHistoryManager()
	}

	return &Resolver{
		machine: machine,
		history: history,
	}
}

// History returns the resolver's history manager.
func (r *Resolver) History() *HistoryManager {
	return r.history
}

// Result describes one resolution step. When Changed is false the snapshot is
// the input snapshot itself, so callers can detect no-ops by identity or
// equality.
type Result struct {
	FromValue StateValue
	ToValue   StateValue
	Context   any
	Changed   bool
	Raised    []Event
	Logs      []LogMessage
	Sends     []SendRequest
	Spawns    []SpawnRequest
	Stops     []StopRequest
	// Exited holds the states exited during this step, innermost first.
	Exited []*StateConfig
	// Entered holds the states entered during this step, outermost first.
	Entered  []*StateConfig
	Done     bool
	Output   any
	Snapshot Snapshot
}

// winner is an enabled transition selected for one active region.
type winner struct {
	path       []*StateConfig
	level      int
	transition Transition
}

// Start computes the machine's initial snapshot: the root's initial chain is
// entered per default descent, firing entry actions with the Init
// pseudo-event.
func (r *Resolver) Start() (Result, error) {
	begin := time.Now()
	event := Event{Type: InitEventType}

	result := Result{Context: r.machine.initialContext, Changed: true}

	value, err := r.enterBranch(r.machine.root, nil, nil, event, &result)
	if err != nil {
		return Result{}, err
	}

	result.ToValue = value
	result.Done = r.isDone(value, r.machine.root)
	result.Snapshot = Snapshot{
		Value:     value,
		Context:   result.Context,
		Done:      result.Done,
		Output:    result.Output,
		LastEvent: event,
	}

	resolveDuration.WithLabelValues(sanitizeMachine(r.machine.id), outcomeChanged).Observe(time.Since(begin).Seconds())

	return result, nil
}

// Resolve computes the next snapshot for the event. It never applies to a
// done snapshot, evaluates guards against the incoming context, honors
// declaration-order tie-breaking per node, and executes side effects in
// exit-innermost-first, transition, entry-outermost-first order with the
// context threading sequentially through the whole chain.
func (r *Resolver) Resolve(current Snapshot, event Event) (Result, error) {
	begin := time.Now()

	noop := Result{
		FromValue: current.Value,
		ToValue:   current.Value,
		Context:   current.Context,
		Done:      current.Done,
		Output:    current.Output,
		Snapshot:  current,
	}

	if current.Done {
		noopTotal.WithLabelValues(sanitizeMachine(r.machine.id), reasonDone).Inc()

		return noop, nil
	}

	paths, err := r.activePaths(current.Value)
	if err != nil {
		return Result{}, &ResolveError{EventType: event.Type, Err: err}
	}

	winners := r.selectWinners(paths, current.Context, event)
	if len(winners) == 0 {
		noopTotal.WithLabelValues(sanitizeMachine(r.machine.id), reasonUnmatched).Inc()
		resolveDuration.WithLabelValues(sanitizeMachine(r.machine.id), outcomeNoop).Observe(time.Since(begin).Seconds())

		return noop, nil
	}

	result := Result{
		FromValue: current.Value,
		Context:   current.Context,
		Changed:   true,
	}

	value := current.Value

	for _, w := range winners {
		// A transition taken for an earlier region may have replaced this
		// region's subtree; skip winners whose source leaf is gone.
		if !r.leafStillActive(value, w.path) {
			continue
		}

		value, err = r.applyWinner(value, w, event, &result)
		if err != nil {
			return Result{}, &ResolveError{EventType: event.Type, Err: err}
		}
	}

	result.ToValue = value
	result.Done = r.isDone(value, r.machine.root)
	result.Snapshot = Snapshot{
		Value:     value,
		Context:   result.Context,
		Done:      result.Done,
		Output:    result.Output,
		LastEvent: event,
	}

	transitionsTotal.WithLabelValues(sanitizeMachine(r.machine.id), sanitizeEventType(event.Type)).Inc()
	resolveDuration.WithLabelValues(sanitizeMachine(r.machine.id), outcomeChanged).Observe(time.Since(begin).Seconds())

	return result, nil
}

// activePaths maps every active leaf path of the value onto definition nodes.
func (r *Resolver) activePaths(value StateValue) ([][]*StateConfig, error) {
	if value == nil {
		return nil, ErrValueShape
	}

	idPaths := leafPaths(value)
	paths := make([][]*StateConfig, 0, len(idPaths))

	for _, ids := range idPaths {
		nodes, err := r.nodesForPath(ids)
		if err != nil {
			return nil, err
		}

		paths = append(paths, nodes)
	}

	return paths, nil
}

func (r *Resolver) nodesForPath(ids []string) ([]*StateConfig, error) {
	if len(ids) == 0 || ids[0] != r.machine.root.id {
		return nil, fmt.Errorf("%w: path %v", ErrValueShape, ids)
	}

	nodes := make([]*StateConfig, 0, len(ids))
	node := r.machine.root
	nodes = append(nodes, node)

	for _, id := range ids[1:] {
		node = node.children[id]
		if node == nil {
			return nil, fmt.Errorf("%w: path %v", ErrValueShape, ids)
		}

		nodes = append(nodes, node)
	}

	return nodes, nil
}

// selectWinners finds, for each active region, the first enabled transition
// walking the path innermost to outermost. At each node the explicit event
// key is consulted before the wildcard key, each list in declaration order.
// Guards are evaluated against the incoming context. A region with no
// enabled transition is unaffected.
func (r *Resolver) selectWinners(paths [][]*StateConfig, ctx any, event Event) []winner {
	var winners []winner

	for _, path := range paths {
		found := false

		for level := len(path) - 1; level >= 0 && !found; level-- {
			for _, key := range []string{event.Type, WildcardEventType} {
				transition, ok := firstEnabled(path[level].on[key], ctx, event)
				if ok {
					winners = append(winners, winner{path: path, level: level, transition: transition})
					found = true

					break
				}
			}
		}
	}

	return winners
}

func firstEnabled(transitions []Transition, ctx any, event Event) (Transition, bool) {
	for _, t := range transitions {
		if t.Guard == nil || t.Guard(ctx, event) {
			return t, true
		}
	}

	return Transition{}, false
}

func (r *Resolver) leafStillActive(value StateValue, path []*StateConfig) bool {
	ids := make([]string, len(path))
	for i, node := range path {
		ids[i] = node.id
	}

	return subValueAt(value, ids) != nil
}

// applyWinner executes one selected transition against the evolving value,
// appending its side effects to the result and returning the new value.
func (r *Resolver) applyWinner(value StateValue, w winner, event Event, result *Result) (StateValue, error) {
	t := w.transition

	// Internal transitions run their actions and touch nothing else.
	if t.Internal {
		result.Context = r.runActions(t.Actions, result.Context, event, result)

		return value, nil
	}

	// Self-transition: full exit and re-entry of the active subtree under
	// the owning state, shape unchanged.
	if t.Target == "" {
		return r.applySelf(value, w, event, result)
	}

	return r.applyTargeted(value, w, event, result)
}

func (r *Resolver) applySelf(value StateValue, w winner, event Event, result *Result) (StateValue, error) {
	owner := w.path[w.level]
	ownerIDs := idsOf(w.path[:w.level+1])

	sub := subValueAt(value, ownerIDs)
	if sub == nil {
		return nil, ErrValueShape
	}

	r.exitSubtree(sub, owner, event, result)

	result.Context = r.runActions(w.transition.Actions, result.Context, event, result)

	rebuilt, err := r.reenterSubtree(sub, owner, event, result)
	if err != nil {
		return nil, err
	}

	return graftValue(value, ownerIDs, rebuilt), nil
}

//nolint:cyclop // The exit/entry computation mirrors the documented step order.
func (r *Resolver) applyTargeted(value StateValue, w winner, event Event, result *Result) (StateValue, error) {
	owner := w.path[w.level]

	target := owner.resolveTarget(w.transition.Target)
	if target == nil {
		return nil, fmt.Errorf("%w: %q", ErrTargetNotFound, w.transition.Target)
	}

	// History targets resolve to a concrete sibling (or a recorded subtree)
	// before exit/entry sets are computed.
	var forced StateValue

	if target.kind == KindHistory {
		var err error

		target, forced, err = r.resolveHistory(target)
		if err != nil {
			return nil, err
		}
	}

	targetPath := r.pathTo(target)
	lcaDepth := sharedPrefix(w.path, targetPath)

	// Identical source and target paths degrade to a pure-action step: the
	// shared-prefix rule leaves both the exit and entry sets empty.
	if lcaDepth == len(w.path) && lcaDepth == len(targetPath) {
		result.Context = r.runActions(w.transition.Actions, result.Context, event, result)

		return value, nil
	}

	// Exit the whole active subtree under the source branch one level below
	// the LCA. This also tears down parallel sibling regions nested inside
	// the exited branch.
	if lcaDepth < len(w.path) {
		branchIDs := idsOf(w.path[:lcaDepth+1])

		sub := subValueAt(value, branchIDs)
		if sub == nil {
			return nil, ErrValueShape
		}

		r.exitSubtree(sub, w.path[lcaDepth], event, result)
	}

	result.Context = r.runActions(w.transition.Actions, result.Context, event, result)

	// Enter from one level below the LCA down the target spine, then
	// default descent (or a deep-history subtree) below the target.
	entryRoot := targetPath[lcaDepth]
	if lcaDepth == len(targetPath) {
		// Transition targets the LCA itself (an ancestor of the source):
		// the ancestor stays active, its branch is re-descended.
		entryRoot = targetPath[lcaDepth-1]

		branch, err := r.descend(entryRoot, event, forced, result)
		if err != nil {
			return nil, err
		}

		return graftValue(value, idsOf(targetPath), branch), nil
	}

	spine := targetPath[lcaDepth+1:]

	branch, err := r.enterBranch(entryRoot, spine, forced, event, result)
	if err != nil {
		return nil, err
	}

	return graftValue(value, idsOf(targetPath[:lcaDepth+1]), branch), nil
}

// exitSubtree fires exit actions for every active state in the sub-value,
// innermost first, records history for exited states with history children
// and appends the exited nodes to the result.
func (r *Resolver) exitSubtree(sub StateValue, node *StateConfig, event Event, result *Result) {
	switch v := sub.(type) {
	case CompoundValue:
		if child := node.children[v.Child.ID()]; child != nil {
			r.exitSubtree(v.Child, child, event, result)
		}
	case ParallelValue:
		for _, id := range node.childOrder {
			region, active := v.Regions[id]
			if !active {
				continue
			}

			r.exitSubtree(region, node.children[id], event, result)
		}
	case AtomicValue:
	}

	if len(node.historyChildren()) > 0 {
		if recorded := activeChildValue(sub); recorded != nil {
			r.history.Record(node.PathString(), recorded)
		}
	}

	result.Context = r.runActions(node.exit, result.Context, event, result)
	result.Exited = append(result.Exited, node)
}

// activeChildValue returns the sub-value of the single active child (for a
// compound value) or the whole region map wrapped as-is (for parallel).
func activeChildValue(sub StateValue) StateValue {
	switch v := sub.(type) {
	case CompoundValue:
		return v.Child
	case ParallelValue:
		return v
	default:
		return nil
	}
}

// reenterSubtree re-enters the exact previous shape, firing entry actions
// outermost first.
func (r *Resolver) reenterSubtree(sub StateValue, node *StateConfig, event Event, result *Result) (StateValue, error) {
	r.enterNode(node, event, result)

	switch v := sub.(type) {
	case CompoundValue:
		child := node.children[v.Child.ID()]
		if child == nil {
			return nil, ErrValueShape
		}

		rebuilt, err := r.reenterSubtree(v.Child, child, event, result)
		if err != nil {
			return nil, err
		}

		return Compound(node.id, rebuilt), nil
	case ParallelValue:
		regions := make(map[string]StateValue, len(v.Regions))

		for _, id := range node.childOrder {
			region, active := v.Regions[id]
			if !active {
				continue
			}

			rebuilt, err := r.reenterSubtree(region, node.children[id], event, result)
			if err != nil {
				return nil, err
			}

			regions[id] = rebuilt
		}

		return Parallel(node.id, regions), nil
	default:
		return r.leafValue(node, event, result), nil
	}
}

// enterBranch enters node, then follows the spine toward an explicit target,
// then descends by defaults. The forced value, when non-nil, is a recorded
// deep-history subtree entered verbatim below the end of the spine.
func (r *Resolver) enterBranch(
	node *StateConfig,
	spine []*StateConfig,
	forced StateValue,
	event Event,
	result *Result,
) (StateValue, error) {
	r.enterNode(node, event, result)

	if len(spine) == 0 {
		return r.descendChildren(node, event, forced, result)
	}

	next := spine[0]

	switch node.kind {
	case KindCompound:
		child, err := r.enterBranch(next, spine[1:], forced, event, result)
		if err != nil {
			return nil, err
		}

		return Compound(node.id, child), nil
	case KindParallel:
		regions := make(map[string]StateValue, len(node.childOrder))

		for _, id := range node.childOrder {
			region := node.children[id]
			if region.kind == KindHistory {
				continue
			}

			var (
				entered StateValue
				err     error
			)

			if region == next {
				entered, err = r.enterBranch(region, spine[1:], forced, event, result)
			} else {
				entered, err = r.enterBranch(region, nil, nil, event, result)
			}

			if err != nil {
				return nil, err
			}

			regions[id] = entered
		}

		return Parallel(node.id, regions), nil
	default:
		return nil, fmt.Errorf("%w: cannot enter through %s", ErrValueShape, node.id)
	}
}

// descend performs default descent below an already-active node without
// re-entering the node itself.
func (r *Resolver) descend(node *StateConfig, event Event, forced StateValue, result *Result) (StateValue, error) {
	return r.descendChildren(node, event, forced, result)
}

// descendChildren resolves the value below node: a forced subtree is entered
// verbatim, compound nodes descend via their initial child, parallel nodes
// fan out into every region independently, and leaves terminate the descent.
func (r *Resolver) descendChildren(
	node *StateConfig,
	event Event,
	forced StateValue,
	result *Result,
) (StateValue, error) {
	if forced != nil {
		return r.enterRecorded(node, forced, event, result)
	}

	switch node.kind {
	case KindCompound:
		child := node.children[node.initial]
		if child == nil {
			return r.leafValue(node, event, result), nil
		}

		r.enterNode(child, event, result)

		sub, err := r.descendChildren(child, event, nil, result)
		if err != nil {
			return nil, err
		}

		return Compound(node.id, sub), nil
	case KindParallel:
		regions := make(map[string]StateValue, len(node.childOrder))

		for _, id := range node.childOrder {
			region := node.children[id]
			if region.kind == KindHistory {
				continue
			}

			r.enterNode(region, event, result)

			sub, err := r.descendChildren(region, event, nil, result)
			if err != nil {
				return nil, err
			}

			regions[id] = sub
		}

		return Parallel(node.id, regions), nil
	default:
		return r.leafValue(node, event, result), nil
	}
}

// enterRecorded replays a recorded deep-history subtree below node, firing
// entry actions for every state in it, outermost first.
func (r *Resolver) enterRecorded(node *StateConfig, recorded StateValue, event Event, result *Result) (StateValue, error) {
	switch v := recorded.(type) {
	case CompoundValue:
		child := node.children[v.Child.ID()]
		if child == nil {
			return nil, ErrValueShape
		}

		r.enterNode(child, event, result)

		sub, err := r.enterRecorded(child, v.Child, event, result)
		if err != nil {
			return nil, err
		}

		return Compound(node.id, sub), nil
	case ParallelValue:
		regions := make(map[string]StateValue, len(v.Regions))

		for _, id := range node.childOrder {
			region, active := v.Regions[id]
			if !active {
				continue
			}

			child := node.children[id]
			if child == nil {
				return nil, ErrValueShape
			}

			r.enterNode(child, event, result)

			sub, err := r.enterRecorded(child, region, event, result)
			if err != nil {
				return nil, err
			}

			regions[id] = sub
		}

		return Parallel(node.id, regions), nil
	default:
		return r.leafValue(node, event, result), nil
	}
}

// leafValue finalizes descent at a leaf, computing final-state output.
func (r *Resolver) leafValue(node *StateConfig, event Event, result *Result) StateValue {
	if node.kind == KindFinal && node.output != nil {
		result.Output = node.output(result.Context, event)
	}

	return Atomic(node.id)
}

// enterNode fires a state's entry actions and appends it to the entered set.
func (r *Resolver) enterNode(node *StateConfig, event Event, result *Result) {
	result.Context = r.runActions(node.entry, result.Context, event, result)
	result.Entered = append(result.Entered, node)
}

// resolveHistory turns a history target into a concrete sibling target plus,
// for deep history, the recorded subtree to restore verbatim. Resolution
// order: recorded value, then the history state's configured default, then
// the ancestor's initial child.
func (r *Resolver) resolveHistory(hist *StateConfig) (*StateConfig, StateValue, error) {
	parent := hist.parent

	if recorded, ok := r.history.Lookup(parent.PathString()); ok {
		// A parallel ancestor records its whole region map under its own id;
		// restoration re-enters the ancestor itself.
		if recorded.ID() == parent.id {
			if hist.deep {
				return parent, recorded, nil
			}

			return parent, nil, nil
		}

		child := parent.children[recorded.ID()]
		if child == nil {
			return nil, nil, fmt.Errorf("%w: recorded %s", ErrValueShape, recorded.ID())
		}

		if hist.deep {
			return child, recorded, nil
		}

		return child, nil, nil
	}

	if hist.defaultTo != "" {
		return parent.children[hist.defaultTo], nil, nil
	}

	child := parent.children[parent.initial]
	if child == nil {
		return nil, nil, fmt.Errorf("%w: history %s has no fallback", ErrHistoryDefaultNotFound, hist.PathString())
	}

	return child, nil, nil
}

// runActions executes an action list, threading the context and accumulating
// queued side effects onto the result.
func (r *Resolver) runActions(actions []Action, ctx any, event Event, result *Result) any {
	for _, action := range actions {
		out := action(ctx, event)

		ctx = out.Context
		result.Raised = append(result.Raised, out.Raised...)
		result.Logs = append(result.Logs, out.Logs...)
		result.Sends = append(result.Sends, out.Sends...)
		result.Spawns = append(result.Spawns, out.Spawns...)
		result.Stops = append(result.Stops, out.Stops...)
	}

	return ctx
}

// pathTo returns the definition nodes from the root down to node.
func (r *Resolver) pathTo(node *StateConfig) []*StateConfig {
	var nodes []*StateConfig
	for n := node; n != nil; n = n.parent {
		nodes = append(nodes, n)
	}

	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}

	return nodes
}

// sharedPrefix returns the number of leading nodes the two paths share: the
// LCA depth delimiting the exit/entry boundary.
func sharedPrefix(a, b []*StateConfig) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}

	return n
}

func idsOf(nodes []*StateConfig) []string {
	ids := make([]string, len(nodes))
	for i, node := range nodes {
		ids[i] = node.id
	}

	return ids
}

// isDone reports whether every active leaf of the value is a final state.
func (r *Resolver) isDone(value StateValue, node *StateConfig) bool {
	switch v := value.(type) {
	case AtomicValue:
		return node != nil && node.kind == KindFinal
	case CompoundValue:
		if node == nil {
			return false
		}

		return r.isDone(v.Child, node.children[v.Child.ID()])
	case ParallelValue:
		if node == nil || len(v.Regions) == 0 {
			return false
		}

		for id, region := range v.Regions {
			if !r.isDone(region, node.children[id]) {
				return false
			}
		}

		return true
	default:
		return false
	}
}
