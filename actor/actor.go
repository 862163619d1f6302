// Package actor hosts running statechart instances. An Actor owns one
// machine's snapshot and processes events as run-to-completion macrosteps:
// each external event is resolved, events raised by actions are drained
// before the next external event, and every outward effect (sends to other
// actors, spawns, invocation lifecycles, timers) is applied in step order.
package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"github.com/amp-labs/statechart/chart"
	"github.com/amp-labs/statechart/inspect"
	"github.com/amp-labs/statechart/timers"
)

// Lifecycle phases.
const (
	phaseIdle    = "idle"
	phaseRunning = "running"
	phaseStopped = "stopped"
)

// ParentID is the reserved sendTo target addressing the actor that invoked
// the current machine as a nested service. It resolves only inside actors
// started by InvokeMachine; anywhere else it is an ordinary registry id.
const ParentID = "parent"

var (
	// ErrActorStopped is returned when sending to a stopped actor.
	ErrActorStopped = errors.New("actor is stopped")
	// ErrActorNotStarted is returned when sending to an actor before Start.
	ErrActorNotStarted = errors.New("actor is not started")
	// ErrActorAlreadyStarted is returned by Start on a running actor.
	ErrActorAlreadyStarted = errors.New("actor is already started")
)

// Actor is a single running machine instance. All methods are safe for
// concurrent use. Event processing is synchronous: Send returns after the
// whole macrostep has been applied, so a Send from inside an action on the
// same actor would deadlock; actions communicate through Raise and SendTo
// instead.
type Actor struct {
	id       string
	machine  *chart.Machine
	resolver *chart.Resolver
	logger   chart.Logger
	clock    timers.Clock
	timerMgr *timers.Manager
	registry *Registry
	observer *inspect.Registry
	tracer   trace.Tracer
	parent   func(chart.Event)

	mu          sync.Mutex
	phase       string
	snapshot    chart.Snapshot
	queue       []chart.Event
	draining    bool
	invocations map[string]*invocation
	children    map[string]*Actor
	subscribers map[int]func(chart.Snapshot)
	nextSubID   int
}

// invocation is one supervised service instance, keyed by the owning state's
// path and the invoke id. The active flag gates callbacks so nothing is
// delivered after the owning state has exited.
type invocation struct {
	key    string
	active *atomic.Bool
	cancel func()
}

// Option configures an Actor.
type Option func(*Actor)

// WithID sets the actor's id. Defaults to the machine id plus a random UUID.
func WithID(id string) Option {
	return func(a *Actor) { a.id = id }
}

// WithContext overrides the machine's initial context for this actor.
func WithContext(ctx any) Option {
	return func(a *Actor) {
		a.machine = a.machine.WithInitialContext(ctx)
		a.resolver = chart.NewResolver(a.machine, a.resolver.History())
	}
}

// WithLogger sets the logger. Defaults to the slog-backed default logger.
func WithLogger(logger chart.Logger) Option {
	return func(a *Actor) { a.logger = logger }
}

// WithClock sets the clock driving delayed transitions. Defaults to the real
// clock; tests install a manual clock.
func WithClock(clock timers.Clock) Option {
	return func(a *Actor) { a.clock = clock }
}

// WithRegistry sets the registry used to address other actors from sendTo
// actions and to register spawned children. Defaults to a private registry.
func WithRegistry(registry *Registry) Option {
	return func(a *Actor) { a.registry = registry }
}

// WithObserver sets the inspection registry notified after every macrostep.
func WithObserver(observer *inspect.Registry) Option {
	return func(a *Actor) { a.observer = observer }
}

// withParentSender routes sendTo effects addressed to ParentID. Installed by
// InvokeMachine so a nested machine can message its invoking actor.
func withParentSender(send func(chart.Event)) Option {
	return func(a *Actor) { a.parent = send }
}

// WithHistory seeds the resolver with a pre-populated history manager,
// typically restored from persistence.
func WithHistory(history *chart.HistoryManager) Option {
	return func(a *Actor) { a.resolver = chart.NewResolver(a.machine, history) }
}

// New creates an actor for the machine. The actor is idle until Start.
func New(machine *chart.Machine, opts ...Option) *Actor {
	a := &Actor{
		machine:     machine,
		resolver:    chart.NewResolver(machine, nil),
		logger:      chart.NewDefaultLogger(),
		clock:       timers.RealClock{},
		phase:       phaseIdle,
		invocations: make(map[string]*invocation),
		children:    make(map[string]*Actor),
		subscribers: make(map[int]func(chart.Snapshot)),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.id == "" {
		a.id = machine.ID() + "-" + uuid.NewString()
	}

	if a.registry == nil {
		a.registry = NewRegistry()
	}

	a.timerMgr = timers.NewManager(a.clock)
	a.tracer = otel.Tracer("github.com/amp-labs/statechart/actor")

	return a
}

// ID returns the actor's id.
func (a *Actor) ID() string {
	return a.id
}

// Machine returns the actor's machine definition.
func (a *Actor) Machine() *chart.Machine {
	return a.machine
}

// Start enters the machine's initial configuration, firing entry actions,
// arming timers and starting invocations for the initially active states.
func (a *Actor) Start(ctx context.Context) error {
	a.mu.Lock()

	unlocked := false
	unlock := func() {
		if unlocked {
			return
		}

		unlocked = true
		a.draining = false
		a.mu.Unlock()
	}

	// Entry actions may panic. The panic propagates to the caller, but the
	// deferred unwind releases the lock so the actor stays usable at whatever
	// configuration was last committed.
	defer unlock()

	switch a.phase {
	case phaseRunning:
		return ErrActorAlreadyStarted
	case phaseStopped:
		return ErrActorStopped
	}

	result, err := a.resolver.Start()
	if err != nil {
		return fmt.Errorf("starting actor %s: %w", a.id, err)
	}

	a.phase = phaseRunning
	a.snapshot = result.Snapshot
	a.registry.register(a)

	var fx effects

	a.applyStep(result, &fx)

	// Initial entry actions may have raised events; drain them so the actor
	// settles before Start returns.
	if len(result.Raised) > 0 {
		a.queue = append(a.queue, result.Raised...)
		queueDepth.WithLabelValues(a.machine.ID()).Add(float64(len(result.Raised)))
		a.draining = true

		if _, err := a.drainLocked(ctx, &fx); err != nil {
			return err
		}
	}

	unlock()

	actorsActive.WithLabelValues(a.machine.ID()).Inc()
	a.logger.ActorLifecycle(ctx, a.machine.ID(), a.id, phaseRunning)
	a.runEffects(ctx, fx, chart.Snapshot{}, a.Snapshot(), chart.Event{Type: chart.InitEventType})

	return nil
}

// Send delivers an event to the actor and runs the full macrostep before
// returning. Events sent while another macrostep is draining are queued and
// processed by the draining goroutine; such a Send returns once the event is
// enqueued.
func (a *Actor) Send(event chart.Event) error {
	return a.SendCtx(context.Background(), event)
}

// SendCtx is Send with a caller-supplied context used for tracing and
// logging.
func (a *Actor) SendCtx(ctx context.Context, event chart.Event) error {
	a.mu.Lock()

	switch a.phase {
	case phaseIdle:
		a.mu.Unlock()

		return ErrActorNotStarted
	case phaseStopped:
		a.mu.Unlock()

		return ErrActorStopped
	}

	a.queue = append(a.queue, event)
	queueDepth.WithLabelValues(a.machine.ID()).Inc()

	if a.draining {
		a.mu.Unlock()

		return nil
	}

	a.draining = true
	prev := a.snapshot
	begin := time.Now()

	ctx, span := a.tracer.Start(ctx, "statechart.macrostep", trace.WithAttributes(
		attribute.String("statechart.machine", a.machine.ID()),
		attribute.String("statechart.actor", a.id),
		attribute.String("statechart.event", event.Type),
	))
	defer span.End()

	var (
		fx    effects
		final chart.Snapshot
	)

	// The unwind is deferred so it also runs when a guard or action panics:
	// the panic propagates to the caller while the actor stays usable at its
	// last committed snapshot.
	steps, err := func() (int, error) {
		defer func() {
			final = a.snapshot
			a.draining = false
			a.mu.Unlock()
		}()

		return a.drainLocked(ctx, &fx)
	}()
	if err != nil {
		span.RecordError(err)

		return err
	}

	span.SetAttributes(attribute.Int("statechart.steps", steps))
	macrostepSteps.WithLabelValues(a.machine.ID()).Observe(float64(steps))
	macrostepDuration.WithLabelValues(a.machine.ID()).Observe(time.Since(begin).Seconds())

	a.runEffects(ctx, fx, prev, final, event)

	return nil
}

// drainLocked processes queued events until the queue is empty, prepending
// raised events so they resolve before anything already queued. Caller holds
// the lock with draining set.
func (a *Actor) drainLocked(ctx context.Context, fx *effects) (int, error) {
	steps := 0

	for len(a.queue) > 0 {
		next := a.queue[0]
		a.queue = a.queue[1:]
		queueDepth.WithLabelValues(a.machine.ID()).Dec()

		result, err := a.resolver.Resolve(a.snapshot, next)
		if err != nil {
			return steps, fmt.Errorf("resolving event %s on actor %s: %w", next.Type, a.id, err)
		}

		steps++

		if !result.Changed {
			eventsTotal.WithLabelValues(a.machine.ID(), "ignored").Inc()
			a.logger.EventIgnored(ctx, a.machine.ID(), next.Type, ignoreReason(a.snapshot))

			continue
		}

		eventsTotal.WithLabelValues(a.machine.ID(), "handled").Inc()
		a.logger.TransitionTaken(ctx, a.machine.ID(),
			result.FromValue.String(), result.ToValue.String(), next.Type)

		a.snapshot = result.Snapshot
		a.applyStep(result, fx)

		if len(result.Raised) > 0 {
			a.queue = append(append([]chart.Event{}, result.Raised...), a.queue...)
			queueDepth.WithLabelValues(a.machine.ID()).Add(float64(len(result.Raised)))
		}
	}

	return steps, nil
}

func ignoreReason(snapshot chart.Snapshot) string {
	if snapshot.Done {
		return "done"
	}

	return "unmatched"
}

// effects accumulates the outward actions of a macrostep. They are executed
// after the queue drains, outside the actor lock, in collection order.
type effects struct {
	logs    []chart.LogMessage
	sends   []chart.SendRequest
	spawns  []chart.SpawnRequest
	stops   []chart.StopRequest
	starts  []pendingStart
	cancels []*invocation
}

type pendingStart struct {
	statePath string
	invoke    chart.InvokeConfig
}

// applyStep folds one step's result into the pending effects and updates
// timer and invocation bookkeeping for exited and entered states. Caller
// holds the lock.
func (a *Actor) applyStep(result chart.Result, fx *effects) {
	fx.logs = append(fx.logs, result.Logs...)
	fx.sends = append(fx.sends, result.Sends...)
	fx.spawns = append(fx.spawns, result.Spawns...)
	fx.stops = append(fx.stops, result.Stops...)

	// Exits first, innermost out: deactivate invocations so late callbacks
	// are dropped, and disarm the state's timers.
	for _, state := range result.Exited {
		path := state.PathString()

		if len(state.Delays()) > 0 {
			a.timerMgr.CancelState(path)
		}

		for _, inv := range state.Invocations() {
			key := invocationKey(path, inv.ID)

			if h, ok := a.invocations[key]; ok {
				h.active.Store(false)
				delete(a.invocations, key)
				fx.cancels = append(fx.cancels, h)
			}
		}
	}

	// Entries outermost in: arm timers now, start services after the
	// macrostep completes.
	for _, state := range result.Entered {
		path := state.PathString()

		if len(state.Delays()) > 0 {
			a.timerMgr.Arm(path, state.Delays(), a.dispatchTimer)
		}

		for _, inv := range state.Invocations() {
			fx.starts = append(fx.starts, pendingStart{statePath: path, invoke: inv})
		}
	}

	if result.Done {
		// Terminal configuration: nothing will run again, so tear down
		// whatever the final entry left armed.
		a.timerMgr.CancelAll()
	}
}

// runEffects executes a macrostep's accumulated effects outside the lock.
func (a *Actor) runEffects(ctx context.Context, fx effects, prev, final chart.Snapshot, cause chart.Event) {
	for _, msg := range fx.logs {
		a.logger.ActionMessage(ctx, a.machine.ID(), msg)
	}

	for _, h := range fx.cancels {
		invocationsActive.WithLabelValues(a.machine.ID()).Dec()

		if h.cancel != nil {
			h.cancel()
		}
	}

	for _, start := range fx.starts {
		a.startInvocation(ctx, start)
	}

	for _, spawn := range fx.spawns {
		a.spawnChild(ctx, spawn)
	}

	for _, stop := range fx.stops {
		a.stopChild(ctx, stop.ChildID)
	}

	for _, send := range fx.sends {
		a.dispatchSend(ctx, send)
	}

	// Subscribers and observers hear about a macrostep only when it netted
	// out to a different snapshot than the one before the call; a chain that
	// returns to its starting configuration is silent.
	if final.Equal(prev) {
		return
	}

	a.notifySubscribers(final)

	if a.observer != nil {
		a.observer.Broadcast(inspect.Observation{
			ActorID: a.id,
			Machine: a.machine.ID(),
			Event:   cause,
			Prev:    prev,
			Next:    final,
			At:      a.clock.Now(),
		})
	}

	if final.Done {
		a.logger.ActorLifecycle(ctx, a.machine.ID(), a.id, "done")
	}
}

// startInvocation starts one supervised service. The callback surface is
// gated on the handle's active flag and delivers by re-entering Send, so
// every service completion flows through the normal macrostep pipeline.
func (a *Actor) startInvocation(ctx context.Context, start pendingStart) {
	key := invocationKey(start.statePath, start.invoke.ID)

	h := &invocation{key: key, active: atomic.NewBool(true)}

	a.mu.Lock()

	// The owning state may already have exited again before effects ran.
	if !a.stateActive(start.statePath) {
		a.mu.Unlock()

		return
	}

	a.invocations[key] = h
	a.mu.Unlock()

	id := start.invoke.ID
	cb := chart.ServiceCallback{
		Emit: func(value any) {
			if !h.active.Load() {
				return
			}

			if event, ok := value.(chart.Event); ok {
				_ = a.Send(event)

				return
			}

			_ = a.Send(chart.NewEvent(chart.EmitInvokeEvent(id), value))
		},
		Done: func(value any) {
			if h.active.CompareAndSwap(true, false) {
				_ = a.Send(chart.NewEvent(chart.DoneInvokeEvent(id), value))
			}
		},
		Fail: func(err error) {
			if h.active.CompareAndSwap(true, false) {
				_ = a.Send(chart.NewEvent(chart.ErrorInvokeEvent(id), err))
			}
		},
		Send: func(event chart.Event) {
			if h.active.Load() {
				_ = a.Send(event)
			}
		},
	}

	invocationsActive.WithLabelValues(a.machine.ID()).Inc()

	cancel := start.invoke.Src.Start(ctx, cb)

	// The service's own callbacks may have re-entered Send and already driven
	// this actor out of the owning state. In that case the teardown pass saw a
	// nil cancel func, so it runs here instead.
	a.mu.Lock()
	current, supervised := a.invocations[key]
	supervised = supervised && current == h

	if supervised {
		h.cancel = cancel
	}

	a.mu.Unlock()

	if !supervised && cancel != nil {
		cancel()
	}
}

// stateActive reports whether the state path is part of the current active
// configuration. Caller holds the lock.
func (a *Actor) stateActive(path string) bool {
	if a.snapshot.Value == nil {
		return false
	}

	// PathString keys are dotted root-to-state paths, which is exactly the
	// shape ValueMatches consumes.
	return chart.ValueMatches(a.snapshot.Value, path)
}

// dispatchTimer is called by the timer manager when a delay fires. One-shot
// guards are evaluated against the context at fire time; a failing guard
// consumes the timer without producing an event.
func (a *Actor) dispatchTimer(ownerPath string, delay chart.DelayConfig, event chart.Event) {
	a.mu.Lock()

	if a.phase != phaseRunning || !a.stateActive(ownerPath) {
		a.mu.Unlock()

		return
	}

	if delay.Guard != nil && !delay.Guard(a.snapshot.Context, event) {
		a.mu.Unlock()

		return
	}

	a.mu.Unlock()

	_ = a.Send(event)
}

// dispatchSend routes a sendTo effect to its target actor via the registry.
// Unknown targets are logged and dropped.
func (a *Actor) dispatchSend(ctx context.Context, send chart.SendRequest) {
	if send.ActorID == ParentID && a.parent != nil {
		a.parent(send.Event)

		return
	}

	target := a.lookupTarget(send.ActorID)
	if target == nil {
		a.logger.EventIgnored(ctx, a.machine.ID(), send.Event.Type,
			"unknown target actor "+send.ActorID)

		return
	}

	if err := target.SendCtx(ctx, send.Event); err != nil {
		a.logger.EventIgnored(ctx, a.machine.ID(), send.Event.Type,
			"target actor "+send.ActorID+": "+err.Error())
	}
}

func (a *Actor) lookupTarget(actorID string) *Actor {
	if actorID == a.id {
		return a
	}

	a.mu.Lock()
	child, ok := a.children[actorID]
	a.mu.Unlock()

	if ok {
		return child
	}

	return a.registry.Lookup(actorID)
}

// spawnChild creates, registers and starts a child actor. The child shares
// the parent's registry, clock, logger and observer, so sendTo can address
// it by id from any actor in the system.
func (a *Actor) spawnChild(ctx context.Context, spawn chart.SpawnRequest) {
	childID := spawn.ChildID
	if childID == "" {
		childID = spawn.Machine.ID() + "-" + uuid.NewString()
	}

	child := New(spawn.Machine,
		WithID(childID),
		WithLogger(a.logger),
		WithClock(a.clock),
		WithRegistry(a.registry),
		WithObserver(a.observer),
	)

	a.mu.Lock()

	if a.phase != phaseRunning {
		a.mu.Unlock()

		return
	}

	if _, exists := a.children[childID]; exists {
		a.mu.Unlock()
		a.logger.EventIgnored(ctx, a.machine.ID(), "spawn", "duplicate child id "+childID)

		return
	}

	a.children[childID] = child
	a.mu.Unlock()

	if err := child.Start(ctx); err != nil {
		a.mu.Lock()
		delete(a.children, childID)
		a.mu.Unlock()

		a.logger.EventIgnored(ctx, a.machine.ID(), "spawn", "starting child "+childID+": "+err.Error())
	}
}

func (a *Actor) stopChild(ctx context.Context, childID string) {
	a.mu.Lock()
	child, ok := a.children[childID]
	delete(a.children, childID)
	a.mu.Unlock()

	if ok {
		child.Stop(ctx)
	}
}

// Stop halts the actor: pending timers are canceled, invocations are torn
// down, children are stopped recursively and further sends fail with
// ErrActorStopped. Stop is idempotent.
func (a *Actor) Stop(ctx context.Context) {
	a.mu.Lock()

	if a.phase == phaseStopped {
		a.mu.Unlock()

		return
	}

	wasRunning := a.phase == phaseRunning
	a.phase = phaseStopped

	handles := make([]*invocation, 0, len(a.invocations))
	for _, h := range a.invocations {
		h.active.Store(false)
		handles = append(handles, h)
	}

	a.invocations = make(map[string]*invocation)

	children := make([]*Actor, 0, len(a.children))
	for _, child := range a.children {
		children = append(children, child)
	}

	a.children = make(map[string]*Actor)
	a.subscribers = make(map[int]func(chart.Snapshot))

	if len(a.queue) > 0 {
		queueDepth.WithLabelValues(a.machine.ID()).Sub(float64(len(a.queue)))
		a.queue = nil
	}

	a.mu.Unlock()

	a.timerMgr.CancelAll()

	for _, h := range handles {
		invocationsActive.WithLabelValues(a.machine.ID()).Dec()

		if h.cancel != nil {
			h.cancel()
		}
	}

	for _, child := range children {
		child.Stop(ctx)
	}

	a.registry.unregister(a.id)

	if wasRunning {
		actorsActive.WithLabelValues(a.machine.ID()).Dec()
	}

	a.logger.ActorLifecycle(ctx, a.machine.ID(), a.id, phaseStopped)
}

// Status returns the actor's lifecycle phase: "idle", "running" or
// "stopped".
func (a *Actor) Status() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.phase
}

// Snapshot returns the current snapshot.
func (a *Actor) Snapshot() chart.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.snapshot
}

// Context returns the current extended-state context.
func (a *Actor) Context() any {
	return a.Snapshot().Context
}

// Done reports whether the actor's machine has reached a terminal
// configuration.
func (a *Actor) Done() bool {
	return a.Snapshot().Done
}

// Matches reports whether the dotted state path is active.
func (a *Actor) Matches(path string) bool {
	return a.Snapshot().Matches(path)
}

// Child returns a spawned child actor by id, or nil.
func (a *Actor) Child(childID string) *Actor {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.children[childID]
}

// Subscribe registers a callback invoked once per macrostep whose final
// snapshot differs from the one before the triggering Send, after all other
// effects. The returned function unsubscribes.
func (a *Actor) Subscribe(callback func(chart.Snapshot)) func() {
	a.mu.Lock()

	id := a.nextSubID
	a.nextSubID++
	a.subscribers[id] = callback

	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.subscribers, id)
		a.mu.Unlock()
	}
}

func (a *Actor) notifySubscribers(snapshot chart.Snapshot) {
	a.mu.Lock()

	callbacks := make([]func(chart.Snapshot), 0, len(a.subscribers))
	for _, cb := range a.subscribers {
		callbacks = append(callbacks, cb)
	}

	a.mu.Unlock()

	for _, cb := range callbacks {
		cb(snapshot)
	}
}

// History exposes the resolver's history manager, mainly for persistence.
func (a *Actor) History() *chart.HistoryManager {
	return a.resolver.History()
}

func invocationKey(statePath, invokeID string) string {
	return statePath + "#" + invokeID
}

// WaitDone blocks until the actor reaches a terminal configuration or ctx is
// done.
func (a *Actor) WaitDone(ctx context.Context) error {
	done := make(chan struct{}, 1)

	unsubscribe := a.Subscribe(func(snapshot chart.Snapshot) {
		if snapshot.Done {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if a.Done() {
		return nil
	}

	// The ticker covers completions that raced the subscription.
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-ticker.C:
			if a.Done() {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
