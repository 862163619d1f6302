// Package timers schedules delayed and periodic transition events on behalf
// of the actor runtime. Timers are owned by the state that armed them and are
// torn down when that state exits.
package timers

import (
	"strconv"
	"sync"

	"github.com/amp-labs/statechart/chart"
)

// Manager tracks the timers armed for a single actor. Each timer is keyed by
// the owning state's path plus the delay id, so re-entering a state replaces
// its timers rather than stacking them.
type Manager struct {
	clock Clock

	mu      sync.Mutex
	entries map[string]*entry
	stopped bool
}

type entry struct {
	timer     Timer
	ownerPath string
	delayID   string
	tick      int
	canceled  bool
}

// NewManager creates a timer manager driven by clock. A nil clock means the
// real time package.
func NewManager(clock Clock) *Manager {
	if clock == nil {
		clock = RealClock{}
	}

	return &Manager{
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// Arm schedules every delay declared on the entered state. dispatch is called
// on the clock's goroutine each time a timer fires; it receives the owning
// state's path, the delay declaration and the event to deliver, so the caller
// can evaluate fire-time guards against its current context. For periodic
// delays the manager keeps rescheduling until the owner is canceled.
func (m *Manager) Arm(ownerPath string, delays []chart.DelayConfig, dispatch func(ownerPath string, delay chart.DelayConfig, event chart.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	for i, delay := range delays {
		// Unnamed delays get a positional key so siblings don't collide.
		delayID := delay.ID
		if delayID == "" {
			delayID = "delay-" + strconv.Itoa(i)
		}

		key := timerKey(ownerPath, delayID)

		if existing, ok := m.entries[key]; ok {
			existing.canceled = true
			existing.timer.Stop()
		}

		e := &entry{ownerPath: ownerPath, delayID: delayID}
		m.entries[key] = e

		switch {
		case delay.Every > 0:
			m.schedulePeriodic(key, e, delay, dispatch)
		default:
			m.scheduleOnce(key, e, delay, dispatch)
		}

		timersArmed.WithLabelValues(kindLabel(delay)).Inc()
	}
}

// scheduleOnce arms a one-shot timer. Caller holds the lock.
func (m *Manager) scheduleOnce(key string, e *entry, delay chart.DelayConfig, dispatch func(string, chart.DelayConfig, chart.Event)) {
	e.timer = m.clock.AfterFunc(delay.After, func() {
		m.mu.Lock()

		current, ok := m.entries[key]
		if !ok || current != e || e.canceled {
			m.mu.Unlock()

			return
		}

		delete(m.entries, key)
		m.mu.Unlock()

		timersFired.WithLabelValues("after").Inc()
		dispatch(e.ownerPath, delay, delay.Event)
	})
}

// schedulePeriodic arms a repeating timer that resubmits itself after each
// fire. Tick numbering is 1-based; Immediate only moves the first fire to
// now. Caller holds the lock.
func (m *Manager) schedulePeriodic(key string, e *entry, delay chart.DelayConfig, dispatch func(string, chart.DelayConfig, chart.Event)) {
	interval := delay.Every

	first := interval
	e.tick = 1

	if delay.Immediate {
		first = 0
	}

	var fire func()

	fire = func() {
		m.mu.Lock()

		current, ok := m.entries[key]
		if !ok || current != e || e.canceled {
			m.mu.Unlock()

			return
		}

		tick := e.tick
		e.tick++

		// Reschedule before dispatching so a dispatch that re-enters the
		// manager sees a consistent entry.
		e.timer = m.clock.AfterFunc(interval, fire)
		m.mu.Unlock()

		event := delay.Event
		if delay.Factory != nil {
			event = delay.Factory(tick)
		}

		timersFired.WithLabelValues("every").Inc()
		dispatch(e.ownerPath, delay, event)
	}

	e.timer = m.clock.AfterFunc(first, fire)
}

// CancelState cancels every timer owned by the given state path. Called when
// the state exits.
func (m *Manager) CancelState(ownerPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, e := range m.entries {
		if e.ownerPath == ownerPath {
			e.canceled = true
			e.timer.Stop()
			delete(m.entries, key)
			timersCanceled.Inc()
		}
	}
}

// Cancel cancels a single timer by owner path and delay id.
func (m *Manager) Cancel(ownerPath, delayID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := timerKey(ownerPath, delayID)

	if e, ok := m.entries[key]; ok {
		e.canceled = true
		e.timer.Stop()
		delete(m.entries, key)
		timersCanceled.Inc()
	}
}

// CancelAll cancels every timer and refuses further arming. Called when the
// actor stops.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true

	for key, e := range m.entries {
		e.canceled = true
		e.timer.Stop()
		delete(m.entries, key)
		timersCanceled.Inc()
	}
}

// Active returns the number of currently armed timers.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}

func timerKey(ownerPath, delayID string) string {
	return ownerPath + "#" + delayID
}

func kindLabel(delay chart.DelayConfig) string {
	if delay.Every > 0 {
		return "every"
	}

	return "after"
}
