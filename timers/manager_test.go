package timers

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-labs/statechart/chart"
)

type firedEvent struct {
	owner string
	event chart.Event
}

type sink struct {
	mu    sync.Mutex
	fired []firedEvent
}

func (s *sink) dispatch(owner string, _ chart.DelayConfig, event chart.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fired = append(s.fired, firedEvent{owner: owner, event: event})
}

func (s *sink) events() []firedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]firedEvent, len(s.fired))
	copy(out, s.fired)

	return out
}

func TestOneShotTimerFires(t *testing.T) {
	t.Parallel()

	clock := NewManualClock(time.Now())
	m := NewManager(clock)

	s := &sink{}

	m.Arm("app.session", []chart.DelayConfig{
		{ID: "timeout", After: 50 * time.Millisecond, Event: chart.NewEvent("TIMEOUT", nil)},
	}, s.dispatch)

	assert.Equal(t, 1, m.Active())

	clock.Advance(49 * time.Millisecond)
	assert.Empty(t, s.events())

	clock.Advance(time.Millisecond)

	fired := s.events()
	require.Len(t, fired, 1)
	assert.Equal(t, "app.session", fired[0].owner)
	assert.Equal(t, "TIMEOUT", fired[0].event.Type)
	assert.Equal(t, 0, m.Active())
}

func TestCancelStatePreventsFiring(t *testing.T) {
	t.Parallel()

	clock := NewManualClock(time.Now())
	m := NewManager(clock)

	s := &sink{}

	m.Arm("app.session", []chart.DelayConfig{
		{After: 50 * time.Millisecond, Event: chart.NewEvent("TIMEOUT", nil)},
	}, s.dispatch)

	m.CancelState("app.session")
	assert.Equal(t, 0, m.Active())

	clock.Advance(time.Second)
	assert.Empty(t, s.events())
}

func TestRearmReplacesExistingTimer(t *testing.T) {
	t.Parallel()

	clock := NewManualClock(time.Now())
	m := NewManager(clock)

	s := &sink{}
	delay := []chart.DelayConfig{
		{ID: "t", After: 50 * time.Millisecond, Event: chart.NewEvent("TIMEOUT", nil)},
	}

	m.Arm("app.session", delay, s.dispatch)

	clock.Advance(30 * time.Millisecond)

	// Re-arming (state re-entry) restarts the countdown.
	m.Arm("app.session", delay, s.dispatch)

	clock.Advance(30 * time.Millisecond)
	assert.Empty(t, s.events(), "replaced timer must not fire on the old schedule")

	clock.Advance(20 * time.Millisecond)
	assert.Len(t, s.events(), 1)
}

func TestPeriodicTimerResubmits(t *testing.T) {
	t.Parallel()

	clock := NewManualClock(time.Now())
	m := NewManager(clock)

	s := &sink{}

	m.Arm("app.poller", []chart.DelayConfig{
		{
			ID:    "tick",
			Every: 10 * time.Millisecond,
			Factory: func(tick int) chart.Event {
				return chart.NewEvent("TICK", tick)
			},
		},
	}, s.dispatch)

	clock.Advance(35 * time.Millisecond)

	fired := s.events()
	require.Len(t, fired, 3)
	assert.Equal(t, 1, fired[0].event.Payload)
	assert.Equal(t, 2, fired[1].event.Payload)
	assert.Equal(t, 3, fired[2].event.Payload)

	m.CancelState("app.poller")
	clock.Advance(time.Second)
	assert.Len(t, s.events(), 3)
}

func TestPeriodicImmediateFirstTick(t *testing.T) {
	t.Parallel()

	clock := NewManualClock(time.Now())
	m := NewManager(clock)

	s := &sink{}

	m.Arm("app.poller", []chart.DelayConfig{
		{
			ID:        "tick",
			Every:     10 * time.Millisecond,
			Immediate: true,
			Factory: func(tick int) chart.Event {
				return chart.NewEvent("TICK", tick)
			},
		},
	}, s.dispatch)

	clock.Advance(0)
	require.Len(t, s.events(), 1, "immediate periodic timers fire on arming")

	clock.Advance(10 * time.Millisecond)
	assert.Len(t, s.events(), 2)
}

func TestCancelAllStopsEverythingForGood(t *testing.T) {
	t.Parallel()

	clock := NewManualClock(time.Now())
	m := NewManager(clock)

	s := &sink{}

	m.Arm("a", []chart.DelayConfig{
		{After: 10 * time.Millisecond, Event: chart.NewEvent("A", nil)},
	}, s.dispatch)
	m.Arm("b", []chart.DelayConfig{
		{After: 10 * time.Millisecond, Event: chart.NewEvent("B", nil)},
	}, s.dispatch)

	m.CancelAll()

	clock.Advance(time.Second)
	assert.Empty(t, s.events())

	// A stopped manager refuses new timers.
	m.Arm("c", []chart.DelayConfig{
		{After: 10 * time.Millisecond, Event: chart.NewEvent("C", nil)},
	}, s.dispatch)

	clock.Advance(time.Second)
	assert.Empty(t, s.events())
	assert.Equal(t, 0, m.Active())
}

func TestUnnamedSiblingDelaysDoNotCollide(t *testing.T) {
	t.Parallel()

	clock := NewManualClock(time.Now())
	m := NewManager(clock)

	s := &sink{}

	m.Arm("app.state", []chart.DelayConfig{
		{After: 10 * time.Millisecond, Event: chart.NewEvent("FIRST", nil)},
		{After: 20 * time.Millisecond, Event: chart.NewEvent("SECOND", nil)},
	}, s.dispatch)

	assert.Equal(t, 2, m.Active())

	clock.Advance(25 * time.Millisecond)

	fired := s.events()
	require.Len(t, fired, 2)
	assert.Equal(t, "FIRST", fired[0].event.Type)
	assert.Equal(t, "SECOND", fired[1].event.Type)
}
