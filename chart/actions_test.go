package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssign(t *testing.T) {
	t.Parallel()

	action := Assign(func(ctx any, _ Event) any { return ctx.(int) * 2 })

	result := action(21, NewEvent("X", nil))
	assert.Equal(t, 42, result.Context)
	assert.Empty(t, result.Raised)
}

func TestRaise(t *testing.T) {
	t.Parallel()

	action := Raise(NewEvent("NEXT", "payload"))

	result := action(nil, NewEvent("X", nil))
	require.Len(t, result.Raised, 1)
	assert.Equal(t, "NEXT", result.Raised[0].Type)
	assert.Equal(t, "payload", result.Raised[0].Payload)
}

func TestRaiseFrom(t *testing.T) {
	t.Parallel()

	action := RaiseFrom(func(ctx any, _ Event) Event {
		return NewEvent("COMPUTED", ctx)
	})

	result := action("ctx-value", NewEvent("X", nil))
	require.Len(t, result.Raised, 1)
	assert.Equal(t, "ctx-value", result.Raised[0].Payload)
}

func TestSequenceThreadsContext(t *testing.T) {
	t.Parallel()

	add := func(n int) Action {
		return Assign(func(ctx any, _ Event) any { return ctx.(int) + n })
	}

	action := Sequence(add(1), add(10), Raise(NewEvent("DONE", nil)), add(100))

	result := action(0, NewEvent("X", nil))
	assert.Equal(t, 111, result.Context)
	require.Len(t, result.Raised, 1)
	assert.Equal(t, "DONE", result.Raised[0].Type)
}

func TestWhen(t *testing.T) {
	t.Parallel()

	double := Assign(func(ctx any, _ Event) any { return ctx.(int) * 2 })
	positive := Guard(func(ctx any, _ Event) bool { return ctx.(int) > 0 })

	taken := When(positive, double)(5, NewEvent("X", nil))
	assert.Equal(t, 10, taken.Context)

	skipped := When(positive, double)(-5, NewEvent("X", nil))
	assert.Equal(t, -5, skipped.Context)
}

func TestLogActions(t *testing.T) {
	t.Parallel()

	result := Log(LogWarn, "be careful")(nil, NewEvent("X", nil))
	require.Len(t, result.Logs, 1)
	assert.Equal(t, LogWarn, result.Logs[0].Level)
	assert.Equal(t, "be careful", result.Logs[0].Message)

	formatted := LogMessageFrom(LogInfo, func(ctx any, ev Event) string {
		return ev.Type + " seen"
	})(nil, NewEvent("PING", nil))
	require.Len(t, formatted.Logs, 1)
	assert.Equal(t, "PING seen", formatted.Logs[0].Message)
}

func TestSendToActions(t *testing.T) {
	t.Parallel()

	result := SendTo("other", NewEvent("HELLO", nil))(nil, NewEvent("X", nil))
	require.Len(t, result.Sends, 1)
	assert.Equal(t, "other", result.Sends[0].ActorID)
	assert.Equal(t, "HELLO", result.Sends[0].Event.Type)

	from := SendToFrom(func(ctx any, _ Event) SendRequest {
		return SendRequest{ActorID: ctx.(string), Event: NewEvent("HI", nil)}
	})("target-actor", NewEvent("X", nil))
	require.Len(t, from.Sends, 1)
	assert.Equal(t, "target-actor", from.Sends[0].ActorID)
}

func TestSpawnAndStopActions(t *testing.T) {
	t.Parallel()

	b := NewMachine("child").WithInitial("only")
	b.State("only")

	childMachine, err := b.Build()
	require.NoError(t, err)

	spawned := SpawnStatic("child-1", childMachine)(nil, NewEvent("X", nil))
	require.Len(t, spawned.Spawns, 1)
	assert.Equal(t, "child-1", spawned.Spawns[0].ChildID)
	assert.Same(t, childMachine, spawned.Spawns[0].Machine)

	computed := Spawn(func(ctx any, _ Event) string {
		return "child-" + ctx.(string)
	}, childMachine)("42", NewEvent("X", nil))
	require.Len(t, computed.Spawns, 1)
	assert.Equal(t, "child-42", computed.Spawns[0].ChildID)

	stopped := StopChild("child-1")(nil, NewEvent("X", nil))
	require.Len(t, stopped.Stops, 1)
	assert.Equal(t, "child-1", stopped.Stops[0].ChildID)
}
