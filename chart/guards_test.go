package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type guardCtx struct {
	Count int
	Name  string
	Tags  []string
	Ref   *int
}

func selectCount(ctx any) any { return ctx.(guardCtx).Count }
func selectName(ctx any) any  { return ctx.(guardCtx).Name }
func selectTags(ctx any) any  { return ctx.(guardCtx).Tags }
func selectRef(ctx any) any   { return ctx.(guardCtx).Ref }

func TestValueGuards(t *testing.T) {
	t.Parallel()

	ev := NewEvent("X", nil)
	five := 5

	tests := []struct {
		name  string
		guard Guard
		ctx   guardCtx
		want  bool
	}{
		{"eq match", Eq(selectName, "alpha"), guardCtx{Name: "alpha"}, true},
		{"eq mismatch", Eq(selectName, "alpha"), guardCtx{Name: "beta"}, false},
		{"greater than", GreaterThan(selectCount, 3), guardCtx{Count: 4}, true},
		{"greater than equal is false", GreaterThan(selectCount, 3), guardCtx{Count: 3}, false},
		{"less than", LessThan(selectCount, 3), guardCtx{Count: 2}, true},
		{"in range inclusive low", InRange(selectCount, 1, 10), guardCtx{Count: 1}, true},
		{"in range inclusive high", InRange(selectCount, 1, 10), guardCtx{Count: 10}, true},
		{"in range outside", InRange(selectCount, 1, 10), guardCtx{Count: 11}, false},
		{"is nil", IsNil(selectRef), guardCtx{}, true},
		{"not nil", NotNil(selectRef), guardCtx{Ref: &five}, true},
		{"is empty", IsEmpty(selectTags), guardCtx{}, true},
		{"not empty", NotEmpty(selectTags), guardCtx{Tags: []string{"a"}}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.guard(tt.ctx, ev))
		})
	}
}

func TestGuardCombinators(t *testing.T) {
	t.Parallel()

	ev := NewEvent("X", nil)
	yes := Guard(func(any, Event) bool { return true })
	no := Guard(func(any, Event) bool { return false })

	assert.True(t, And(yes, yes)(nil, ev))
	assert.False(t, And(yes, no)(nil, ev))
	assert.True(t, And()(nil, ev))

	assert.True(t, Or(no, yes)(nil, ev))
	assert.False(t, Or(no, no)(nil, ev))
	assert.False(t, Or()(nil, ev))

	assert.True(t, Not(no)(nil, ev))
	assert.False(t, Not(yes)(nil, ev))

	assert.True(t, Xor(yes, no)(nil, ev))
	assert.False(t, Xor(yes, yes)(nil, ev))
	assert.False(t, Xor(no, no)(nil, ev))
}

func TestAndShortCircuits(t *testing.T) {
	t.Parallel()

	ev := NewEvent("X", nil)
	called := false

	spy := Guard(func(any, Event) bool {
		called = true

		return true
	})

	no := Guard(func(any, Event) bool { return false })

	And(no, spy)(nil, ev)
	assert.False(t, called, "And must stop at the first false guard")

	yes := Guard(func(any, Event) bool { return true })

	Or(yes, spy)(nil, ev)
	assert.False(t, called, "Or must stop at the first true guard")
}
