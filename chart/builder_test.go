package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKindInference(t *testing.T) {
	t.Parallel()

	b := NewMachine("m").WithInitial("parent")

	parent := b.State("parent")
	parent.Initial("leaf")
	parent.State("leaf")

	machine, err := b.Build()
	require.NoError(t, err)

	root := machine.Root()
	assert.Equal(t, KindCompound, root.Kind())
	assert.Equal(t, KindCompound, root.Child("parent").Kind())
	assert.Equal(t, KindAtomic, root.Child("parent").Child("leaf").Kind())
}

func TestBuildRejectsMissingInitial(t *testing.T) {
	t.Parallel()

	b := NewMachine("m").WithInitial("parent")

	parent := b.State("parent")
	parent.State("a")
	parent.State("b")

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialRequired)
}

func TestBuildRejectsUnknownInitial(t *testing.T) {
	t.Parallel()

	b := NewMachine("m").WithInitial("nope")
	b.State("real")

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialNotFound)
}

func TestBuildRejectsDuplicateSiblings(t *testing.T) {
	t.Parallel()

	b := NewMachine("m").WithInitial("a")
	b.State("a")
	b.State("a")

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateStateID)
}

func TestBuildRejectsUnresolvableTarget(t *testing.T) {
	t.Parallel()

	b := NewMachine("m").WithInitial("a")
	b.State("a").
		On("GO", To("missing"))

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTargetNotFound)

	var defErr *DefinitionError

	require.ErrorAs(t, err, &defErr)
	assert.NotEmpty(t, defErr.StatePath)
}

func TestBuildRejectsHistoryWithoutResolvableDefault(t *testing.T) {
	t.Parallel()

	b := NewMachine("m").WithInitial("parent")

	parent := b.State("parent")
	parent.Initial("a")
	parent.State("a")
	parent.History("hist").DefaultTo("elsewhere")

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHistoryDefaultNotFound)
}

func TestBuildRejectsChildrenUnderFinal(t *testing.T) {
	t.Parallel()

	b := NewMachine("m").WithInitial("done")

	done := b.Root().Final("done")
	done.State("inner")

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFinalChildren)
}

func TestBuildRejectsSingleRegionParallel(t *testing.T) {
	t.Parallel()

	b := NewMachine("m").WithInitial("p")

	p := b.State("p").Parallel()
	only := p.State("only")
	only.Initial("x")
	only.State("x")

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParallelRegions)
}

func TestBuildRejectsInvokeWithoutService(t *testing.T) {
	t.Parallel()

	b := NewMachine("m").WithInitial("a")
	b.State("a").Invoke("fetch", nil)

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvokeSrcRequired)
}

func TestBuildRejectsMachineWithoutID(t *testing.T) {
	t.Parallel()

	b := NewMachine("").WithInitial("a")
	b.State("a")

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMachineIDRequired)
}

func TestTargetResolutionScopes(t *testing.T) {
	t.Parallel()

	b := NewMachine("app").WithInitial("outer")

	outer := b.State("outer")
	outer.Initial("inner")

	inner := outer.State("inner")
	// Bare sibling id, ancestor id, and dotted absolute path all resolve.
	inner.On("SIBLING", To("other"))
	inner.On("UP", To("outer"))
	inner.On("ABS", To("app.second"))

	outer.State("other")
	b.State("second")

	machine, err := b.Build()
	require.NoError(t, err)

	r := NewResolver(machine, nil)

	start, err := r.Start()
	require.NoError(t, err)

	sibling, err := r.Resolve(start.Snapshot, NewEvent("SIBLING", nil))
	require.NoError(t, err)
	assert.True(t, sibling.Snapshot.Matches("app.outer.other"))

	r2 := NewResolver(machine, nil)
	start2, err := r2.Start()
	require.NoError(t, err)

	abs, err := r2.Resolve(start2.Snapshot, NewEvent("ABS", nil))
	require.NoError(t, err)
	assert.True(t, abs.Snapshot.Matches("app.second"))
}
