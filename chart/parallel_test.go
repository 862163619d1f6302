package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mediaMachine: av{media[parallel]{audio{on,off},video{on,off}}} with
// per-region toggles and a shared MUTE_ALL event.
func mediaMachine(t *testing.T) *Machine {
	t.Helper()

	b := NewMachine("av").WithInitial("media")

	media := b.State("media").Parallel()

	audio := media.State("audio")
	audio.Initial("on")
	audio.State("on").
		On("AUDIO_OFF", To("off")).
		On("MUTE_ALL", To("off"))
	audio.State("off").
		On("AUDIO_ON", To("on"))

	video := media.State("video")
	video.Initial("on")
	video.State("on").
		On("VIDEO_OFF", To("off")).
		On("MUTE_ALL", To("off"))
	video.State("off").
		On("VIDEO_ON", To("on"))

	machine, err := b.Build()
	require.NoError(t, err)

	return machine
}

func TestParallelEntryFansOut(t *testing.T) {
	t.Parallel()

	r := NewResolver(mediaMachine(t), nil)

	start, err := r.Start()
	require.NoError(t, err)

	assert.True(t, start.Snapshot.Matches("av.media.audio.on"))
	assert.True(t, start.Snapshot.Matches("av.media.video.on"))
}

func TestParallelRegionIndependence(t *testing.T) {
	t.Parallel()

	r := NewResolver(mediaMachine(t), nil)

	start, err := r.Start()
	require.NoError(t, err)

	result, err := r.Resolve(start.Snapshot, NewEvent("AUDIO_OFF", nil))
	require.NoError(t, err)

	assert.True(t, result.Snapshot.Matches("av.media.audio.off"))
	assert.True(t, result.Snapshot.Matches("av.media.video.on"),
		"the video region must be untouched by an audio transition")
}

func TestParallelSharedEventHitsAllRegions(t *testing.T) {
	t.Parallel()

	r := NewResolver(mediaMachine(t), nil)

	start, err := r.Start()
	require.NoError(t, err)

	result, err := r.Resolve(start.Snapshot, NewEvent("MUTE_ALL", nil))
	require.NoError(t, err)

	assert.True(t, result.Snapshot.Matches("av.media.audio.off"))
	assert.True(t, result.Snapshot.Matches("av.media.video.off"))
}

func TestParallelDoneWhenAllRegionsFinal(t *testing.T) {
	t.Parallel()

	b := NewMachine("jobs").WithInitial("work")

	work := b.State("work").Parallel()

	upload := work.State("upload")
	upload.Initial("running")
	upload.State("running").
		On("UPLOAD_DONE", To("done"))
	upload.Final("done")

	index := work.State("index")
	index.Initial("running")
	index.State("running").
		On("INDEX_DONE", To("done"))
	index.Final("done")

	machine, err := b.Build()
	require.NoError(t, err)

	r := NewResolver(machine, nil)

	start, err := r.Start()
	require.NoError(t, err)
	assert.False(t, start.Done)

	half, err := r.Resolve(start.Snapshot, NewEvent("UPLOAD_DONE", nil))
	require.NoError(t, err)
	assert.False(t, half.Done, "one final region must not finish the machine")

	full, err := r.Resolve(half.Snapshot, NewEvent("INDEX_DONE", nil))
	require.NoError(t, err)
	assert.True(t, full.Done, "all regions final must finish the machine")
}

func TestTransitionOutOfParallelExitsEveryRegion(t *testing.T) {
	t.Parallel()

	var log []string

	record := func(tag string) Action {
		return Pure(func(any, Event) { log = append(log, tag) })
	}

	b := NewMachine("call").WithInitial("active")

	active := b.State("active").Parallel()
	active.On("HANG_UP", To("ended"))

	mic := active.State("mic")
	mic.Initial("open")
	mic.State("open").Exit(record("exit:mic.open"))
	mic.Exit(record("exit:mic"))

	cam := active.State("cam")
	cam.Initial("open")
	cam.State("open").Exit(record("exit:cam.open"))
	cam.Exit(record("exit:cam"))

	b.State("ended")

	machine, err := b.Build()
	require.NoError(t, err)

	r := NewResolver(machine, nil)

	start, err := r.Start()
	require.NoError(t, err)

	log = nil

	result, err := r.Resolve(start.Snapshot, NewEvent("HANG_UP", nil))
	require.NoError(t, err)
	assert.True(t, result.Snapshot.Matches("call.ended"))

	// Every region is torn down, leaves before their parents.
	assert.Equal(t, []string{
		"exit:mic.open", "exit:mic", "exit:cam.open", "exit:cam",
	}, log)
}
