package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orpheuscore/internal/render"
	"orpheuscore/internal/telemetry"
)

func TestGetSessionAPIV1RejectsMismatchedMajor(t *testing.T) {
	table, gotMajor, gotMinor := GetSessionAPIV1(2)
	assert.Nil(t, table)
	assert.Equal(t, uint32(1), gotMajor)
	assert.Equal(t, uint32(0), gotMinor)
}

func TestGetSessionAPIV1AcceptsMatchingMajor(t *testing.T) {
	table, gotMajor, gotMinor := GetSessionAPIV1(1)
	require.NotNil(t, table)
	assert.Equal(t, uint32(1), gotMajor)
	assert.Equal(t, uint32(0), gotMinor)
	assert.NotZero(t, table.Caps)
}

func TestSessionCreateDestroyLifecycle(t *testing.T) {
	table, _, _ := GetSessionAPIV1(1)
	h, status := table.Create("Demo", 120, 0, 8, 48000, 24, false)
	require.Equal(t, telemetry.StatusOK, status)
	assert.NotZero(t, h)

	status = table.Destroy(h)
	assert.Equal(t, telemetry.StatusOK, status)

	status = table.Destroy(h)
	assert.Equal(t, telemetry.StatusInvalidHandle, status)
}

func TestSessionCreateRejectsInvalidTempo(t *testing.T) {
	table, _, _ := GetSessionAPIV1(1)
	_, status := table.Create("Demo", 0, 0, 8, 48000, 24, false)
	assert.Equal(t, telemetry.StatusInvalidArgument, status)
}

func TestAddTrackAndClipThroughBothTables(t *testing.T) {
	sessionTable, _, _ := GetSessionAPIV1(1)
	clipTable, _, _ := GetClipGridAPIV1(1)

	h, status := sessionTable.Create("Demo", 120, 0, 0, 48000, 24, false)
	require.Equal(t, telemetry.StatusOK, status)
	defer sessionTable.Destroy(h)

	track, status := sessionTable.AddTrack(h, "A")
	require.Equal(t, telemetry.StatusOK, status)

	clip, status := clipTable.AddClip(h, track, "c1", 0, 4)
	require.Equal(t, telemetry.StatusOK, status)
	assert.NotZero(t, clip)

	status = clipTable.Commit(h)
	assert.Equal(t, telemetry.StatusOK, status)
}

func TestUnknownSessionHandleReturnsInvalidHandle(t *testing.T) {
	sessionTable, _, _ := GetSessionAPIV1(1)
	_, status := sessionTable.AddTrack(SessionHandle(999999), "A")
	assert.Equal(t, telemetry.StatusInvalidHandle, status)
}

func TestCommitArrangementWithQuantizedSceneTrigger(t *testing.T) {
	sessionTable, _, _ := GetSessionAPIV1(1)
	clipTable, _, _ := GetClipGridAPIV1(1)

	h, _ := sessionTable.Create("Demo", 120, 0, 0, 48000, 24, false)
	defer sessionTable.Destroy(h)

	track, _ := sessionTable.AddTrack(h, "A")
	clip, _ := clipTable.AddClip(h, track, "c1", 0, 2)
	status := clipTable.SetClipScene(h, clip, 1, true)
	require.Equal(t, telemetry.StatusOK, status)

	status = clipTable.TriggerScene(h, 1, 3.05, 1.0, 0.1)
	require.Equal(t, telemetry.StatusOK, status)
	status = clipTable.EndScene(h, 1, 5.95, 1.0, 0.1)
	require.Equal(t, telemetry.StatusOK, status)

	committed, status := clipTable.CommitArrangement(h, nil)
	require.Equal(t, telemetry.StatusOK, status)
	require.Len(t, committed, 1)
	assert.Equal(t, 3.0, committed[0].ArrangedStartBeats)
	assert.Equal(t, 2.0, committed[0].ArrangedLengthBeats)
}

func TestGetRenderAPIV1RenderClick(t *testing.T) {
	sessionTable, _, _ := GetSessionAPIV1(1)
	renderTable, _, _ := GetRenderAPIV1(1)

	h, _ := sessionTable.Create("Demo", 120, 0, 0, 48000, 24, false)
	defer sessionTable.Destroy(h)

	out := t.TempDir() + "/click.wav"
	path, status := renderTable.RenderClick(h, render.ClickSpec{
		OutputPath: out, TempoBPM: 120, SampleRateHz: 48000, Channels: 2, Bars: 1,
	})
	require.Equal(t, telemetry.StatusOK, status)
	assert.Equal(t, out, path)
}

func TestLoadSessionRegistersGraph(t *testing.T) {
	text := `{"name":"Demo","tempo_bpm":120,"start_beats":0,"end_beats":8,
		"tracks":[{"name":"A","clips":[{"name":"c1","start_beats":0,"length_beats":4}]}]}`
	h, status := LoadSession(text)
	require.Equal(t, telemetry.StatusOK, status)

	g, ok := SessionGraph(h)
	require.True(t, ok)
	assert.Equal(t, "Demo", g.Name)
}

func TestLoadSessionRejectsOverlappingClips(t *testing.T) {
	text := `{"name":"Demo","tempo_bpm":120,"start_beats":0,"end_beats":8,
		"tracks":[{"name":"A","clips":[
			{"name":"c1","start_beats":0,"length_beats":4},
			{"name":"c2","start_beats":2,"length_beats":4}
		]}]}`
	_, status := LoadSession(text)
	assert.Equal(t, telemetry.StatusInvalidArgument, status)
}
