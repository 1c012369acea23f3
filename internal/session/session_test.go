package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orpheuscore/internal/telemetry"
)

func newTestSession(t *testing.T) *SessionGraph {
	t.Helper()
	g, err := New("untitled", 120, 0, 16, RenderSpec{SampleRateHz: 48000, BitDepth: 24}, telemetry.NewHub(64))
	require.NoError(t, err)
	return g
}

func TestNewValidatesTempoRangeAndRender(t *testing.T) {
	_, err := New("s", 0, 0, 16, RenderSpec{SampleRateHz: 48000, BitDepth: 16}, telemetry.NewHub(64))
	require.Error(t, err)

	_, err = New("s", 120, 8, 4, RenderSpec{SampleRateHz: 48000, BitDepth: 16}, telemetry.NewHub(64))
	require.Error(t, err)

	_, err = New("s", 120, 0, 16, RenderSpec{SampleRateHz: 0, BitDepth: 16}, telemetry.NewHub(64))
	require.Error(t, err)

	_, err = New("s", 120, 0, 16, RenderSpec{SampleRateHz: 48000, BitDepth: 17}, telemetry.NewHub(64))
	require.Error(t, err)

	g, err := New("s", 120, 0, 16, RenderSpec{SampleRateHz: 48000, BitDepth: 24}, telemetry.NewHub(64))
	require.NoError(t, err)
	assert.Equal(t, 120.0, g.Tempo)
}

func TestAddTrackAndClipLoadSummary(t *testing.T) {
	g := newTestSession(t)
	th := g.AddTrack("drums")
	h1, err := g.AddClip(th, "kick", 0, 4)
	require.NoError(t, err)
	h2, err := g.AddClip(th, "snare", 4, 4)
	require.NoError(t, err)
	assert.NotEqual(t, InvalidHandle, h1)
	assert.NotEqual(t, InvalidHandle, h2)

	tr, ok := g.Track(th)
	require.True(t, ok)
	assert.Len(t, tr.Clips, 2)

	g.CommitClipGrid()
	assert.Equal(t, 0.0, g.Start)
	assert.Equal(t, 8.0, g.End)
	assert.False(t, g.Dirty)
}

func TestAddClipClampsNonPositiveLength(t *testing.T) {
	g := newTestSession(t)
	th := g.AddTrack("bus")
	h, err := g.AddClip(th, "zero", 0, 0)
	require.NoError(t, err)
	_, c, ok := g.findClip(h)
	require.True(t, ok)
	assert.Equal(t, MinClipLengthBeats, c.LengthBeats)
}

func TestAddClipUnknownTrackFails(t *testing.T) {
	g := newTestSession(t)
	_, err := g.AddClip(Handle(999), "x", 0, 1)
	require.Error(t, err)
	var serr *telemetry.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, telemetry.StatusNotFound, serr.Status)
}

func TestValidateNoOverlapsRejectsOverlappingClips(t *testing.T) {
	g := newTestSession(t)
	th := g.AddTrack("guitar")
	_, err := g.AddClip(th, "a", 0, 4)
	require.NoError(t, err)
	_, err = g.AddClip(th, "b", 2, 4)
	require.NoError(t, err)

	err = g.ValidateNoOverlaps()
	require.Error(t, err)
	var serr *telemetry.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, telemetry.StatusInvalidArgument, serr.Status)
}

func TestValidateNoOverlapsAcceptsAdjacentClips(t *testing.T) {
	g := newTestSession(t)
	th := g.AddTrack("guitar")
	_, err := g.AddClip(th, "a", 0, 4)
	require.NoError(t, err)
	_, err = g.AddClip(th, "b", 4, 4)
	require.NoError(t, err)
	assert.NoError(t, g.ValidateNoOverlaps())
}

func TestCommitClipGridOrdersTracksAndClips(t *testing.T) {
	g := newTestSession(t)
	tb := g.AddTrack("bass")
	ta := g.AddTrack("arp")
	_, err := g.AddClip(tb, "b2", 4, 2)
	require.NoError(t, err)
	_, err = g.AddClip(tb, "b1", 0, 2)
	require.NoError(t, err)
	_, err = g.AddClip(ta, "a1", 0, 1)
	require.NoError(t, err)

	g.CommitClipGrid()

	tracks := g.Tracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, "arp", tracks[0].Name)
	assert.Equal(t, "bass", tracks[1].Name)
	require.Len(t, tracks[1].Clips, 2)
	assert.Equal(t, "b1", tracks[1].Clips[0].Name)
	assert.Equal(t, "b2", tracks[1].Clips[1].Name)
}

// TestQuantizeTriggerWithinTolerance exercises the exact scenario from
// spec §8: position 3.05 beats, grid 1.0, tolerance 0.1 -> snaps to 3.0.
func TestQuantizeTriggerWithinTolerance(t *testing.T) {
	q := QuantizeTrigger(3.05, QuantizationWindow{GridBeats: 1.0, ToleranceBeats: 0.1})
	assert.InDelta(t, 3.0, q, 1e-9)
}

func TestQuantizeTriggerOutsideToleranceRoundsUp(t *testing.T) {
	q := QuantizeTrigger(3.4, QuantizationWindow{GridBeats: 1.0, ToleranceBeats: 0.1})
	assert.InDelta(t, 4.0, q, 1e-9)
}

// TestCommitArrangementWithEndEvent reproduces spec §8 scenario 3: a scene
// triggered at 3.05 with grid 1.0/tolerance 0.1 quantizes to start 3.0; a
// matching end event at 5.95 under the same window quantizes to 6.0,
// giving a scene length of 3.0, which a 2-beat clip is not long enough to
// fill, so the clip's own length of 2.0 wins.
func TestCommitArrangementWithEndEvent(t *testing.T) {
	g := newTestSession(t)
	th := g.AddTrack("drums")
	scene := uint32(0)
	h, err := g.AddClip(th, "loop", 0, 2)
	require.NoError(t, err)
	require.NoError(t, g.SetClipScene(h, &scene))

	window := QuantizationWindow{GridBeats: 1.0, ToleranceBeats: 0.1}
	g.TriggerScene(scene, 3.05, window)
	g.EndScene(scene, 5.95, window)

	committed := g.CommitArrangement(nil)
	require.Len(t, committed, 1)
	assert.InDelta(t, 3.0, committed[0].ArrangedStartBeats, 1e-9)
	assert.InDelta(t, 2.0, committed[0].ArrangedLengthBeats, 1e-9)
	assert.Equal(t, 3.0, g.Start)
	assert.InDelta(t, 5.0, g.End, 1e-9)
}

func TestCommitArrangementNoEndEventUsesFallback(t *testing.T) {
	g := newTestSession(t)
	th := g.AddTrack("drums")
	scene := uint32(0)
	h, err := g.AddClip(th, "loop", 0, 8)
	require.NoError(t, err)
	require.NoError(t, g.SetClipScene(h, &scene))

	window := QuantizationWindow{GridBeats: 1.0, ToleranceBeats: 0.1}
	g.TriggerScene(scene, 0, window)

	fallback := 2.0
	committed := g.CommitArrangement(&fallback)
	require.Len(t, committed, 1)
	assert.InDelta(t, 2.0, committed[0].ArrangedLengthBeats, 1e-9)
}

func TestCommitArrangementNoEndEventNoFallbackUsesClipLength(t *testing.T) {
	g := newTestSession(t)
	th := g.AddTrack("drums")
	scene := uint32(0)
	h, err := g.AddClip(th, "loop", 0, 8)
	require.NoError(t, err)
	require.NoError(t, g.SetClipScene(h, &scene))

	g.TriggerScene(scene, 0, QuantizationWindow{GridBeats: 1.0, ToleranceBeats: 0.1})

	committed := g.CommitArrangement(nil)
	require.Len(t, committed, 1)
	assert.InDelta(t, 8.0, committed[0].ArrangedLengthBeats, 1e-9)
}

// TestCommitArrangementNoTriggersEmptyRange covers spec §8: "Arrangement
// commit with no triggers -> empty committed list, range (0, 0)".
func TestCommitArrangementNoTriggersEmptyRange(t *testing.T) {
	g := newTestSession(t)
	g.AddTrack("drums")

	committed := g.CommitArrangement(nil)
	assert.Empty(t, committed)
	assert.Equal(t, 0.0, g.Start)
	assert.Equal(t, 0.0, g.End)
}

func TestCommitArrangementOrdersBySceneTrackThenOriginalIndex(t *testing.T) {
	g := newTestSession(t)
	t1 := g.AddTrack("a")
	t2 := g.AddTrack("b")
	scene0, scene1 := uint32(0), uint32(1)

	h1, err := g.AddClip(t2, "t2-scene0", 0, 1)
	require.NoError(t, err)
	require.NoError(t, g.SetClipScene(h1, &scene0))

	h2, err := g.AddClip(t1, "t1-scene0", 0, 1)
	require.NoError(t, err)
	require.NoError(t, g.SetClipScene(h2, &scene0))

	h3, err := g.AddClip(t1, "t1-scene1", 0, 1)
	require.NoError(t, err)
	require.NoError(t, g.SetClipScene(h3, &scene1))

	window := QuantizationWindow{GridBeats: 1.0, ToleranceBeats: 0.1}
	g.TriggerScene(scene1, 0, window)
	g.TriggerScene(scene0, 0, window)

	committed := g.CommitArrangement(nil)
	require.Len(t, committed, 3)
	assert.Equal(t, uint32(0), committed[0].SceneIndex)
	assert.Equal(t, uint32(0), committed[1].SceneIndex)
	assert.Equal(t, uint32(1), committed[2].SceneIndex)
	assert.Less(t, committed[0].TrackIndex, committed[1].TrackIndex)
}

func TestRemoveTrackAndClip(t *testing.T) {
	g := newTestSession(t)
	th := g.AddTrack("drums")
	h, err := g.AddClip(th, "kick", 0, 1)
	require.NoError(t, err)

	assert.True(t, g.RemoveClip(h))
	tr, _ := g.Track(th)
	assert.Empty(t, tr.Clips)

	assert.True(t, g.RemoveTrack(th))
	_, ok := g.Track(th)
	assert.False(t, ok)
}

func TestMarkerSetsAndPlaylistLanes(t *testing.T) {
	g := newTestSession(t)
	g.AddMarkerSet("verse", []Marker{{Name: "v1", PositionBeats: 0}})
	g.AddPlaylistLane("alt", true)

	require.Len(t, g.MarkerSets(), 1)
	assert.Equal(t, "verse", g.MarkerSets()[0].Name)
	require.Len(t, g.PlaylistLanes(), 1)
	assert.True(t, g.PlaylistLanes()[0].IsActive)
}

func TestBeatsToSamplesRoundsHalfToZero(t *testing.T) {
	// 1 beat at 120 bpm = 0.5s; at 2 Hz that's exactly 1 sample, no tie.
	assert.Equal(t, int64(1), BeatsToSamples(1, 120, 2))
	// At 3 Hz that's 1.5 samples, a tie, which rounds toward zero to 1.
	assert.Equal(t, int64(1), BeatsToSamples(1, 120, 3))
}
