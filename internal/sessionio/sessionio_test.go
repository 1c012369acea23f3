package sessionio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orpheuscore/internal/telemetry"
)

func TestMakeRenderStemFilename(t *testing.T) {
	assert.Equal(t, "project_drums_44p1k_24b.wav", MakeRenderStemFilename("Project", "Drums", 44100, 24))
	assert.Equal(t, MakeRenderStemFilename("Project", "Drums", 44100, 24), MakeRenderStemFilename("Project", "Drums", 44100, 24))
	assert.Equal(t, "my_session_lead_vox_44p1k_16b.wav", MakeRenderStemFilename(" My Session! ", "Lead Vox", 0, 0))
	assert.Equal(t, "master_mix_192k_32b.wav", MakeRenderStemFilename("Master", "Mix", 192000, 32))
}

func TestMakeRenderClickFilename(t *testing.T) {
	assert.Equal(t, "out/project_click_48k_24b.wav", MakeRenderClickFilename("Project", "Click", 48000, 24))
	assert.Equal(t, "out/my_session_click_48k_24b.wav", MakeRenderClickFilename("My Session!", "click", 48000, 24))
}

// TestParseLoadAndSummarize reproduces spec §8 scenario 1.
func TestParseLoadAndSummarize(t *testing.T) {
	const text = `{"name":"Demo","tempo_bpm":120,"start_beats":0,"end_beats":8,"tracks":[{"name":"A","clips":[{"name":"c1","start_beats":0,"length_beats":4}]}]}`

	g, err := ParseSession(text, telemetry.NewHub(64))
	require.NoError(t, err)
	assert.Equal(t, 120.0, g.Tempo)
	assert.Equal(t, 0.0, g.Transport.PositionBeats)
	assert.False(t, g.Transport.IsPlaying)

	tracks := g.Tracks()
	require.Len(t, tracks, 1)
	require.Len(t, tracks[0].Clips, 1)
	assert.Equal(t, "c1", tracks[0].Clips[0].Name)
}

// TestParseOverlapRejection reproduces spec §8 scenario 2.
func TestParseOverlapRejection(t *testing.T) {
	const text = `{"name":"Demo","tempo_bpm":120,"start_beats":0,"end_beats":8,"tracks":[{"name":"A","clips":[{"name":"c1","start_beats":0,"length_beats":4},{"name":"c2","start_beats":2,"length_beats":4}]}]}`

	_, err := ParseSession(text, telemetry.NewHub(64))
	require.Error(t, err)
	var serr *telemetry.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, telemetry.StatusInvalidArgument, serr.Status)
}

func TestParseMissingFieldFails(t *testing.T) {
	_, err := ParseSession(`{"tempo_bpm":120,"start_beats":0,"end_beats":8,"tracks":[]}`, telemetry.NewHub(64))
	require.Error(t, err)
}

func TestParseRejectsInvalidTempo(t *testing.T) {
	_, err := ParseSession(`{"name":"s","tempo_bpm":0,"start_beats":0,"end_beats":8,"tracks":[]}`, telemetry.NewHub(64))
	require.Error(t, err)
}

func TestSerializeRoundTrip(t *testing.T) {
	const text = `{"name":"Demo","tempo_bpm":120,"start_beats":0,"end_beats":8,"render":{"sample_rate_hz":48000,"bit_depth":24,"dither":true},"marker_sets":[],"playlist_lanes":[],"tracks":[{"name":"A","clips":[{"name":"c1","start_beats":0,"length_beats":4}]}]}`

	g, err := ParseSession(text, telemetry.NewHub(64))
	require.NoError(t, err)

	out := SerializeSession(g)
	g2, err := ParseSession(out, telemetry.NewHub(64))
	require.NoError(t, err)

	assert.Equal(t, g.Name, g2.Name)
	assert.Equal(t, g.Tempo, g2.Tempo)
	assert.Equal(t, g.Render, g2.Render)
	assert.Equal(t, SerializeSession(g), SerializeSession(g2))
}

func TestSerializeIsByteStableAcrossCalls(t *testing.T) {
	g, err := ParseSession(`{"name":"Demo","tempo_bpm":120,"start_beats":0,"end_beats":8,"tracks":[{"name":"A","clips":[{"name":"c1","start_beats":0,"length_beats":4}]}]}`, telemetry.NewHub(64))
	require.NoError(t, err)
	assert.Equal(t, SerializeSession(g), SerializeSession(g))
}
