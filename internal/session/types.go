package session

// MinClipLengthBeats is the positive minimum ε a clip's length is
// clamped to (spec §3): "length_beats clamped to a positive minimum
// ε ≈ 1e-6".
const MinClipLengthBeats = 1e-6

// RenderSpec holds the session's render defaults (spec §3).
type RenderSpec struct {
	SampleRateHz uint32
	BitDepth     uint16
	Dither       bool
}

// TransportSnapshot is the session's cached transport-state view (spec
// §3): "a transport snapshot (position beats, is-playing, cached
// tempo)". The live transport (internal/transport) is the source of
// truth during playback; this is the value `getTransportState` reports
// when no transport is attached, and the value a loaded session starts
// with.
type TransportSnapshot struct {
	PositionBeats float64
	IsPlaying     bool
	CachedTempo   float64
}

// Marker is a single named position within a MarkerSet.
type Marker struct {
	Name          string
	PositionBeats float64
}

// MarkerSet is a named, ordered set of markers (spec §3). Purely
// descriptive; the core does not interpret marker positions.
type MarkerSet struct {
	Handle  Handle
	Name    string
	Markers []Marker
}

// PlaylistLane is an opaque alternative-playlist overlay a host may
// display (spec §3). The core never interprets IsActive.
type PlaylistLane struct {
	Handle   Handle
	Name     string
	IsActive bool
}

// ClipAudio holds registered sample data for a clip, when present. A clip
// with no ClipAudio renders as silence and is skipped during real-time
// playback (spec §3).
type ClipAudio struct {
	// Samples holds one []float64 per channel, all the same length.
	Samples [][]float64
	// SampleRateHz is the native rate of Samples. The render pipeline
	// does not read it: source frames are placed one-to-one at the
	// session's render rate, with no resampling.
	SampleRateHz uint32
}

// Clip is a time-bounded, optionally audio-backed segment on a Track
// (spec §3).
type Clip struct {
	Handle        Handle
	Name          string
	StartBeats    float64
	LengthBeats   float64
	SceneIndex    *uint32
	Audio         *ClipAudio
	// OriginalOrder is the clip's append order within its track, used as
	// the final arrangement-commit sort tie-break (spec §3, §4.1).
	OriginalOrder int
}

// Track owns an ordered list of Clips and an optional routing map from
// clip channel index to output channel index (spec §3).
type Track struct {
	Handle    Handle
	Name      string
	Clips     []*Clip
	OutputMap map[int]int
	clipArena *arena[Clip]
}

// CommittedClip is one entry of the arrangement produced by
// CommitArrangement (spec §3, §4.1).
type CommittedClip struct {
	TrackHandle         Handle
	TrackIndex          int
	SceneIndex          uint32
	ArrangedStartBeats  float64
	ArrangedLengthBeats float64
	originalClipIndex   int
}

// sceneEvent is a pending trigger or end-scene event accumulated between
// edits (spec §3) and consumed by CommitArrangement.
type sceneEvent struct {
	sceneIndex    uint32
	positionBeats float64
	window        QuantizationWindow
	isEnd         bool
}
