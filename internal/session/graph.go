package session

import (
	"math"
	"sort"

	"orpheuscore/internal/telemetry"
)

// SessionGraph is the in-memory session model (spec §3). It exclusively
// owns all contained tracks, clips, marker sets, and playlist lanes;
// callers reach them only through stable Handles.
type SessionGraph struct {
	Name    string
	Tempo   float64
	Start   float64
	End     float64
	Render    RenderSpec
	Dirty     bool
	Transport TransportSnapshot

	tracks      *arena[Track]
	trackOrder  []Handle
	markerSets  *arena[MarkerSet]
	markerOrder []Handle
	lanes       *arena[PlaylistLane]
	laneOrder   []Handle

	events    []sceneEvent
	Committed []CommittedClip

	hub *telemetry.Hub
}

// New creates a SessionGraph, failing validation exactly as spec §3/§4.1
// require: tempo > 0, end >= start, sample-rate > 0, bit-depth in
// {16,24,32}.
func New(name string, tempoBPM, startBeats, endBeats float64, render RenderSpec, hub *telemetry.Hub) (*SessionGraph, error) {
	if hub == nil {
		hub = telemetry.Default()
	}
	g := &SessionGraph{
		Name:       name,
		tracks:     newArena[Track](),
		markerSets: newArena[MarkerSet](),
		lanes:      newArena[PlaylistLane](),
		hub:        hub,
	}
	if err := g.SetTempo(tempoBPM); err != nil {
		return nil, err
	}
	if err := g.SetSessionRange(startBeats, endBeats); err != nil {
		return nil, err
	}
	if err := g.SetRenderSampleRate(render.SampleRateHz); err != nil {
		return nil, err
	}
	if err := g.SetRenderBitDepth(render.BitDepth); err != nil {
		return nil, err
	}
	g.Render.Dither = render.Dither
	g.Transport.CachedTempo = g.Tempo
	return g, nil
}

func (g *SessionGraph) fail(status telemetry.Status, msg string) error {
	err := telemetry.New(status, msg)
	g.hub.LogStatus(telemetry.ComponentSession, status, msg)
	return err
}

// SetTempo fails with InvalidArgument when bpm <= 0 (spec §4.1).
func (g *SessionGraph) SetTempo(bpm float64) error {
	if !(bpm > 0) {
		return g.fail(telemetry.StatusInvalidArgument, "tempo_bpm must be > 0")
	}
	g.Tempo = bpm
	g.Transport.CachedTempo = bpm
	g.Dirty = true
	return nil
}

// SetSessionRange fails with InvalidArgument when end < start (spec §4.1).
func (g *SessionGraph) SetSessionRange(start, end float64) error {
	if end < start {
		return g.fail(telemetry.StatusInvalidArgument, "end_beats must be >= start_beats")
	}
	g.Start = start
	g.End = end
	g.Dirty = true
	return nil
}

// SetRenderSampleRate validates sample-rate > 0 (spec §3).
func (g *SessionGraph) SetRenderSampleRate(hz uint32) error {
	if hz == 0 {
		return g.fail(telemetry.StatusInvalidArgument, "sample_rate_hz must be > 0")
	}
	g.Render.SampleRateHz = hz
	return nil
}

// SetRenderBitDepth validates bit-depth in {16,24,32} (spec §3).
func (g *SessionGraph) SetRenderBitDepth(bits uint16) error {
	switch bits {
	case 16, 24, 32:
		g.Render.BitDepth = bits
		return nil
	default:
		return g.fail(telemetry.StatusInvalidArgument, "bit_depth must be 16, 24, or 32")
	}
}

// SetRenderDither sets whether dither is applied during quantization.
func (g *SessionGraph) SetRenderDither(enabled bool) {
	g.Render.Dither = enabled
}

// AddTrack appends a new, empty track and marks the clip grid dirty.
func (g *SessionGraph) AddTrack(name string) Handle {
	t := &Track{Name: name, clipArena: newArena[Clip](), OutputMap: map[int]int{}}
	h := g.tracks.add(t)
	t.Handle = h
	g.trackOrder = append(g.trackOrder, h)
	g.Dirty = true
	return h
}

// RemoveTrack destroys a track and all its clips.
func (g *SessionGraph) RemoveTrack(h Handle) bool {
	if !g.tracks.remove(h) {
		return false
	}
	for i, th := range g.trackOrder {
		if th == h {
			g.trackOrder = append(g.trackOrder[:i], g.trackOrder[i+1:]...)
			break
		}
	}
	g.Dirty = true
	return true
}

// Track resolves a handle to its Track, if it still exists.
func (g *SessionGraph) Track(h Handle) (*Track, bool) {
	return g.tracks.get(h)
}

// Tracks returns tracks in current (insertion or last-committed) order.
func (g *SessionGraph) Tracks() []*Track {
	out := make([]*Track, 0, len(g.trackOrder))
	for _, h := range g.trackOrder {
		if t, ok := g.tracks.get(h); ok {
			out = append(out, t)
		}
	}
	return out
}

// AddClip appends a clip to track, clamping length to MinClipLengthBeats
// when the requested length is <= 0 (spec §4.1).
func (g *SessionGraph) AddClip(trackHandle Handle, name string, start, length float64) (Handle, error) {
	t, ok := g.tracks.get(trackHandle)
	if !ok {
		return InvalidHandle, g.fail(telemetry.StatusNotFound, "no such track")
	}
	if length <= 0 {
		length = MinClipLengthBeats
	}
	c := &Clip{Name: name, StartBeats: start, LengthBeats: length, OriginalOrder: len(t.Clips)}
	h := t.clipArena.add(c)
	c.Handle = h
	t.Clips = append(t.Clips, c)
	g.Dirty = true
	return h, nil
}

// findClip locates a clip and its owning track by handle.
func (g *SessionGraph) findClip(h Handle) (*Track, *Clip, bool) {
	for _, th := range g.trackOrder {
		t, ok := g.tracks.get(th)
		if !ok {
			continue
		}
		if c, ok := t.clipArena.get(h); ok {
			return t, c, true
		}
	}
	return nil, nil, false
}

// ClipExists reports whether h refers to a clip currently in the graph.
func (g *SessionGraph) ClipExists(h Handle) bool {
	_, _, ok := g.findClip(h)
	return ok
}

// RemoveClip removes a clip from its containing track.
func (g *SessionGraph) RemoveClip(h Handle) bool {
	t, _, ok := g.findClip(h)
	if !ok {
		return false
	}
	t.clipArena.remove(h)
	for i, c := range t.Clips {
		if c.Handle == h {
			t.Clips = append(t.Clips[:i], t.Clips[i+1:]...)
			break
		}
	}
	g.Dirty = true
	return true
}

// SetClipStart updates a clip's start position.
func (g *SessionGraph) SetClipStart(h Handle, start float64) error {
	_, c, ok := g.findClip(h)
	if !ok {
		return g.fail(telemetry.StatusNotFound, "no such clip")
	}
	c.StartBeats = start
	g.Dirty = true
	return nil
}

// SetClipLength updates a clip's length, clamping to MinClipLengthBeats.
func (g *SessionGraph) SetClipLength(h Handle, length float64) error {
	_, c, ok := g.findClip(h)
	if !ok {
		return g.fail(telemetry.StatusNotFound, "no such clip")
	}
	if length <= 0 {
		length = MinClipLengthBeats
	}
	c.LengthBeats = length
	g.Dirty = true
	return nil
}

// SetClipScene assigns (or clears, with nil) a clip's scene index.
func (g *SessionGraph) SetClipScene(h Handle, scene *uint32) error {
	_, c, ok := g.findClip(h)
	if !ok {
		return g.fail(telemetry.StatusNotFound, "no such clip")
	}
	c.SceneIndex = scene
	g.Dirty = true
	return nil
}

// RegisterClipAudio attaches sample data to a clip.
func (g *SessionGraph) RegisterClipAudio(h Handle, audio *ClipAudio) error {
	_, c, ok := g.findClip(h)
	if !ok {
		return g.fail(telemetry.StatusNotFound, "no such clip")
	}
	c.Audio = audio
	return nil
}

// AddMarkerSet appends a named marker set.
func (g *SessionGraph) AddMarkerSet(name string, markers []Marker) Handle {
	ms := &MarkerSet{Name: name, Markers: markers}
	h := g.markerSets.add(ms)
	ms.Handle = h
	g.markerOrder = append(g.markerOrder, h)
	return h
}

// MarkerSets returns marker sets in insertion order.
func (g *SessionGraph) MarkerSets() []*MarkerSet {
	out := make([]*MarkerSet, 0, len(g.markerOrder))
	for _, h := range g.markerOrder {
		if ms, ok := g.markerSets.get(h); ok {
			out = append(out, ms)
		}
	}
	return out
}

// AddPlaylistLane appends a playlist lane.
func (g *SessionGraph) AddPlaylistLane(name string, isActive bool) Handle {
	l := &PlaylistLane{Name: name, IsActive: isActive}
	h := g.lanes.add(l)
	l.Handle = h
	g.laneOrder = append(g.laneOrder, h)
	return h
}

// PlaylistLanes returns playlist lanes in insertion order.
func (g *SessionGraph) PlaylistLanes() []*PlaylistLane {
	out := make([]*PlaylistLane, 0, len(g.laneOrder))
	for _, h := range g.laneOrder {
		if l, ok := g.lanes.get(h); ok {
			out = append(out, l)
		}
	}
	return out
}

// CommitClipGrid sorts tracks by name (stable) and, within each track,
// clips by (start, name) (stable); recomputes the session range; clears
// the dirty flag. Idempotent when already clean (spec §4.1).
func (g *SessionGraph) CommitClipGrid() {
	sort.SliceStable(g.trackOrder, func(i, j int) bool {
		ti, _ := g.tracks.get(g.trackOrder[i])
		tj, _ := g.tracks.get(g.trackOrder[j])
		return ti.Name < tj.Name
	})
	for _, th := range g.trackOrder {
		t, _ := g.tracks.get(th)
		sort.SliceStable(t.Clips, func(i, j int) bool {
			a, b := t.Clips[i], t.Clips[j]
			if a.StartBeats != b.StartBeats {
				return a.StartBeats < b.StartBeats
			}
			return a.Name < b.Name
		})
	}
	g.recomputeRangeFromClips()
	g.Dirty = false
}

func (g *SessionGraph) recomputeRangeFromClips() {
	min := math.Inf(1)
	max := math.Inf(-1)
	found := false
	for _, th := range g.trackOrder {
		t, _ := g.tracks.get(th)
		for _, c := range t.Clips {
			found = true
			if c.StartBeats < min {
				min = c.StartBeats
			}
			if end := c.StartBeats + c.LengthBeats; end > max {
				max = end
			}
		}
	}
	if !found {
		g.Start, g.End = 0, 0
		return
	}
	g.Start, g.End = min, max
}

// ValidateNoOverlaps reports an error (spec §3) if any track has two
// clips whose ranges overlap: clip.start+clip.length must be <= the next
// clip's start, assuming clips are sorted by start.
func (g *SessionGraph) ValidateNoOverlaps() error {
	for _, th := range g.trackOrder {
		t, _ := g.tracks.get(th)
		ordered := append([]*Clip(nil), t.Clips...)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].StartBeats < ordered[j].StartBeats })
		for i := 1; i < len(ordered); i++ {
			prev, cur := ordered[i-1], ordered[i]
			if prev.StartBeats+prev.LengthBeats > cur.StartBeats {
				return g.fail(telemetry.StatusInvalidArgument, "overlapping clips in track "+t.Name)
			}
		}
	}
	return nil
}
