// Package abi implements the stable ABI Layer (C12): versioned
// C-style API tables, capability negotiation, opaque handle
// marshaling, and failure-to-status conversion at the boundary
// (spec §4.10).
//
// A real C ABI would export these tables through cgo; this module
// stops at the Go-native boundary the spec's design notes call for
// (§9: "model as arena-allocated entities with integer handles...
// this avoids the reinterpret-pointer pattern while preserving the C
// ABI"). Every exported table method still behaves as the C surface
// would: inputs are validated, panics never escape, and every
// failure is reported as an orpheus_status.
package abi

import (
	"sync"

	"orpheuscore/internal/render"
	"orpheuscore/internal/session"
	"orpheuscore/internal/sessionio"
	"orpheuscore/internal/telemetry"
)

// currentMajor/currentMinor identify this build's ABI version (spec
// §4.10, §8 "ABI negotiation").
const (
	currentMajor uint32 = 1
	currentMinor uint32 = 0
)

// Status is the ABI-facing result code every table function returns,
// aliased from telemetry.Status so the two taxonomies never drift
// apart.
type Status = telemetry.Status

// SessionHandle is an opaque handle to a SessionGraph owned by this
// package's runtime, distinct from the session package's own Track
// and Clip handles (spec §3: "created by the ABI session.create,
// destroyed by session.destroy").
type SessionHandle uint64

// TrackHandle and ClipHandle pass the underlying session.Handle
// through unchanged; the ABI boundary never re-encodes them, since
// they're already arena indices rather than pointers.
type TrackHandle = session.Handle
type ClipHandle = session.Handle

// Capability bits advertised in each table's leading Caps field (spec
// §4.10: "Capability bits advertise optional behaviors (e.g., scene
// triggers).").
const (
	CapSessionBasic     uint64 = 1 << 0
	CapClipGridBasic    uint64 = 1 << 0
	CapClipGridScenes   uint64 = 1 << 1
	CapRenderClick      uint64 = 1 << 0
	CapRenderTracks     uint64 = 1 << 1
)

// runtime owns every live session behind an arena of opaque
// SessionHandles. It is process-wide, mirroring telemetry.Hub's own
// singleton lifecycle (spec §5: "Global mutable state... process-wide").
type runtime struct {
	mu       sync.Mutex
	next     uint64
	sessions map[SessionHandle]*session.SessionGraph
	hub      *telemetry.Hub
}

func newRuntime(hub *telemetry.Hub) *runtime {
	if hub == nil {
		hub = telemetry.Default()
	}
	return &runtime{sessions: make(map[SessionHandle]*session.SessionGraph), hub: hub}
}

var defaultRuntime = newRuntime(nil)

func (r *runtime) add(g *session.SessionGraph) SessionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := SessionHandle(r.next)
	r.sessions[h] = g
	return h
}

func (r *runtime) get(h SessionHandle) (*session.SessionGraph, bool) {
	if h == 0 {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.sessions[h]
	return g, ok
}

func (r *runtime) remove(h SessionHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[h]; !ok {
		return false
	}
	delete(r.sessions, h)
	return true
}

// guard runs fn, converting any panic into StatusInternalError and a
// telemetry log line, matching spec §9's "every ABI function is
// wrapped in a guard that maps any panic/failure to an orpheus_status;
// never let a failure escape the C boundary." Any *telemetry.Error fn
// returns is translated to its own status; any other error is
// InternalError.
func (r *runtime) guard(op string, fn func() error) (status Status) {
	defer func() {
		if rec := recover(); rec != nil {
			status = telemetry.StatusInternalError
			r.hub.Log(telemetry.ComponentABI, telemetry.LevelError, op+" panicked", map[string]interface{}{"recovered": rec})
		}
	}()
	err := fn()
	if err == nil {
		return telemetry.StatusOK
	}
	status = statusFromError(err)
	r.hub.LogStatus(telemetry.ComponentABI, status, op+": "+err.Error())
	return status
}

func statusFromError(err error) Status {
	if tErr, ok := err.(*telemetry.Error); ok {
		return tErr.Status
	}
	return telemetry.StatusInternalError
}

// SessionAPIV1 mirrors the spec's session_api_v1 table: session
// lifecycle, track management, tempo, and transport-state readback
// (spec §6 "ABI C surface").
type SessionAPIV1 struct {
	Caps uint64

	Create func(name string, tempoBPM, startBeats, endBeats float64, sampleRateHz uint32, bitDepth uint16, dither bool) (SessionHandle, Status)
	Destroy func(h SessionHandle) Status
	AddTrack func(h SessionHandle, name string) (TrackHandle, Status)
	RemoveTrack func(h SessionHandle, track TrackHandle) Status
	SetTempo func(h SessionHandle, bpm float64) Status
	GetTransportState func(h SessionHandle) (session.TransportSnapshot, Status)
}

// ClipGridAPIV1 mirrors clipgrid_api_v1: clip editing, commit, scene
// triggers, and arrangement commit (spec §6).
type ClipGridAPIV1 struct {
	Caps uint64

	AddClip func(h SessionHandle, track TrackHandle, name string, start, length float64) (ClipHandle, Status)
	RemoveClip func(h SessionHandle, clip ClipHandle) Status
	SetClipStart func(h SessionHandle, clip ClipHandle, start float64) Status
	SetClipLength func(h SessionHandle, clip ClipHandle, length float64) Status
	SetClipScene func(h SessionHandle, clip ClipHandle, sceneIndex uint32, hasScene bool) Status
	Commit func(h SessionHandle) Status
	TriggerScene func(h SessionHandle, sceneIndex uint32, positionBeats float64, gridBeats, toleranceBeats float64) Status
	EndScene func(h SessionHandle, sceneIndex uint32, positionBeats float64, gridBeats, toleranceBeats float64) Status
	CommitArrangement func(h SessionHandle, fallbackSceneLengthBeats *float64) ([]session.CommittedClip, Status)
}

// RenderAPIV1 mirrors render_api_v1: click-track and track-stem
// rendering (spec §6).
type RenderAPIV1 struct {
	Caps uint64

	RenderClick func(h SessionHandle, spec render.ClickSpec) (string, Status)
	RenderTracks func(h SessionHandle, tracks []TrackHandle, spec render.Spec) ([]string, Status)
}

// GetSessionAPIV1 is the session_api_v1 factory (spec §4.10,
// "get_abi_v1(want_major, *got_major, *got_minor)"): returns nil iff
// wantMajor doesn't match this build's major version; gotMajor and
// gotMinor always report this build's version regardless.
func GetSessionAPIV1(wantMajor uint32) (table *SessionAPIV1, gotMajor, gotMinor uint32) {
	gotMajor, gotMinor = currentMajor, currentMinor
	if wantMajor != currentMajor {
		return nil, gotMajor, gotMinor
	}
	r := defaultRuntime
	return &SessionAPIV1{
		Caps: CapSessionBasic,
		Create: func(name string, tempoBPM, startBeats, endBeats float64, sampleRateHz uint32, bitDepth uint16, dither bool) (SessionHandle, Status) {
			var h SessionHandle
			status := r.guard("session.create", func() error {
				g, err := session.New(name, tempoBPM, startBeats, endBeats,
					session.RenderSpec{SampleRateHz: sampleRateHz, BitDepth: bitDepth, Dither: dither}, r.hub)
				if err != nil {
					return err
				}
				h = r.add(g)
				return nil
			})
			return h, status
		},
		Destroy: func(h SessionHandle) Status {
			return r.guard("session.destroy", func() error {
				if !r.remove(h) {
					return telemetry.New(telemetry.StatusInvalidHandle, "session.destroy: unknown handle")
				}
				return nil
			})
		},
		AddTrack: func(h SessionHandle, name string) (TrackHandle, Status) {
			var th TrackHandle
			status := r.guard("session.add_track", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "session.add_track: unknown session handle")
				}
				th = g.AddTrack(name)
				return nil
			})
			return th, status
		},
		RemoveTrack: func(h SessionHandle, track TrackHandle) Status {
			return r.guard("session.remove_track", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "session.remove_track: unknown session handle")
				}
				if !g.RemoveTrack(track) {
					return telemetry.New(telemetry.StatusNotFound, "session.remove_track: unknown track handle")
				}
				return nil
			})
		},
		SetTempo: func(h SessionHandle, bpm float64) Status {
			return r.guard("session.set_tempo", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "session.set_tempo: unknown session handle")
				}
				return g.SetTempo(bpm)
			})
		},
		GetTransportState: func(h SessionHandle) (session.TransportSnapshot, Status) {
			var snap session.TransportSnapshot
			status := r.guard("session.get_transport_state", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "session.get_transport_state: unknown session handle")
				}
				snap = g.Transport
				return nil
			})
			return snap, status
		},
	}, gotMajor, gotMinor
}

// GetClipGridAPIV1 is the clipgrid_api_v1 factory (spec §4.10).
func GetClipGridAPIV1(wantMajor uint32) (table *ClipGridAPIV1, gotMajor, gotMinor uint32) {
	gotMajor, gotMinor = currentMajor, currentMinor
	if wantMajor != currentMajor {
		return nil, gotMajor, gotMinor
	}
	r := defaultRuntime
	return &ClipGridAPIV1{
		Caps: CapClipGridBasic | CapClipGridScenes,
		AddClip: func(h SessionHandle, track TrackHandle, name string, start, length float64) (ClipHandle, Status) {
			var ch ClipHandle
			status := r.guard("clipgrid.add_clip", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "clipgrid.add_clip: unknown session handle")
				}
				var err error
				ch, err = g.AddClip(track, name, start, length)
				return err
			})
			return ch, status
		},
		RemoveClip: func(h SessionHandle, clip ClipHandle) Status {
			return r.guard("clipgrid.remove_clip", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "clipgrid.remove_clip: unknown session handle")
				}
				if !g.RemoveClip(clip) {
					return telemetry.New(telemetry.StatusNotFound, "clipgrid.remove_clip: unknown clip handle")
				}
				return nil
			})
		},
		SetClipStart: func(h SessionHandle, clip ClipHandle, start float64) Status {
			return r.guard("clipgrid.set_clip_start", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "clipgrid.set_clip_start: unknown session handle")
				}
				return g.SetClipStart(clip, start)
			})
		},
		SetClipLength: func(h SessionHandle, clip ClipHandle, length float64) Status {
			return r.guard("clipgrid.set_clip_length", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "clipgrid.set_clip_length: unknown session handle")
				}
				return g.SetClipLength(clip, length)
			})
		},
		SetClipScene: func(h SessionHandle, clip ClipHandle, sceneIndex uint32, hasScene bool) Status {
			return r.guard("clipgrid.set_clip_scene", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "clipgrid.set_clip_scene: unknown session handle")
				}
				if !hasScene {
					return g.SetClipScene(clip, nil)
				}
				scene := sceneIndex
				return g.SetClipScene(clip, &scene)
			})
		},
		Commit: func(h SessionHandle) Status {
			return r.guard("clipgrid.commit", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "clipgrid.commit: unknown session handle")
				}
				g.CommitClipGrid()
				return g.ValidateNoOverlaps()
			})
		},
		TriggerScene: func(h SessionHandle, sceneIndex uint32, positionBeats float64, gridBeats, toleranceBeats float64) Status {
			return r.guard("clipgrid.trigger_scene", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "clipgrid.trigger_scene: unknown session handle")
				}
				g.TriggerScene(sceneIndex, positionBeats, session.QuantizationWindow{GridBeats: gridBeats, ToleranceBeats: toleranceBeats})
				return nil
			})
		},
		EndScene: func(h SessionHandle, sceneIndex uint32, positionBeats float64, gridBeats, toleranceBeats float64) Status {
			return r.guard("clipgrid.end_scene", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "clipgrid.end_scene: unknown session handle")
				}
				g.EndScene(sceneIndex, positionBeats, session.QuantizationWindow{GridBeats: gridBeats, ToleranceBeats: toleranceBeats})
				return nil
			})
		},
		CommitArrangement: func(h SessionHandle, fallbackSceneLengthBeats *float64) ([]session.CommittedClip, Status) {
			var committed []session.CommittedClip
			status := r.guard("clipgrid.commit_arrangement", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "clipgrid.commit_arrangement: unknown session handle")
				}
				committed = g.CommitArrangement(fallbackSceneLengthBeats)
				return nil
			})
			return committed, status
		},
	}, gotMajor, gotMinor
}

// GetRenderAPIV1 is the render_api_v1 factory (spec §4.10).
func GetRenderAPIV1(wantMajor uint32) (table *RenderAPIV1, gotMajor, gotMinor uint32) {
	gotMajor, gotMinor = currentMajor, currentMinor
	if wantMajor != currentMajor {
		return nil, gotMajor, gotMinor
	}
	r := defaultRuntime
	return &RenderAPIV1{
		Caps: CapRenderClick | CapRenderTracks,
		RenderClick: func(h SessionHandle, spec render.ClickSpec) (string, Status) {
			var path string
			status := r.guard("render.render_click", func() error {
				if _, ok := r.get(h); !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "render.render_click: unknown session handle")
				}
				var err error
				path, err = render.RenderClick(spec)
				return err
			})
			return path, status
		},
		RenderTracks: func(h SessionHandle, tracks []TrackHandle, spec render.Spec) ([]string, Status) {
			var paths []string
			status := r.guard("render.render_tracks", func() error {
				g, ok := r.get(h)
				if !ok {
					return telemetry.New(telemetry.StatusInvalidHandle, "render.render_tracks: unknown session handle")
				}
				var err error
				paths, err = render.RenderTracks(g, tracks, spec)
				return err
			})
			return paths, status
		},
	}, gotMajor, gotMinor
}

// LoadSession parses session JSON and registers the resulting graph
// under a fresh SessionHandle, giving hosts a single call that covers
// both C4 (parse) and C12 (registration) — every CLI command that reads
// a session file uses it to get both at once.
func LoadSession(jsonText string) (SessionHandle, Status) {
	r := defaultRuntime
	var h SessionHandle
	status := r.guard("session.load", func() error {
		g, err := sessionio.ParseSession(jsonText, r.hub)
		if err != nil {
			return err
		}
		h = r.add(g)
		return nil
	})
	return h, status
}

// SessionGraph returns the live SessionGraph behind h, for callers
// (the CLI) that need read access beyond what the API tables expose.
func SessionGraph(h SessionHandle) (*session.SessionGraph, bool) {
	return defaultRuntime.get(h)
}
