// Package transport implements the real-time transport controller (C9):
// a lock-free-ish UI->audio command ring, a fixed active-clip table
// touched only by the audio thread, fade envelopes, loop/seek/trim
// handling, and routing of each active clip's mixed-to-mono signal
// through the routing matrix (spec §4.7).
package transport

import (
	"sync"
	"sync/atomic"

	"orpheuscore/internal/routing"
	"orpheuscore/internal/telemetry"
)

// Controller is the transport. NewController pre-allocates the read and
// scratch buffers the audio thread touches, so ProcessAudio's per-buffer
// render path does not allocate (spec §4.7 "Performance envelope").
// Queueing a callback event appends to a slice and allocates whenever
// that slice grows, e.g. on the first event after ProcessCallbacks.
type Controller struct {
	sampleRateHz float64
	matrix       *routing.Matrix
	hub          *telemetry.Hub
	defaults     SessionDefaults

	metadataMu sync.Mutex
	metadata   map[Handle]*ClipMetadata

	activeMu sync.Mutex
	active   []activeClip

	commands chan command

	eventsMu sync.Mutex
	events   []Event
	dropped  atomic.Int64

	currentSample atomic.Int64

	maxFrames       int
	maxReadChannels int
	readBuf         [][]float64
	scratch         [][]float32
}

// NewController constructs a Controller. maxFrames bounds the largest
// buffer ProcessAudio will ever be called with; scratch buffers are
// sized against it up front.
func NewController(sampleRateHz uint32, matrix *routing.Matrix, hub *telemetry.Hub, maxFrames int) *Controller {
	if hub == nil {
		hub = telemetry.Default()
	}
	if maxFrames <= 0 {
		maxFrames = 2048
	}
	const maxReadChannels = 8
	readBuf := make([][]float64, maxReadChannels)
	for i := range readBuf {
		readBuf[i] = make([]float64, maxFrames)
	}
	scratch := make([][]float32, MaxActiveClips)
	for i := range scratch {
		scratch[i] = make([]float32, maxFrames)
	}
	return &Controller{
		sampleRateHz:    float64(sampleRateHz),
		matrix:          matrix,
		hub:             hub,
		defaults:        DefaultSessionDefaults(),
		metadata:        make(map[Handle]*ClipMetadata),
		commands:        make(chan command, CommandQueueCapacity),
		maxFrames:       maxFrames,
		maxReadChannels: maxReadChannels,
		readBuf:         readBuf,
		scratch:         scratch,
	}
}

func (c *Controller) fail(status telemetry.Status, msg string) error {
	err := telemetry.New(status, msg)
	c.hub.LogStatus(telemetry.ComponentTransport, status, msg)
	return err
}

// RegisterClipAudio binds reader to handle, seeding its metadata from
// SessionDefaults (spec §3 "New handles inherit a SessionDefaults
// record").
func (c *Controller) RegisterClipAudio(handle Handle, reader AudioReader) error {
	if handle == 0 {
		return c.fail(telemetry.StatusInvalidHandle, "handle must not be zero")
	}
	if reader == nil {
		return c.fail(telemetry.StatusInvalidArgument, "reader must not be nil")
	}
	c.metadataMu.Lock()
	defer c.metadataMu.Unlock()
	c.metadata[handle] = &ClipMetadata{
		Reader:         reader,
		ChannelCount:   reader.Channels(),
		TotalFrames:    reader.TotalFrames(),
		TrimInSamples:  0,
		TrimOutSamples: reader.TotalFrames(),
		FadeOutSeconds: c.defaults.FadeOutSeconds,
		FadeOutCurve:   c.defaults.FadeOutCurve,
		GainDB:         c.defaults.GainDB,
	}
	return nil
}

func (c *Controller) metadataFor(h Handle) (*ClipMetadata, bool) {
	c.metadataMu.Lock()
	defer c.metadataMu.Unlock()
	m, ok := c.metadata[h]
	return m, ok
}

func (c *Controller) isRegistered(h Handle) bool {
	_, ok := c.metadataFor(h)
	return ok
}

func (c *Controller) push(cmd command) error {
	select {
	case c.commands <- cmd:
		return nil
	default:
		return c.fail(telemetry.StatusInternalError, "command queue full")
	}
}

// Start posts a Start command; a no-op if handle is already playing
// (spec §4.7).
func (c *Controller) Start(h Handle) error {
	if h == 0 {
		return c.fail(telemetry.StatusInvalidHandle, "handle must not be zero")
	}
	if !c.isRegistered(h) {
		return c.fail(telemetry.StatusClipNotRegistered, "clip audio not registered")
	}
	if c.IsClipPlaying(h) {
		return nil
	}
	return c.push(command{kind: cmdStart, handle: h})
}

// Stop posts a Stop command for handle (spec §4.7).
func (c *Controller) Stop(h Handle) error {
	if h == 0 {
		return c.fail(telemetry.StatusInvalidHandle, "handle must not be zero")
	}
	return c.push(command{kind: cmdStop, handle: h})
}

// StopAll posts a StopAll command (spec §4.7).
func (c *Controller) StopAll() error {
	return c.push(command{kind: cmdStopAll})
}

// StopGroup posts a StopGroup command for the given group index (spec
// §4.7).
func (c *Controller) StopGroup(group uint8) error {
	return c.push(command{kind: cmdStopGroup, groupIndex: group})
}

// Seek posts a Seek command, failing synchronously with NotReady when
// handle is not currently active (spec §4.7).
func (c *Controller) Seek(h Handle, sample int64) error {
	if h == 0 {
		return c.fail(telemetry.StatusInvalidHandle, "handle must not be zero")
	}
	if !c.IsClipPlaying(h) {
		return c.fail(telemetry.StatusNotReady, "clip is not active")
	}
	return c.push(command{kind: cmdSeek, handle: h, seekSample: sample})
}

// Restart posts a Restart command: seeks to trim_in and fires
// onClipRestarted if active, otherwise behaves like Start and fires
// onClipStarted (spec §4.7).
func (c *Controller) Restart(h Handle) error {
	if h == 0 {
		return c.fail(telemetry.StatusInvalidHandle, "handle must not be zero")
	}
	if !c.isRegistered(h) {
		return c.fail(telemetry.StatusClipNotRegistered, "clip audio not registered")
	}
	return c.push(command{kind: cmdRestart, handle: h})
}

func validateGainDB(db float64) error {
	if db != db || db < -96 || db > 12 {
		return telemetry.New(telemetry.StatusInvalidParameter, "gain_db must be finite and within [-96, 12]")
	}
	return nil
}

// UpdateGain validates dB against [-96, +12] and posts an
// UpdateMetadata command (spec §4.7).
func (c *Controller) UpdateGain(h Handle, db float64) error {
	if err := validateGainDB(db); err != nil {
		c.hub.LogStatus(telemetry.ComponentTransport, telemetry.StatusInvalidParameter, err.Error())
		return err
	}
	return c.UpdateMetadata(h, MetadataUpdate{GainDB: float64Ptr(db)})
}

// UpdateTrim posts a trim update; clamping against file length and the
// in<out invariant happens when the command is applied, at the start of
// the next buffer (spec §4.7, ORP093).
func (c *Controller) UpdateTrim(h Handle, in, out int64) error {
	return c.UpdateMetadata(h, MetadataUpdate{TrimInSamples: int64Ptr(in), TrimOutSamples: int64Ptr(out)})
}

// UpdateFades posts a fade-parameter update (spec §4.7).
func (c *Controller) UpdateFades(h Handle, inSeconds, outSeconds float64, inCurve, outCurve FadeCurve) error {
	return c.UpdateMetadata(h, MetadataUpdate{
		FadeInSeconds:  float64Ptr(inSeconds),
		FadeOutSeconds: float64Ptr(outSeconds),
		FadeInCurve:    curvePtr(inCurve),
		FadeOutCurve:   curvePtr(outCurve),
	})
}

// SetLoop posts a loop-enabled update (spec §4.7).
func (c *Controller) SetLoop(h Handle, enabled bool) error {
	return c.UpdateMetadata(h, MetadataUpdate{LoopEnabled: boolPtr(enabled)})
}

// SetStopOthersOnPlay posts a stop-others-on-play update (spec §4.7).
func (c *Controller) SetStopOthersOnPlay(h Handle, enabled bool) error {
	return c.UpdateMetadata(h, MetadataUpdate{StopOthersOnPlay: boolPtr(enabled)})
}

// UpdateMetadata posts an atomic batch of field updates (spec §4.7),
// preserving each field's own validation rule.
func (c *Controller) UpdateMetadata(h Handle, update MetadataUpdate) error {
	if h == 0 {
		return c.fail(telemetry.StatusInvalidHandle, "handle must not be zero")
	}
	if !c.isRegistered(h) {
		return c.fail(telemetry.StatusClipNotRegistered, "clip audio not registered")
	}
	if update.GainDB != nil {
		if err := validateGainDB(*update.GainDB); err != nil {
			return err
		}
	}
	return c.push(command{kind: cmdUpdateMetadata, handle: h, update: update})
}

// findActiveLocked returns the index of handle in c.active, or -1.
// Caller must hold activeMu.
func (c *Controller) findActiveLocked(h Handle) int {
	for i := range c.active {
		if c.active[i].handle == h {
			return i
		}
	}
	return -1
}

// GetClipState reports handle's coarse playback state (spec §4.7).
func (c *Controller) GetClipState(h Handle) PlaybackState {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	i := c.findActiveLocked(h)
	if i < 0 {
		return PlaybackStopped
	}
	if c.active[i].isStopping {
		return PlaybackStopping
	}
	return PlaybackPlaying
}

// IsClipPlaying reports whether handle is active, playing or stopping
// (spec §4.7).
func (c *Controller) IsClipPlaying(h Handle) bool {
	state := c.GetClipState(h)
	return state == PlaybackPlaying || state == PlaybackStopping
}

// GetCurrentPosition reads the transport clock (spec §4.7).
func (c *Controller) GetCurrentPosition(tempoBPM float64) Position {
	samples := c.currentSample.Load()
	seconds := float64(samples) / c.sampleRateHz
	beats := 0.0
	if tempoBPM > 0 {
		beats = seconds * tempoBPM / 60.0
	}
	return Position{Samples: samples, Seconds: seconds, Beats: beats}
}

func (c *Controller) enqueueEvent(kind EventKind, h Handle) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	if len(c.events) >= EventQueueCapacity {
		c.events = c.events[1:]
		c.dropped.Add(1)
	}
	c.events = append(c.events, Event{Kind: kind, Handle: h, Position: c.GetCurrentPosition(0)})
}

// ProcessCallbacks drains and returns queued audio->UI events in FIFO
// order (spec §4.7); call periodically from any non-audio thread.
func (c *Controller) ProcessCallbacks() []Event {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	out := c.events
	c.events = nil
	return out
}

// DroppedEventCount reports how many callback events were discarded due
// to queue overflow (spec §4.7 concurrency model).
func (c *Controller) DroppedEventCount() int64 {
	return c.dropped.Load()
}
