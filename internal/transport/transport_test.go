package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orpheuscore/internal/routing"
	"orpheuscore/internal/telemetry"
)

// fakeReader is a minimal in-memory AudioReader for tests; channels
// holds one []float64 per channel, all of equal length.
type fakeReader struct {
	channels [][]float64
	pos      int64
	open     bool
}

func newFakeReader(channelCount int, frames int, value float64) *fakeReader {
	ch := make([][]float64, channelCount)
	for c := range ch {
		ch[c] = make([]float64, frames)
		for i := range ch[c] {
			ch[c][i] = value
		}
	}
	return &fakeReader{channels: ch, open: true}
}

func (f *fakeReader) IsOpen() bool      { return f.open }
func (f *fakeReader) Channels() int     { return len(f.channels) }
func (f *fakeReader) TotalFrames() int64 {
	if len(f.channels) == 0 {
		return 0
	}
	return int64(len(f.channels[0]))
}
func (f *fakeReader) Seek(frame int64) error {
	f.pos = frame
	return nil
}
func (f *fakeReader) ReadSamples(dst [][]float64) (int, error) {
	want := len(dst[0])
	total := f.TotalFrames()
	available := int(total - f.pos)
	if available < 0 {
		available = 0
	}
	if want > available {
		want = available
	}
	for c := 0; c < len(dst) && c < len(f.channels); c++ {
		copy(dst[c][:want], f.channels[c][f.pos:f.pos+int64(want)])
	}
	f.pos += int64(want)
	return want, nil
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	matrix := routing.NewMatrix(routing.Config{
		NumChannels:        MaxActiveClips,
		NumGroups:          4,
		NumOutputs:         2,
		GainSmoothingMs:    0,
		ClippingProtection: true,
	}, 48000, 512)
	c := NewController(48000, matrix, telemetry.NewHub(64), 512)
	return c
}

func TestStartRequiresRegisteredClip(t *testing.T) {
	c := newTestController(t)
	err := c.Start(Handle(1))
	require.Error(t, err)
	var serr *telemetry.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, telemetry.StatusClipNotRegistered, serr.Status)
}

func TestStartRejectsZeroHandle(t *testing.T) {
	c := newTestController(t)
	err := c.Start(Handle(0))
	require.Error(t, err)
}

func TestProcessAudioMixesActiveClip(t *testing.T) {
	c := newTestController(t)
	reader := newFakeReader(1, 1000, 0.5)
	h := Handle(1)
	require.NoError(t, c.RegisterClipAudio(h, reader))
	require.NoError(t, c.Start(h))

	outputs := [][]float32{make([]float32, 256), make([]float32, 256)}
	c.ProcessAudio(outputs, 256)

	assert.True(t, c.IsClipPlaying(h))
	assert.Greater(t, outputs[0][200], float32(0))
}

func TestStartIsNoOpWhenAlreadyPlaying(t *testing.T) {
	c := newTestController(t)
	reader := newFakeReader(1, 1000, 0.5)
	h := Handle(1)
	require.NoError(t, c.RegisterClipAudio(h, reader))
	require.NoError(t, c.Start(h))
	outputs := [][]float32{make([]float32, 64), make([]float32, 64)}
	c.ProcessAudio(outputs, 64)

	require.NoError(t, c.Start(h))
	events := c.ProcessCallbacks()
	started := 0
	for _, e := range events {
		if e.Kind == EventClipStarted {
			started++
		}
	}
	assert.Equal(t, 1, started)
}

func TestSeekFailsWhenClipNotActive(t *testing.T) {
	c := newTestController(t)
	reader := newFakeReader(1, 1000, 0.5)
	h := Handle(1)
	require.NoError(t, c.RegisterClipAudio(h, reader))

	err := c.Seek(h, 10)
	require.Error(t, err)
	var serr *telemetry.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, telemetry.StatusNotReady, serr.Status)
}

func TestUpdateGainRejectsOutOfRange(t *testing.T) {
	c := newTestController(t)
	reader := newFakeReader(1, 1000, 0.5)
	h := Handle(1)
	require.NoError(t, c.RegisterClipAudio(h, reader))

	err := c.UpdateGain(h, 50)
	require.Error(t, err)
	err = c.UpdateGain(h, -96)
	require.NoError(t, err)
}

func TestStopBeginsFadeOutThenRemoves(t *testing.T) {
	c := newTestController(t)
	reader := newFakeReader(1, 48000, 1.0)
	h := Handle(1)
	require.NoError(t, c.RegisterClipAudio(h, reader))
	require.NoError(t, c.Start(h))

	outputs := [][]float32{make([]float32, 256), make([]float32, 256)}
	c.ProcessAudio(outputs, 256)
	require.NoError(t, c.Stop(h))

	stopped := false
	for i := 0; i < 10 && !stopped; i++ {
		c.ProcessAudio(outputs, 256)
		for _, e := range c.ProcessCallbacks() {
			if e.Kind == EventClipStopped && e.Handle == h {
				stopped = true
			}
		}
	}
	assert.True(t, stopped)
	assert.False(t, c.IsClipPlaying(h))
}

func TestLoopEnabledWrapsToTrimIn(t *testing.T) {
	c := newTestController(t)
	reader := newFakeReader(1, 100, 1.0)
	h := Handle(1)
	require.NoError(t, c.RegisterClipAudio(h, reader))
	require.NoError(t, c.SetLoop(h, true))
	require.NoError(t, c.Start(h))

	outputs := [][]float32{make([]float32, 64), make([]float32, 64)}
	for i := 0; i < 3; i++ {
		c.ProcessAudio(outputs, 64)
	}

	looped := false
	for _, e := range c.ProcessCallbacks() {
		if e.Kind == EventClipLooped {
			looped = true
		}
	}
	assert.True(t, looped)
	assert.True(t, c.IsClipPlaying(h))
}

func TestCapacityDropEnqueuesBufferUnderrun(t *testing.T) {
	c := newTestController(t)
	outputs := [][]float32{make([]float32, 32), make([]float32, 32)}
	for i := 0; i < MaxActiveClips; i++ {
		h := Handle(i + 1)
		require.NoError(t, c.RegisterClipAudio(h, newFakeReader(1, 4800, 0.1)))
		require.NoError(t, c.Start(h))
		c.ProcessAudio(outputs, 32)
		c.ProcessCallbacks()
	}

	overflowHandle := Handle(MaxActiveClips + 100)
	require.NoError(t, c.RegisterClipAudio(overflowHandle, newFakeReader(1, 4800, 0.1)))
	require.NoError(t, c.Start(overflowHandle))
	c.ProcessAudio(outputs, 32)

	dropped := false
	for _, e := range c.ProcessCallbacks() {
		if e.Kind == EventBufferUnderrun && e.Handle == overflowHandle {
			dropped = true
		}
	}
	assert.True(t, dropped)
}

func TestGetCurrentPositionAdvancesBySamplesProcessed(t *testing.T) {
	c := newTestController(t)
	outputs := [][]float32{make([]float32, 128), make([]float32, 128)}
	c.ProcessAudio(outputs, 128)
	c.ProcessAudio(outputs, 128)
	pos := c.GetCurrentPosition(120)
	assert.Equal(t, int64(256), pos.Samples)
}
