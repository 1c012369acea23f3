// Package audiofile implements the audio-file reader capability set of
// spec §4.5 (C7): open/read_samples/seek/close/getCurrentPosition/isOpen,
// plus the extended waveform-peak and background-precompute variants.
package audiofile

import (
	"os"
	"sync"

	"github.com/go-audio/wav"

	"orpheuscore/internal/telemetry"
)

// Reader is a decoded, seekable audio source. read_samples is the only
// method safe to call from the audio thread; Open/Seek/Close/precompute
// require the file-lifecycle mutex (spec §4.5).
//
// The decoder eagerly decodes the full PCM payload at Open time rather
// than streaming chunk-by-chunk from disk: go-audio/wav's Decoder exposes
// whole-buffer (FullPCMBuffer) and fixed-size-chunk (PCMBuffer) reads but
// no frame-indexed seek primitive, so a seekable "streaming" reader is
// built here by decoding once and indexing into the resulting float
// buffer — the external behavior (seek/read/position) matches spec §4.5;
// only the internal I/O pattern trades a single up-front decode for
// simplified seeking.
type Reader struct {
	mu sync.Mutex

	channels     int
	sampleRateHz uint32
	totalFrames  int64
	// samples[c] holds channel c's samples, normalized to [-1, 1].
	samples [][]float64

	position int64
	open     bool

	waveformOnce  sync.Once
	waveformCache map[int][]peakPair
}

type peakPair struct {
	min, max float32
}

// Open decodes path (WAV only; AIFF/FLAC are Non-goals of this port) and
// positions the reader at frame 0.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, telemetry.Wrap(telemetry.StatusIoError, "unable to open audio file", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, telemetry.New(telemetry.StatusIoError, "not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, telemetry.Wrap(telemetry.StatusIoError, "failed to decode WAV PCM data", err)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	frameCount := len(buf.Data) / channels
	samples := make([][]float64, channels)
	for c := range samples {
		samples[c] = make([]float64, frameCount)
	}
	maxAmplitude := float64(int(1) << (uint(dec.BitDepth) - 1))
	if dec.BitDepth == 0 {
		maxAmplitude = float64(int(1) << 15)
	}
	for i, s := range buf.Data {
		c := i % channels
		frame := i / channels
		samples[c][frame] = float64(s) / maxAmplitude
	}

	return &Reader{
		channels:     channels,
		sampleRateHz: uint32(buf.Format.SampleRate),
		totalFrames:  int64(frameCount),
		samples:      samples,
		open:         true,
	}, nil
}

// IsOpen reports whether the reader has not yet been closed.
func (r *Reader) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Close releases the reader. Subsequent Seek and ReadSamples calls fail
// with IoError.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	r.samples = nil
	return nil
}

// Channels returns the decoded channel count.
func (r *Reader) Channels() int { return r.channels }

// SampleRateHz returns the file's native sample rate.
func (r *Reader) SampleRateHz() uint32 { return r.sampleRateHz }

// TotalFrames returns the total decoded frame count.
func (r *Reader) TotalFrames() int64 { return r.totalFrames }

// Seek clamps to [0, total_frames] and repositions the read cursor (spec
// §4.5).
func (r *Reader) Seek(frame int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return telemetry.New(telemetry.StatusIoError, "reader is closed")
	}
	if frame < 0 {
		frame = 0
	}
	if frame > r.totalFrames {
		frame = r.totalFrames
	}
	r.position = frame
	return nil
}

// GetCurrentPosition returns the current read cursor, in frames.
func (r *Reader) GetCurrentPosition() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

// ReadSamples reads up to len(dst[c]) frames per channel starting at the
// current position, advancing it by the frame count actually read. It is
// the only method the audio thread may call directly (spec §4.5).
func (r *Reader) ReadSamples(dst [][]float64) (framesRead int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return 0, telemetry.New(telemetry.StatusIoError, "reader is closed")
	}
	if len(dst) == 0 {
		return 0, nil
	}
	want := len(dst[0])
	available := int(r.totalFrames - r.position)
	if available < 0 {
		available = 0
	}
	if want > available {
		want = available
	}
	for c := 0; c < len(dst) && c < r.channels; c++ {
		copy(dst[c][:want], r.samples[c][r.position:r.position+int64(want)])
	}
	r.position += int64(want)
	return want, nil
}
