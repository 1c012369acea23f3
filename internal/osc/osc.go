// Package osc implements the Oscillator DSP leaf (C14): a
// sample-rate-agnostic, band-limited multi-waveform oscillator with
// unison voicing, a sub-oscillator, and linear FM (spec §2 C14).
package osc

import "math"

// Waveform selects the generated shape (spec §2 C14
// "multi-waveform"). PolyBLEP correction is applied to Square and
// Sawtooth so their discontinuities don't alias at audio sample
// rates; Sine needs no correction.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveSquare
	WaveSawtooth
	WaveNoise
)

// Config configures an Oscillator instance.
type Config struct {
	SampleRateHz float64
	Waveform     Waveform

	// UnisonVoices detunes additional copies of the fundamental by
	// +/- UnisonDetuneCents spread evenly across the voice count and
	// sums them, normalized by voice count (spec: "unison").
	UnisonVoices      int
	UnisonDetuneCents float64

	// SubOscillatorMix blends in a one-octave-down sine at this
	// linear gain (0 disables it; spec: "sub").
	SubOscillatorMix float64
}

// Oscillator generates band-limited audio. Not safe for concurrent use
// by multiple goroutines without external synchronization — matching
// the teacher's AudioChannel, which is likewise single-owner, stepped
// once per sample from one audio thread.
type Oscillator struct {
	cfg Config

	phase    []float64 // one phase accumulator per unison voice
	subPhase float64

	noiseLFSR uint16
}

// New constructs an Oscillator. Voice count and detune spread are
// resolved once here so GenerateSample never allocates.
func New(cfg Config) *Oscillator {
	if cfg.UnisonVoices < 1 {
		cfg.UnisonVoices = 1
	}
	o := &Oscillator{
		cfg:       cfg,
		phase:     make([]float64, cfg.UnisonVoices),
		noiseLFSR: 1,
	}
	return o
}

// detuneRatio returns the frequency multiplier for unison voice i of
// n, spreading voices evenly across +/- detuneCents (voice 0 of a
// single-voice oscillator is never detuned).
func detuneRatio(voice, voices int, detuneCents float64) float64 {
	if voices <= 1 {
		return 1
	}
	spread := float64(voice)/float64(voices-1)*2 - 1 // -1..+1
	cents := spread * detuneCents
	return math.Pow(2, cents/1200)
}

// GenerateSample returns one sample at the given fundamental
// frequency, optionally modulated by a linear FM input (spec:
// "FM"). fmModHz is added directly to the per-voice frequency before
// computing the phase increment (linear FM, not through-zero phase
// modulation).
func (o *Oscillator) GenerateSample(frequencyHz, fmModHz float64) float32 {
	if o.cfg.SampleRateHz <= 0 {
		return 0
	}
	var sum float64
	for i := range o.phase {
		voiceFreq := (frequencyHz + fmModHz) * detuneRatio(i, len(o.phase), o.cfg.UnisonDetuneCents)
		increment := voiceFreq / o.cfg.SampleRateHz
		sum += o.waveformAt(o.phase[i], increment)
		o.phase[i] = wrapPhase(o.phase[i] + increment)
	}
	sample := sum / float64(len(o.phase))

	if o.cfg.SubOscillatorMix > 0 {
		subIncrement := (frequencyHz + fmModHz) / 2 / o.cfg.SampleRateHz
		sample += math.Sin(2*math.Pi*o.subPhase) * o.cfg.SubOscillatorMix
		o.subPhase = wrapPhase(o.subPhase + subIncrement)
	}

	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	return float32(sample)
}

// wrapPhase keeps a normalized [0, 1) phase accumulator in range via
// subtraction rather than modulo, matching the teacher's
// floating-point-precision rationale for its own phase accumulator.
func wrapPhase(phase float64) float64 {
	for phase >= 1 {
		phase -= 1
	}
	for phase < 0 {
		phase += 1
	}
	return phase
}

func (o *Oscillator) waveformAt(phase, increment float64) float64 {
	switch o.cfg.Waveform {
	case WaveSquare:
		naive := 1.0
		if phase >= 0.5 {
			naive = -1.0
		}
		return naive - polyBLEP(phase, increment) + polyBLEP(wrapPhase(phase+0.5), increment)
	case WaveSawtooth:
		naive := 2*phase - 1
		return naive - polyBLEP(phase, increment)
	case WaveNoise:
		return o.noiseSample()
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// noiseSample steps a 15-bit LFSR once per sample, matching the
// teacher's AudioChannel noise generator exactly (spec leaves the
// noise algorithm unspecified beyond "multi-waveform").
func (o *Oscillator) noiseSample() float64 {
	feedback := (o.noiseLFSR & 1) ^ ((o.noiseLFSR >> 14) & 1)
	o.noiseLFSR = (o.noiseLFSR >> 1) | (feedback << 14)
	if o.noiseLFSR == 0 {
		o.noiseLFSR = 1
	}
	if o.noiseLFSR&1 != 0 {
		return 1
	}
	return -1
}

// polyBLEP returns the band-limiting correction term for a
// discontinuity at phase 0, sized to the current phase increment
// (dt). Standard two-sided polynomial approximation of the bandlimited
// step.
func polyBLEP(phase, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	if phase < dt {
		t := phase / dt
		return t + t - t*t - 1
	}
	if phase > 1-dt {
		t := (phase - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}
