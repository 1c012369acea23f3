// Package render implements the offline render pipeline (C6): mixing
// session tracks down to interleaved buffers, quantizing them to PCM, and
// writing WAV stems, plus the synthetic click-track generator.
package render

import (
	"math"
	"path/filepath"

	"orpheuscore/internal/pcm"
	"orpheuscore/internal/session"
	"orpheuscore/internal/sessionio"
	"orpheuscore/internal/telemetry"
)

// Spec carries the render request's variable inputs (spec §4.4): output
// directory, channel count, and the dither seed render_tracks XORs with
// each track index.
type Spec struct {
	OutputDirectory string
	Channels        int
	BaseSeed        uint64
}

func validateSpec(g *session.SessionGraph, spec Spec) error {
	if !(g.Tempo > 0) {
		return telemetry.New(telemetry.StatusInvalidArgument, "tempo_bpm must be > 0")
	}
	if g.End < g.Start {
		return telemetry.New(telemetry.StatusInvalidArgument, "end_beats must be >= start_beats")
	}
	if g.Render.SampleRateHz == 0 {
		return telemetry.New(telemetry.StatusInvalidArgument, "sample_rate_hz must be > 0")
	}
	if spec.Channels != 1 && spec.Channels != 2 {
		return telemetry.New(telemetry.StatusInvalidArgument, "channels must be 1 or 2")
	}
	switch g.Render.BitDepth {
	case 16, 24, 32:
	default:
		return telemetry.New(telemetry.StatusInvalidArgument, "bit_depth must be 16, 24, or 32")
	}
	return nil
}

// RenderTracks mixes each named track to its own interleaved buffer,
// quantizes it, and writes one WAV stem per track (spec §4.4). tracks
// names an ordered subset of g's tracks by handle; output paths are
// returned in the same order.
func RenderTracks(g *session.SessionGraph, tracks []session.Handle, spec Spec) ([]string, error) {
	if err := validateSpec(g, spec); err != nil {
		return nil, err
	}
	sessionFrames := session.BeatsToSamples(g.End-g.Start, g.Tempo, g.Render.SampleRateHz)
	if sessionFrames < 0 {
		sessionFrames = 0
	}

	outputs := make([]string, 0, len(tracks))
	for trackIndex, th := range tracks {
		t, ok := g.Track(th)
		if !ok {
			return nil, telemetry.New(telemetry.StatusNotFound, "no such track")
		}

		frameCount := sessionFrames
		for _, c := range t.Clips {
			end := session.BeatsToSamples(c.StartBeats-g.Start+c.LengthBeats, g.Tempo, g.Render.SampleRateHz)
			if end > frameCount {
				frameCount = end
			}
		}
		if frameCount < 0 {
			frameCount = 0
		}

		buffer := make([]float64, frameCount*int64(spec.Channels))
		for _, c := range t.Clips {
			if c.Audio == nil || len(c.Audio.Samples) == 0 {
				continue
			}
			routeMap := outputRouteMap(t.OutputMap, len(c.Audio.Samples), spec.Channels)
			offset := session.BeatsToSamples(c.StartBeats-g.Start, g.Tempo, g.Render.SampleRateHz)
			srcFrames := len(c.Audio.Samples[0])
			clipFrames := session.BeatsToSamples(c.LengthBeats, g.Tempo, g.Render.SampleRateHz)
			if int64(srcFrames) < clipFrames {
				clipFrames = int64(srcFrames)
			}
			for srcChannel, dstChannel := range routeMap {
				src := c.Audio.Samples[srcChannel]
				for frame := int64(0); frame < clipFrames; frame++ {
					dstFrame := offset + frame
					if dstFrame < 0 || dstFrame >= frameCount {
						continue
					}
					idx := dstFrame*int64(spec.Channels) + int64(dstChannel)
					buffer[idx] += src[frame]
				}
			}
		}

		seed := spec.BaseSeed ^ uint64(trackIndex)
		bytes, err := pcm.QuantizeInterleaved(buffer, g.Render.BitDepth, g.Render.Dither, seed)
		if err != nil {
			return nil, err
		}

		name := sessionio.MakeRenderStemFilename(g.Name, t.Name, g.Render.SampleRateHz, g.Render.BitDepth)
		path := filepath.Join(spec.OutputDirectory, name)
		if err := pcm.WriteWaveFile(path, g.Render.SampleRateHz, uint16(spec.Channels), g.Render.BitDepth, bytes); err != nil {
			return nil, err
		}
		outputs = append(outputs, path)
	}
	return outputs, nil
}

// outputRouteMap resolves routing for a clip's source channels to output
// channels (spec §4.4): the track's explicit OutputMap when present,
// otherwise an identity/fold map (source channel index modulo the output
// channel count).
func outputRouteMap(trackMap map[int]int, srcChannels, outputChannels int) []int {
	routes := make([]int, srcChannels)
	for src := 0; src < srcChannels; src++ {
		if trackMap != nil {
			if dst, ok := trackMap[src]; ok {
				routes[src] = dst
				continue
			}
		}
		routes[src] = src % outputChannels
	}
	return routes
}

const clickDurationSeconds = 0.03

// ClickSpec carries the metronome generator's variable inputs (spec
// §4.4).
type ClickSpec struct {
	OutputPath   string
	TempoBPM     float64
	SampleRateHz uint32
	Channels     int
	Bars         int
}

// RenderClick generates a synthetic metronome: a sine burst enveloped by
// a Hann window, emitted every beat for bars*4 beats, accented on each
// downbeat (gain x1.0 vs x0.75), identical on every channel (spec §4.4).
// Output is always 16-bit PCM WAV.
func RenderClick(spec ClickSpec) (string, error) {
	if !(spec.TempoBPM > 0) {
		return "", telemetry.New(telemetry.StatusInvalidArgument, "tempo_bpm must be > 0")
	}
	if spec.SampleRateHz == 0 {
		return "", telemetry.New(telemetry.StatusInvalidArgument, "sample_rate_hz must be > 0")
	}
	if spec.Channels != 1 && spec.Channels != 2 {
		return "", telemetry.New(telemetry.StatusInvalidArgument, "channels must be 1 or 2")
	}
	if spec.Bars <= 0 {
		spec.Bars = 1
	}

	secondsPerBeat := 60.0 / spec.TempoBPM
	beats := spec.Bars * 4
	totalFrames := int64(float64(beats)*secondsPerBeat*float64(spec.SampleRateHz)) + 1
	buffer := make([]float64, totalFrames*int64(spec.Channels))

	burstFrames := int(clickDurationSeconds * float64(spec.SampleRateHz))
	const clickToneHz = 1000.0

	for beat := 0; beat < beats; beat++ {
		startFrame := int64(float64(beat) * secondsPerBeat * float64(spec.SampleRateHz))
		gain := 0.75
		if beat%4 == 0 {
			gain = 1.0
		}
		for i := 0; i < burstFrames; i++ {
			frame := startFrame + int64(i)
			if frame >= totalFrames {
				break
			}
			t := float64(i) / float64(spec.SampleRateHz)
			window := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(burstFrames-1)))
			value := gain * window * math.Sin(2*math.Pi*clickToneHz*t)
			for ch := 0; ch < spec.Channels; ch++ {
				buffer[frame*int64(spec.Channels)+int64(ch)] = value
			}
		}
	}

	bytes, err := pcm.QuantizeInterleaved(buffer, 16, false, 0)
	if err != nil {
		return "", err
	}
	if err := pcm.WriteWaveFile(spec.OutputPath, spec.SampleRateHz, uint16(spec.Channels), 16, bytes); err != nil {
		return "", err
	}
	return spec.OutputPath, nil
}
