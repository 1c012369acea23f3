// Package routing implements the channel->group->output gain matrix
// (spec §4.6): each input channel routes into one or more group buses,
// group buses apply gain/mute/solo and are smoothed toward their target
// gain, then route into output buses.
package routing

import "math"

// SoloMode selects how solo is realized. Only Solo-In-Place is required
// by the core (spec §4.6); AFL is named for forward compatibility with a
// future capability bit but is not implemented here.
type SoloMode int

const (
	SoloInPlace SoloMode = iota
	AfterFaderListen
)

// MeteringMode selects the metering algorithm a host may read group/output
// levels with. The core tracks only Peak; RMS is a capability-gated
// extension point.
type MeteringMode int

const (
	MeteringPeak MeteringMode = iota
	MeteringRMS
)

// Config configures a Matrix (spec §4.6).
type Config struct {
	NumChannels        int
	NumGroups          int
	NumOutputs         int
	SoloMode           SoloMode
	MeteringMode       MeteringMode
	GainSmoothingMs    float64
	ClippingProtection bool
}

// DefaultConfig returns the spec's documented defaults: 4 groups, 2
// outputs, SIP solo, clipping protection enabled.
func DefaultConfig(numChannels int) Config {
	return Config{
		NumChannels:        numChannels,
		NumGroups:          4,
		NumOutputs:         2,
		SoloMode:           SoloInPlace,
		MeteringMode:       MeteringPeak,
		GainSmoothingMs:    10,
		ClippingProtection: true,
	}
}

// route is one channel->group gain assignment.
type route struct {
	channel int
	group   int
	gainDB  float64
}

// groupState holds a group bus's mutable mix parameters.
type groupState struct {
	targetGainLinear  float64
	currentGainLinear float64
	mute              bool
	solo              bool
	peakLevel         float64
}

// Matrix is the routing engine. Configuration mutators (SetRoute,
// SetGroupGain, SetGroupMute, SetGroupSolo) are intended to be called
// from the UI/control thread; all gain changes take effect at the next
// buffer boundary via the one-pole smoother in ProcessRouting (spec §4.6).
type Matrix struct {
	cfg    Config
	routes []route
	groups []groupState
	// outputRoutes[o] lists the groups feeding output o.
	outputRoutes [][]int
	sampleRate   float64

	anySolo bool

	// maxFrames bounds the largest buffer ProcessRouting will ever be
	// called with; groupBus is pre-allocated against it so the audio
	// thread never allocates (spec §4.10 "processAudio must not
	// allocate"; §4.13 "pointer arrays for routing" are pre-allocated at
	// controller construction), matching transport.Controller's own
	// readBuf/scratch pattern.
	maxFrames int
	groupBus  [][]float64
}

// defaultMaxFrames is used when NewMatrix is called without an explicit
// buffer-size bound (e.g. existing callers constructing a Matrix before
// the controller's own maxFrames is known).
const defaultMaxFrames = 4096

// NewMatrix constructs a Matrix and wires every group to every output by
// default (the common stereo-bus case). maxFrames bounds the largest
// buffer ProcessRouting will ever be called with; pass 0 to accept
// defaultMaxFrames.
func NewMatrix(cfg Config, sampleRateHz uint32, maxFrames int) *Matrix {
	if cfg.NumGroups <= 0 {
		cfg.NumGroups = 4
	}
	if cfg.NumOutputs <= 0 {
		cfg.NumOutputs = 2
	}
	if maxFrames <= 0 {
		maxFrames = defaultMaxFrames
	}
	m := &Matrix{
		cfg:        cfg,
		groups:     make([]groupState, cfg.NumGroups),
		sampleRate: float64(sampleRateHz),
		maxFrames:  maxFrames,
	}
	for i := range m.groups {
		m.groups[i].targetGainLinear = 1
		m.groups[i].currentGainLinear = 1
	}
	m.outputRoutes = make([][]int, cfg.NumOutputs)
	for o := range m.outputRoutes {
		for g := 0; g < cfg.NumGroups; g++ {
			m.outputRoutes[o] = append(m.outputRoutes[o], g)
		}
	}
	m.groupBus = make([][]float64, cfg.NumGroups)
	for g := range m.groupBus {
		m.groupBus[g] = make([]float64, maxFrames)
	}
	return m
}

// SetRoute assigns channel c to group g with the given dB gain. Passing
// the same channel again replaces its prior route to that group.
func (m *Matrix) SetRoute(channel, group int, gainDB float64) {
	for i, r := range m.routes {
		if r.channel == channel && r.group == group {
			m.routes[i].gainDB = gainDB
			return
		}
	}
	m.routes = append(m.routes, route{channel: channel, group: group, gainDB: gainDB})
}

// SetChannelGroup routes channel exclusively to group at 0 dB, removing
// any route previously assigned to that channel. Used by callers (such
// as the transport, whose scratch channels are reassigned to a
// different active clip's group every buffer) that model one channel as
// feeding at most one group at a time.
func (m *Matrix) SetChannelGroup(channel, group int) {
	kept := m.routes[:0]
	for _, r := range m.routes {
		if r.channel == channel {
			continue
		}
		kept = append(kept, r)
	}
	m.routes = append(kept, route{channel: channel, group: group, gainDB: 0})
}

// SetGroupGain sets group g's target gain in dB; it is reached by
// one-pole smoothing over GainSmoothingMs (spec §4.6 step 2).
func (m *Matrix) SetGroupGain(group int, gainDB float64) {
	if group < 0 || group >= len(m.groups) {
		return
	}
	m.groups[group].targetGainLinear = dbToLinear(gainDB)
}

// SetGroupMute sets group g's mute state.
func (m *Matrix) SetGroupMute(group int, mute bool) {
	if group < 0 || group >= len(m.groups) {
		return
	}
	m.groups[group].mute = mute
}

// SetGroupSolo sets group g's solo state (Solo-In-Place: only soloed
// groups are audible when any group is soloed).
func (m *Matrix) SetGroupSolo(group int, solo bool) {
	if group < 0 || group >= len(m.groups) {
		return
	}
	m.groups[group].solo = solo
	m.anySolo = false
	for _, gr := range m.groups {
		if gr.solo {
			m.anySolo = true
			break
		}
	}
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// smoothingCoefficient returns the per-sample one-pole coefficient for
// the configured smoothing time constant, i.e. the fraction of the
// remaining gap to the target gain closed on each sample.
func (m *Matrix) smoothingCoefficient() float64 {
	if m.cfg.GainSmoothingMs <= 0 || m.sampleRate <= 0 {
		return 1
	}
	tau := m.cfg.GainSmoothingMs / 1000 * m.sampleRate
	if tau <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/tau)
}

// ProcessRouting implements spec §4.6's four-step algorithm: accumulate
// inputs into group buses, apply group gain/mute/solo with smoothing,
// accumulate groups into outputs, and optionally clamp to [-1, +1].
// inputs and outputs are non-interleaved [][]float32 buffers (one
// slice per channel/output, each frames long).
func (m *Matrix) ProcessRouting(inputs [][]float32, outputs [][]float32, frames int) {
	if frames > m.maxFrames {
		frames = m.maxFrames
	}
	groupBus := m.groupBus
	for g := range groupBus {
		bus := groupBus[g]
		for i := 0; i < frames; i++ {
			bus[i] = 0
		}
	}

	for _, r := range m.routes {
		if r.channel < 0 || r.channel >= len(inputs) || r.group < 0 || r.group >= len(groupBus) {
			continue
		}
		gain := dbToLinear(r.gainDB)
		in := inputs[r.channel]
		bus := groupBus[r.group]
		for i := 0; i < frames && i < len(in); i++ {
			bus[i] += float64(in[i]) * gain
		}
	}

	coeff := m.smoothingCoefficient()
	for g := range m.groups {
		gr := &m.groups[g]
		audible := !gr.mute && (!m.anySolo || gr.solo)
		bus := groupBus[g]
		peak := 0.0
		for i := 0; i < frames; i++ {
			gr.currentGainLinear += (gr.targetGainLinear - gr.currentGainLinear) * coeff
			sample := bus[i] * gr.currentGainLinear
			if !audible {
				sample = 0
			}
			bus[i] = sample
			if abs := math.Abs(sample); abs > peak {
				peak = abs
			}
		}
		gr.peakLevel = peak
	}

	for o, out := range outputs {
		for i := 0; i < frames; i++ {
			out[i] = 0
		}
		if o >= len(m.outputRoutes) {
			continue
		}
		for _, g := range m.outputRoutes[o] {
			bus := groupBus[g]
			for i := 0; i < frames; i++ {
				out[i] += float32(bus[i])
			}
		}
		if m.cfg.ClippingProtection {
			for i := 0; i < frames; i++ {
				if out[i] > 1 {
					out[i] = 1
				} else if out[i] < -1 {
					out[i] = -1
				}
			}
		}
	}
}

// GroupPeakLevel returns the last-processed-buffer peak level for group g.
func (m *Matrix) GroupPeakLevel(group int) float64 {
	if group < 0 || group >= len(m.groups) {
		return 0
	}
	return m.groups[group].peakLevel
}

// GroupGainDB returns group g's current target gain in dB, the inverse
// of SetGroupGain's dbToLinear conversion. Used by scene capture to
// round-trip group gain state (spec §6 "groupGains: [f32] (per-group
// dB)").
func (m *Matrix) GroupGainDB(group int) float64 {
	if group < 0 || group >= len(m.groups) {
		return 0
	}
	linear := m.groups[group].targetGainLinear
	if linear <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(linear)
}
