// Package perfmon implements the Performance Monitor (C11): atomic
// counters updated by the audio thread every buffer and read by the UI
// thread without locks (spec §4.9).
package perfmon

import (
	"math"
	"sync/atomic"
	"time"
)

// histogramBucketsMs are the upper bounds of the seven callback-timing
// buckets (spec §4.9: "0.5/1/2/5/10/20/50+ ms").
var histogramBucketsMs = [7]float64{0.5, 1, 2, 5, 10, 20, 50}

// emaAlpha is the smoothing factor for cpu_usage_percent's exponential
// moving average (spec §4.9: "EMA α=0.1").
const emaAlpha = 0.1

// Metrics is an atomic snapshot of the monitor's state (spec §4.9
// "PerformanceMetrics").
type Metrics struct {
	CPUUsagePercent      float64
	LatencyMs            float64
	BufferUnderrunCount  uint32
	ActiveClipCount      uint32
	TotalSamplesProcessed uint64
	UptimeSeconds        float64
	PeakCPUUsagePercent  float64
}

// Monitor tracks real-time audio-processing performance. Every field
// touched by RecordCallback is a plain atomic so the audio thread never
// blocks and GetMetrics never allocates (spec §4.9: "getMetrics() is
// < 500 ns, reads only atomics").
type Monitor struct {
	sampleRateHz float64
	startedAt    time.Time

	cpuUsageBits atomic.Uint64 // float64 bits, EMA of callback_us/buffer_us*100
	peakCPUBits  atomic.Uint64 // float64 bits

	bufferUnderrunCount  atomic.Uint32
	activeClipCount      atomic.Uint32
	totalSamplesProcessed atomic.Uint64
	lastBufferFrames     atomic.Uint64

	histogram [7]atomic.Uint64
}

// NewMonitor constructs a Monitor for a stream running at sampleRateHz,
// started at startedAt (the caller-supplied clock origin, so tests can
// control uptime without sleeping).
func NewMonitor(sampleRateHz uint32, startedAt time.Time) *Monitor {
	return &Monitor{sampleRateHz: float64(sampleRateHz), startedAt: startedAt}
}

// RecordCallback is called once per audio buffer (spec §4.9):
// callbackDuration is how long processAudio actually took and frames
// is the buffer size it processed; both feed the CPU-usage EMA, the
// peak tracker, and the timing histogram.
func (m *Monitor) RecordCallback(callbackDuration time.Duration, frames int, activeClips int) {
	if m.sampleRateHz <= 0 || frames <= 0 {
		return
	}
	bufferSeconds := float64(frames) / m.sampleRateHz
	bufferUs := bufferSeconds * 1e6
	callbackUs := float64(callbackDuration.Microseconds())

	instantaneous := 0.0
	if bufferUs > 0 {
		instantaneous = callbackUs / bufferUs * 100
	}

	prevEMA := math.Float64frombits(m.cpuUsageBits.Load())
	newEMA := prevEMA + emaAlpha*(instantaneous-prevEMA)
	m.cpuUsageBits.Store(math.Float64bits(newEMA))

	for {
		peak := math.Float64frombits(m.peakCPUBits.Load())
		if instantaneous <= peak {
			break
		}
		if m.peakCPUBits.CompareAndSwap(math.Float64bits(peak), math.Float64bits(instantaneous)) {
			break
		}
	}

	m.totalSamplesProcessed.Add(uint64(frames))
	m.activeClipCount.Store(uint32(activeClips))
	m.lastBufferFrames.Store(uint64(frames))
	m.recordHistogram(callbackUs / 1000)
}

func (m *Monitor) recordHistogram(callbackMs float64) {
	for i, upperBound := range histogramBucketsMs {
		if callbackMs <= upperBound {
			m.histogram[i].Add(1)
			return
		}
	}
	m.histogram[len(m.histogram)-1].Add(1)
}

// RecordUnderrun increments the dropout counter (spec §4.9
// "buffer_underrun_count").
func (m *Monitor) RecordUnderrun() {
	m.bufferUnderrunCount.Add(1)
}

// GetMetrics returns an atomic snapshot (spec §4.9 getMetrics).
func (m *Monitor) GetMetrics() Metrics {
	return Metrics{
		CPUUsagePercent:       math.Float64frombits(m.cpuUsageBits.Load()),
		LatencyMs:             m.currentLatencyMs(),
		BufferUnderrunCount:   m.bufferUnderrunCount.Load(),
		ActiveClipCount:       m.activeClipCount.Load(),
		TotalSamplesProcessed: m.totalSamplesProcessed.Load(),
		UptimeSeconds:         time.Since(m.startedAt).Seconds(),
		PeakCPUUsagePercent:   math.Float64frombits(m.peakCPUBits.Load()),
	}
}

// currentLatencyMs reports the most recently recorded buffer's nominal
// latency (spec §4.9: "buffer_size / sample_rate * 1000").
func (m *Monitor) currentLatencyMs() float64 {
	if m.sampleRateHz <= 0 {
		return 0
	}
	return float64(m.lastBufferFrames.Load()) / m.sampleRateHz * 1000
}

// ResetUnderrunCount resets the dropout counter to zero (spec §4.9).
func (m *Monitor) ResetUnderrunCount() {
	m.bufferUnderrunCount.Store(0)
}

// ResetPeakCPUUsage resets the peak tracker to the current EMA value
// (spec §4.9).
func (m *Monitor) ResetPeakCPUUsage() {
	m.peakCPUBits.Store(m.cpuUsageBits.Load())
}

// HistogramBucket is one {bucketMs, count} pair (spec §4.9
// "getCallbackTimingHistogram").
type HistogramBucket struct {
	BucketMs float64
	Count    uint64
}

// GetCallbackTimingHistogram returns the accumulated histogram (spec
// §4.9).
func (m *Monitor) GetCallbackTimingHistogram() []HistogramBucket {
	out := make([]HistogramBucket, len(histogramBucketsMs))
	for i, upperBound := range histogramBucketsMs {
		out[i] = HistogramBucket{BucketMs: upperBound, Count: m.histogram[i].Load()}
	}
	return out
}
