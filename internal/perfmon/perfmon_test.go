package perfmon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordCallbackUpdatesEMATowardInstantaneousLoad(t *testing.T) {
	m := NewMonitor(48000, time.Now())
	// 512 frames at 48kHz = 10.667ms buffer; a 5ms callback is ~47% load.
	m.RecordCallback(5*time.Millisecond, 512, 2)
	first := m.GetMetrics().CPUUsagePercent
	assert.Greater(t, first, 0.0)

	for i := 0; i < 50; i++ {
		m.RecordCallback(5*time.Millisecond, 512, 2)
	}
	settled := m.GetMetrics().CPUUsagePercent
	assert.InDelta(t, 46.875, settled, 1.0)
}

func TestRecordCallbackTracksPeakIndependentlyOfEMA(t *testing.T) {
	m := NewMonitor(48000, time.Now())
	m.RecordCallback(1*time.Millisecond, 512, 1)
	m.RecordCallback(9*time.Millisecond, 512, 1)
	m.RecordCallback(1*time.Millisecond, 512, 1)

	metrics := m.GetMetrics()
	assert.Greater(t, metrics.PeakCPUUsagePercent, metrics.CPUUsagePercent)
}

func TestResetPeakCPUUsageClampsToCurrentEMA(t *testing.T) {
	m := NewMonitor(48000, time.Now())
	m.RecordCallback(9*time.Millisecond, 512, 1)
	m.ResetPeakCPUUsage()
	after := m.GetMetrics()
	assert.Equal(t, after.CPUUsagePercent, after.PeakCPUUsagePercent)
}

func TestRecordUnderrunIncrementsCount(t *testing.T) {
	m := NewMonitor(48000, time.Now())
	m.RecordUnderrun()
	m.RecordUnderrun()
	assert.Equal(t, uint32(2), m.GetMetrics().BufferUnderrunCount)

	m.ResetUnderrunCount()
	assert.Equal(t, uint32(0), m.GetMetrics().BufferUnderrunCount)
}

func TestGetMetricsReportsActiveClipCountAndTotalSamples(t *testing.T) {
	m := NewMonitor(48000, time.Now())
	m.RecordCallback(1*time.Millisecond, 256, 3)
	m.RecordCallback(1*time.Millisecond, 256, 5)

	metrics := m.GetMetrics()
	assert.Equal(t, uint32(5), metrics.ActiveClipCount)
	assert.Equal(t, uint64(512), metrics.TotalSamplesProcessed)
}

func TestLatencyMsReflectsMostRecentBufferSize(t *testing.T) {
	m := NewMonitor(48000, time.Now())
	m.RecordCallback(1*time.Millisecond, 480, 0)
	assert.InDelta(t, 10.0, m.GetMetrics().LatencyMs, 0.01)
}

func TestCallbackTimingHistogramBucketsByDuration(t *testing.T) {
	m := NewMonitor(48000, time.Now())
	m.RecordCallback(300*time.Microsecond, 2048, 0) // <= 0.5ms bucket
	m.RecordCallback(3*time.Millisecond, 2048, 0)    // <= 5ms bucket
	m.RecordCallback(100*time.Millisecond, 2048, 0)  // overflow bucket

	hist := m.GetCallbackTimingHistogram()
	assert.Len(t, hist, 7)
	assert.Equal(t, uint64(1), hist[0].Count)
	assert.Equal(t, uint64(1), hist[3].Count)
	assert.Equal(t, uint64(1), hist[6].Count)
}

func TestUptimeSecondsAdvancesFromStartedAt(t *testing.T) {
	start := time.Now().Add(-2 * time.Second)
	m := NewMonitor(48000, start)
	assert.GreaterOrEqual(t, m.GetMetrics().UptimeSeconds, 2.0)
}
