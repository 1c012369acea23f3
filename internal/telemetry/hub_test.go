package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFiltersByMinLevel(t *testing.T) {
	h := NewHub(100)
	defer h.Shutdown()

	var mu sync.Mutex
	var seen []Entry
	h.SetCallbacks(func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e)
	}, nil, nil)

	h.Log(ComponentSession, LevelInfo, "should be filtered", nil)
	h.Log(ComponentSession, LevelError, "should pass", nil)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "should pass", seen[0].Message)
}

func TestComponentDisable(t *testing.T) {
	h := NewHub(100)
	defer h.Shutdown()
	h.SetComponentEnabled(ComponentSession, false)

	var mu sync.Mutex
	count := 0
	h.SetCallbacks(func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		count++
	}, nil, nil)

	h.Log(ComponentSession, LevelError, "dropped", nil)
	h.Log(ComponentTransport, LevelError, "kept", nil)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, time.Millisecond)
}

func TestEmitCarriesCorrelationID(t *testing.T) {
	h := NewHub(100)
	defer h.Shutdown()

	var got Event
	var mu sync.Mutex
	h.SetCallbacks(nil, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = e
	}, nil)

	ev := h.Emit(ComponentTransport, StatusInternalError, "queue full", nil)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got.ID != ""
	}, time.Second, time.Millisecond)

	assert.Equal(t, ev.ID, got.ID)
	assert.NotEmpty(t, got.CorrelationID)
	assert.Equal(t, StatusInternalError, got.Status)
}

func TestGetEntriesRingBuffer(t *testing.T) {
	h := NewHub(100)
	defer h.Shutdown()
	for i := 0; i < 5; i++ {
		h.Log(ComponentSystem, LevelError, "e", nil)
	}
	require.Eventually(t, func() bool {
		return len(h.GetEntries()) == 5
	}, time.Second, time.Millisecond)
}

func TestSeverityMapping(t *testing.T) {
	assert.Equal(t, LevelWarn, StatusInvalidArgument.Severity())
	assert.Equal(t, LevelError, StatusIoError.Severity())
	assert.Equal(t, LevelError, StatusOutOfMemory.Severity())
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	h := &Hub{logChan: make(chan Entry, 2)}

	h.enqueue(Entry{Message: "a"})
	h.enqueue(Entry{Message: "b"})
	h.enqueue(Entry{Message: "c"})

	assert.Equal(t, int64(1), h.DroppedEntryCount())
	first := <-h.logChan
	second := <-h.logChan
	assert.Equal(t, "b", first.Message)
	assert.Equal(t, "c", second.Message)
}

func TestEmitBypassesQueueAndFiltersForOutOfMemory(t *testing.T) {
	h := NewHub(100)
	defer h.Shutdown()
	h.SetComponentEnabled(ComponentTransport, false)
	h.SetMinLevel(LevelNone)

	h.Emit(ComponentTransport, StatusOutOfMemory, "oom", nil)

	require.Eventually(t, func() bool {
		return len(h.GetEntries()) == 1
	}, time.Second, time.Millisecond)
	entries := h.GetEntries()
	assert.Equal(t, "oom", entries[0].Message)
}

func TestEmitBypassesQueueAndFiltersForInternalError(t *testing.T) {
	h := NewHub(100)
	defer h.Shutdown()
	h.SetComponentEnabled(ComponentSession, false)
	h.SetMinLevel(LevelNone)

	h.Emit(ComponentSession, StatusInternalError, "internal failure", nil)

	entries := h.GetEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "internal failure", entries[0].Message)
}

func TestEmitOfNonCriticalStatusGoesThroughBoundedQueue(t *testing.T) {
	h := NewHub(100)
	defer h.Shutdown()
	h.SetComponentEnabled(ComponentSession, false)

	h.Emit(ComponentSession, StatusNotFound, "filtered by component disable", nil)

	// The component-disable filter applies to the best-effort path, so
	// nothing should land in the ring buffer.
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, h.GetEntries())
}
