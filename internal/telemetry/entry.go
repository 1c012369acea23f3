package telemetry

import (
	"fmt"
	"time"
)

// Level is the severity of a log entry, generalized from the teacher's
// internal/debug.LogLevel.
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

// Component identifies the subsystem that produced a log entry or event,
// generalized from the teacher's CPU/PPU/APU/... enum to the engine's own
// components (spec §2).
type Component string

const (
	ComponentSession   Component = "Session"
	ComponentSessionIO Component = "SessionIO"
	ComponentTransport Component = "Transport"
	ComponentRender    Component = "Render"
	ComponentRouting   Component = "Routing"
	ComponentScene     Component = "Scene"
	ComponentAudioFile Component = "AudioFile"
	ComponentABI       Component = "ABI"
	ComponentPerfMon   Component = "PerfMon"
	ComponentHost      Component = "Host"
	ComponentSystem    Component = "System"
)

// Entry is a single log-buffer record.
type Entry struct {
	Timestamp time.Time
	Component Component
	Level     Level
	Message   string
	Data      map[string]interface{}
}

func (e *Entry) Format() string {
	return fmt.Sprintf("[%s] [%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Component, e.Level, e.Message)
}

// Event is a structured telemetry event, emitted (per spec §7) whenever
// an OOM or InternalError condition is observed, and carrying a
// correlation ID so a host can line it up with the matching log line or
// audio-thread callback.
type Event struct {
	ID            string
	Timestamp     time.Time
	Component     Component
	Status        Status
	Message       string
	CorrelationID string
	Data          map[string]interface{}
}
