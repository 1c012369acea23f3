// Package reconform implements the OTIO Reconform Plan (C15):
// Insert/Delete/Retime edit-decision-list (de)serialization consumed
// by hosts (spec §2 C15, §6 "Reconform plan JSON").
package reconform

import (
	"os"

	"orpheuscore/internal/jsonval"
	"orpheuscore/internal/telemetry"
)

// OperationKind discriminates the three reconform edit kinds. Go has
// no variant type, so Operation carries all three kinds'
// fields and Kind says which are populated (original_source models
// this as a std::variant; the JSON shape is unchanged).
type OperationKind int

const (
	KindInsert OperationKind = iota
	KindDelete
	KindRetime
)

func (k OperationKind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindDelete:
		return "delete"
	case KindRetime:
		return "retime"
	default:
		return "unknown"
	}
}

// TimeRange is a half-open span on the timeline, in seconds.
type TimeRange struct {
	StartSeconds    float64
	DurationSeconds float64
}

// Operation is one edit in a Plan. Target is populated for
// every kind; Source only for Insert; RetimedDurationSeconds only for
// Retime.
type Operation struct {
	Kind   OperationKind
	Note   string
	Target TimeRange

	Source TimeRange // Insert only

	RetimedDurationSeconds float64 // Retime only
}

// Plan is a sequence of edits against a named timeline (spec §6
// "Reconform plan JSON").
type Plan struct {
	Version      uint32
	TimelineName string
	Operations   []Operation
}

// Parse decodes the canonical reconform plan JSON (spec §6).
func Parse(jsonText string) (Plan, error) {
	v, err := jsonval.Parse(jsonText)
	if err != nil {
		return Plan{}, telemetry.Wrap(telemetry.StatusInvalidArgument, "malformed reconform plan json", err)
	}
	if v.Kind() != jsonval.KindObject {
		return Plan{}, telemetry.New(telemetry.StatusInvalidArgument, "reconform plan root must be an object")
	}

	plan := Plan{Version: 1}
	if versionVal, ok := v.Get("version"); ok {
		n, ok := versionVal.Number()
		if !ok {
			return Plan{}, telemetry.New(telemetry.StatusInvalidArgument, "plan.version must be a number")
		}
		if n < 0 {
			return Plan{}, telemetry.New(telemetry.StatusInvalidArgument, "plan.version out of range")
		}
		plan.Version = uint32(n)
	}

	timeline, err := requireString(v, "timeline")
	if err != nil {
		return Plan{}, err
	}
	plan.TimelineName = timeline

	opsVal, err := requireField(v, "operations")
	if err != nil {
		return Plan{}, err
	}
	opItems, ok := opsVal.Array()
	if !ok {
		return Plan{}, telemetry.New(telemetry.StatusInvalidArgument, "plan.operations must be an array")
	}

	plan.Operations = make([]Operation, 0, len(opItems))
	for _, opVal := range opItems {
		kindStr, err := requireString(opVal, "kind")
		if err != nil {
			return Plan{}, err
		}

		op := Operation{}
		if noteVal, ok := opVal.Get("note"); ok {
			note, ok := noteVal.String()
			if !ok {
				return Plan{}, telemetry.New(telemetry.StatusInvalidArgument, "plan.operation.note must be a string")
			}
			op.Note = note
		}

		switch kindStr {
		case "insert":
			op.Kind = KindInsert
			targetVal, err := requireField(opVal, "target")
			if err != nil {
				return Plan{}, err
			}
			op.Target, err = parseTimeRange(targetVal)
			if err != nil {
				return Plan{}, err
			}
			sourceVal, err := requireField(opVal, "source")
			if err != nil {
				return Plan{}, err
			}
			op.Source, err = parseTimeRange(sourceVal)
			if err != nil {
				return Plan{}, err
			}
		case "delete":
			op.Kind = KindDelete
			targetVal, err := requireField(opVal, "target")
			if err != nil {
				return Plan{}, err
			}
			op.Target, err = parseTimeRange(targetVal)
			if err != nil {
				return Plan{}, err
			}
		case "retime":
			op.Kind = KindRetime
			targetVal, err := requireField(opVal, "target")
			if err != nil {
				return Plan{}, err
			}
			op.Target, err = parseTimeRange(targetVal)
			if err != nil {
				return Plan{}, err
			}
			durationVal, err := requireField(opVal, "retimed_duration_seconds")
			if err != nil {
				return Plan{}, err
			}
			dur, ok := durationVal.Number()
			if !ok {
				return Plan{}, telemetry.New(telemetry.StatusInvalidArgument, "retimed_duration_seconds must be a number")
			}
			op.RetimedDurationSeconds = dur
		default:
			return Plan{}, telemetry.New(telemetry.StatusInvalidArgument, "unknown reconform operation kind: "+kindStr)
		}

		plan.Operations = append(plan.Operations, op)
	}

	return plan, nil
}

func parseTimeRange(v jsonval.Value) (TimeRange, error) {
	start, err := requireNumber(v, "start_seconds")
	if err != nil {
		return TimeRange{}, err
	}
	duration, err := requireNumber(v, "duration_seconds")
	if err != nil {
		return TimeRange{}, err
	}
	return TimeRange{StartSeconds: start, DurationSeconds: duration}, nil
}

func requireField(v jsonval.Value, key string) (jsonval.Value, error) {
	field, ok := v.Get(key)
	if !ok {
		return jsonval.Null(), telemetry.New(telemetry.StatusInvalidArgument, "missing required field: "+key)
	}
	return field, nil
}

func requireString(v jsonval.Value, key string) (string, error) {
	field, err := requireField(v, key)
	if err != nil {
		return "", err
	}
	s, ok := field.String()
	if !ok {
		return "", telemetry.New(telemetry.StatusInvalidArgument, key+" must be a string")
	}
	return s, nil
}

func requireNumber(v jsonval.Value, key string) (float64, error) {
	field, err := requireField(v, key)
	if err != nil {
		return 0, err
	}
	n, ok := field.Number()
	if !ok {
		return 0, telemetry.New(telemetry.StatusInvalidArgument, key+" must be a number")
	}
	return n, nil
}

// Serialize encodes a Plan to the canonical JSON format (spec §6),
// byte-stable for repeated calls on an unchanged plan.
func Serialize(plan Plan) string {
	var ops []jsonval.Value
	for _, op := range plan.Operations {
		members := []jsonval.Member{
			{Key: "kind", Value: jsonval.String(op.Kind.String())},
		}
		if op.Note != "" {
			members = append(members, jsonval.Member{Key: "note", Value: jsonval.String(op.Note)})
		}
		members = append(members, jsonval.Member{Key: "target", Value: timeRangeValue(op.Target)})
		switch op.Kind {
		case KindInsert:
			members = append(members, jsonval.Member{Key: "source", Value: timeRangeValue(op.Source)})
		case KindRetime:
			members = append(members, jsonval.Member{Key: "retimed_duration_seconds", Value: jsonval.Number(op.RetimedDurationSeconds)})
		}
		ops = append(ops, jsonval.Object(members...))
	}

	return jsonval.Write(jsonval.Object(
		jsonval.Member{Key: "version", Value: jsonval.Number(float64(plan.Version))},
		jsonval.Member{Key: "timeline", Value: jsonval.String(plan.TimelineName)},
		jsonval.Member{Key: "operations", Value: jsonval.Array(ops...)},
	))
}

func timeRangeValue(r TimeRange) jsonval.Value {
	return jsonval.Object(
		jsonval.Member{Key: "start_seconds", Value: jsonval.Number(r.StartSeconds)},
		jsonval.Member{Key: "duration_seconds", Value: jsonval.Number(r.DurationSeconds)},
	)
}

// LoadFromFile reads and parses a reconform plan from path.
func LoadFromFile(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, telemetry.Wrap(telemetry.StatusIoError, "unable to open reconform plan", err)
	}
	return Parse(string(data))
}

// SaveToFile serializes plan and writes it to path.
func SaveToFile(plan Plan, path string) error {
	if err := os.WriteFile(path, []byte(Serialize(plan)), 0o644); err != nil {
		return telemetry.Wrap(telemetry.StatusIoError, "unable to write reconform plan", err)
	}
	return nil
}

// ImportTimeline is a placeholder entry point for future OTIO
// integration: it currently returns an empty plan regardless of input
// (original_source: "will be fleshed out in later milestones").
func ImportTimeline(otioJSONText string) Plan {
	return Plan{Version: 1}
}

// DiffTimelines is a placeholder entry point for future OTIO
// integration: it currently returns an empty plan regardless of input
// (original_source: "will be fleshed out in later milestones").
func DiffTimelines(referenceOTIO, revisedOTIO string) Plan {
	return Plan{Version: 1}
}
