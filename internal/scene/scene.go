// Package scene implements the Scene Manager (C10): capturing,
// persisting, and recalling session/transport snapshots. Snapshots are
// JSON-backed (spec §4.8) rather than the teacher's gob-encoded binary
// save states, since the spec requires a human-inspectable format.
package scene

import (
	"os"

	"orpheuscore/internal/jsonval"
	"orpheuscore/internal/routing"
	"orpheuscore/internal/session"
	"orpheuscore/internal/telemetry"
)

// Snapshot is a captured session/transport state (spec §4.8
// "SceneSnapshot"). AssignedClips and ClipGroups are parallel slices:
// ClipGroups[i] is the group assigned to AssignedClips[i].
type Snapshot struct {
	SceneID       string
	Name          string
	TimestampUnix int64
	AssignedClips []session.Handle
	ClipGroups    []uint8
	GroupGains    []float32
}

// Manager captures and recalls Snapshots against a SessionGraph and a
// routing Matrix. A process-local counter disambiguates snapshots
// captured within the same second (spec §4.8: "scene_id (generated
// timestamp+counter)").
type Manager struct {
	graph   *session.SessionGraph
	matrix  *routing.Matrix
	hub     *telemetry.Hub
	counter uint32
}

// NewManager constructs a Manager bound to graph and matrix.
func NewManager(graph *session.SessionGraph, matrix *routing.Matrix, hub *telemetry.Hub) *Manager {
	if hub == nil {
		hub = telemetry.Default()
	}
	return &Manager{graph: graph, matrix: matrix, hub: hub}
}

// ClipGroupAssignment pairs a clip handle with the group it is assigned to.
// Hosts that track per-clip group assignment outside the core (the
// clip grid, in the full product) supply it; the core's SessionGraph
// has no native group field, so Capture accepts the assignment map
// directly rather than inferring it.
type ClipGroupAssignment struct {
	Clip  session.Handle
	Group uint8
}

// Capture builds a Snapshot named name from the current group gains
// (read from matrix) and the supplied clip->group assignment (spec
// §4.8 capture). now is the Unix timestamp to stamp the snapshot with,
// supplied by the caller rather than read from the system clock so
// Capture stays deterministic for tests.
func (m *Manager) Capture(name string, assignments []ClipGroupAssignment, numGroups int, now int64) Snapshot {
	m.counter++
	clips := make([]session.Handle, len(assignments))
	groups := make([]uint8, len(assignments))
	for i, a := range assignments {
		clips[i] = a.Clip
		groups[i] = a.Group
	}
	gains := make([]float32, numGroups)
	for g := 0; g < numGroups; g++ {
		gains[g] = float32(m.matrix.GroupGainDB(g))
	}
	return Snapshot{
		SceneID:       sceneID(now, m.counter),
		Name:          name,
		TimestampUnix: now,
		AssignedClips: clips,
		ClipGroups:    groups,
		GroupGains:    gains,
	}
}

func sceneID(now int64, counter uint32) string {
	return jsonval.FormatNumber(float64(now)) + "-" + jsonval.FormatNumber(float64(counter))
}

// Recall applies snapshot's group gains through the routing matrix and
// validates its clip handles against the current SessionGraph; unknown
// handles are logged as warnings and skipped rather than failing the
// whole recall (spec §4.8: "unknown handles are reported as warnings
// and skipped").
func (m *Manager) Recall(snap Snapshot) {
	for g, gainDB := range snap.GroupGains {
		m.matrix.SetGroupGain(g, float64(gainDB))
	}
	for _, h := range snap.AssignedClips {
		if !m.graph.ClipExists(h) {
			m.hub.Log(telemetry.ComponentScene, telemetry.LevelWarn,
				"scene recall: unknown clip handle skipped", map[string]interface{}{
					"handle":   uint64(h),
					"scene_id": snap.SceneID,
				})
		}
	}
}

// Save writes snap to path as canonical JSON.
func Save(snap Snapshot, path string) error {
	if err := os.WriteFile(path, []byte(serialize(snap)), 0o644); err != nil {
		return telemetry.Wrap(telemetry.StatusIoError, "unable to write scene file", err)
	}
	return nil
}

// Load reads and parses a Snapshot from path.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, telemetry.Wrap(telemetry.StatusIoError, "unable to open scene file", err)
	}
	return parse(string(data))
}

func serialize(snap Snapshot) string {
	var clips []jsonval.Value
	for _, h := range snap.AssignedClips {
		clips = append(clips, jsonval.Number(float64(h)))
	}
	var groups []jsonval.Value
	for _, g := range snap.ClipGroups {
		groups = append(groups, jsonval.Number(float64(g)))
	}
	var gains []jsonval.Value
	for _, db := range snap.GroupGains {
		gains = append(gains, jsonval.Number(float64(db)))
	}
	return jsonval.Write(jsonval.Object(
		jsonval.Member{Key: "scene_id", Value: jsonval.String(snap.SceneID)},
		jsonval.Member{Key: "name", Value: jsonval.String(snap.Name)},
		jsonval.Member{Key: "timestamp", Value: jsonval.Number(float64(snap.TimestampUnix))},
		jsonval.Member{Key: "assigned_clips", Value: jsonval.Array(clips...)},
		jsonval.Member{Key: "clip_groups", Value: jsonval.Array(groups...)},
		jsonval.Member{Key: "group_gains", Value: jsonval.Array(gains...)},
	))
}

func parse(text string) (Snapshot, error) {
	v, err := jsonval.Parse(text)
	if err != nil {
		return Snapshot{}, telemetry.Wrap(telemetry.StatusInvalidArgument, "malformed scene json", err)
	}
	sceneIDVal, ok := v.Get("scene_id")
	if !ok {
		return Snapshot{}, telemetry.New(telemetry.StatusInvalidArgument, "missing required field: scene_id")
	}
	sceneIDStr, ok := sceneIDVal.String()
	if !ok {
		return Snapshot{}, telemetry.New(telemetry.StatusInvalidArgument, "scene_id must be a string")
	}
	nameVal, ok := v.Get("name")
	if !ok {
		return Snapshot{}, telemetry.New(telemetry.StatusInvalidArgument, "missing required field: name")
	}
	name, ok := nameVal.String()
	if !ok {
		return Snapshot{}, telemetry.New(telemetry.StatusInvalidArgument, "name must be a string")
	}
	tsVal, ok := v.Get("timestamp")
	if !ok {
		return Snapshot{}, telemetry.New(telemetry.StatusInvalidArgument, "missing required field: timestamp")
	}
	ts, ok := tsVal.Number()
	if !ok {
		return Snapshot{}, telemetry.New(telemetry.StatusInvalidArgument, "timestamp must be a number")
	}

	clips, err := parseHandleArray(v, "assigned_clips")
	if err != nil {
		return Snapshot{}, err
	}
	groupVals, err := parseNumberArray(v, "clip_groups")
	if err != nil {
		return Snapshot{}, err
	}
	groups := make([]uint8, len(groupVals))
	for i, n := range groupVals {
		groups[i] = uint8(n)
	}
	gains, err := parseNumberArray(v, "group_gains")
	if err != nil {
		return Snapshot{}, err
	}
	gains32 := make([]float32, len(gains))
	for i, n := range gains {
		gains32[i] = float32(n)
	}

	return Snapshot{
		SceneID:       sceneIDStr,
		Name:          name,
		TimestampUnix: int64(ts),
		AssignedClips: clips,
		ClipGroups:    groups,
		GroupGains:    gains32,
	}, nil
}

func parseHandleArray(v jsonval.Value, key string) ([]session.Handle, error) {
	field, ok := v.Get(key)
	if !ok {
		return nil, telemetry.New(telemetry.StatusInvalidArgument, "missing required field: "+key)
	}
	items, ok := field.Array()
	if !ok {
		return nil, telemetry.New(telemetry.StatusInvalidArgument, key+" must be an array")
	}
	out := make([]session.Handle, len(items))
	for i, item := range items {
		n, ok := item.Number()
		if !ok {
			return nil, telemetry.New(telemetry.StatusInvalidArgument, key+"[] must be numbers")
		}
		out[i] = session.Handle(n)
	}
	return out, nil
}

func parseNumberArray(v jsonval.Value, key string) ([]float64, error) {
	field, ok := v.Get(key)
	if !ok {
		return nil, telemetry.New(telemetry.StatusInvalidArgument, "missing required field: "+key)
	}
	items, ok := field.Array()
	if !ok {
		return nil, telemetry.New(telemetry.StatusInvalidArgument, key+" must be an array")
	}
	out := make([]float64, len(items))
	for i, item := range items {
		n, ok := item.Number()
		if !ok {
			return nil, telemetry.New(telemetry.StatusInvalidArgument, key+"[] must be numbers")
		}
		out[i] = n
	}
	return out, nil
}
