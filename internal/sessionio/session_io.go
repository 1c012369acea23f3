// Package sessionio implements the canonical session JSON wire format
// (spec §4.2, §6) and the deterministic render filename builder.
package sessionio

import (
	"os"

	"orpheuscore/internal/jsonval"
	"orpheuscore/internal/session"
	"orpheuscore/internal/telemetry"
)

// ParseSession decodes the canonical session JSON format into a
// SessionGraph, then commits the clip grid and validates for overlaps
// (spec §4.2: "Overlapping clips within a track cause parse failure.").
func ParseSession(text string, hub *telemetry.Hub) (*session.SessionGraph, error) {
	v, err := jsonval.Parse(text)
	if err != nil {
		return nil, telemetry.Wrap(telemetry.StatusInvalidArgument, "malformed session json", err)
	}
	if v.Kind() != jsonval.KindObject {
		return nil, telemetry.New(telemetry.StatusInvalidArgument, "session root must be an object")
	}

	name, err := requireString(v, "name")
	if err != nil {
		return nil, err
	}
	tempo, err := requireNumber(v, "tempo_bpm")
	if err != nil {
		return nil, err
	}
	start, err := requireNumber(v, "start_beats")
	if err != nil {
		return nil, err
	}
	end, err := requireNumber(v, "end_beats")
	if err != nil {
		return nil, err
	}

	render := session.RenderSpec{SampleRateHz: 48000, BitDepth: 24}
	if rv, ok := v.Get("render"); ok {
		sr, err := requireNumberLabeled(rv, "sample_rate_hz", "render.sample_rate_hz")
		if err != nil {
			return nil, err
		}
		bd, err := requireNumberLabeled(rv, "bit_depth", "render.bit_depth")
		if err != nil {
			return nil, err
		}
		dither := false
		if dv, ok := rv.Get("dither"); ok {
			b, ok := dv.Bool()
			if !ok {
				return nil, telemetry.New(telemetry.StatusInvalidArgument, "render.dither must be a bool")
			}
			dither = b
		}
		render = session.RenderSpec{SampleRateHz: uint32(sr), BitDepth: uint16(bd), Dither: dither}
	}

	g, err := session.New(name, tempo, start, end, render, hub)
	if err != nil {
		return nil, err
	}

	if msv, ok := v.Get("marker_sets"); ok {
		items, ok := msv.Array()
		if !ok {
			return nil, telemetry.New(telemetry.StatusInvalidArgument, "marker_sets must be an array")
		}
		for _, msItem := range items {
			msName, err := requireString(msItem, "name")
			if err != nil {
				return nil, err
			}
			var markers []session.Marker
			if markersVal, ok := msItem.Get("markers"); ok {
				markerItems, ok := markersVal.Array()
				if !ok {
					return nil, telemetry.New(telemetry.StatusInvalidArgument, "marker_sets[].markers must be an array")
				}
				for _, m := range markerItems {
					mName, err := requireString(m, "name")
					if err != nil {
						return nil, err
					}
					mPos, err := requireNumber(m, "position_beats")
					if err != nil {
						return nil, err
					}
					markers = append(markers, session.Marker{Name: mName, PositionBeats: mPos})
				}
			}
			g.AddMarkerSet(msName, markers)
		}
	}

	if plv, ok := v.Get("playlist_lanes"); ok {
		items, ok := plv.Array()
		if !ok {
			return nil, telemetry.New(telemetry.StatusInvalidArgument, "playlist_lanes must be an array")
		}
		for _, lane := range items {
			laneName, err := requireString(lane, "name")
			if err != nil {
				return nil, err
			}
			active := false
			if av, ok := lane.Get("is_active"); ok {
				b, ok := av.Bool()
				if !ok {
					return nil, telemetry.New(telemetry.StatusInvalidArgument, "playlist_lanes[].is_active must be a bool")
				}
				active = b
			}
			g.AddPlaylistLane(laneName, active)
		}
	}

	tracksVal, err := requireField(v, "tracks")
	if err != nil {
		return nil, err
	}
	trackItems, ok := tracksVal.Array()
	if !ok {
		return nil, telemetry.New(telemetry.StatusInvalidArgument, "tracks must be an array")
	}
	for _, trackVal := range trackItems {
		trackName, err := requireString(trackVal, "name")
		if err != nil {
			return nil, err
		}
		th := g.AddTrack(trackName)
		clipsVal, err := requireField(trackVal, "clips")
		if err != nil {
			return nil, err
		}
		clipItems, ok := clipsVal.Array()
		if !ok {
			return nil, telemetry.New(telemetry.StatusInvalidArgument, "track.clips must be an array")
		}
		for _, clipVal := range clipItems {
			clipName, err := requireString(clipVal, "name")
			if err != nil {
				return nil, err
			}
			clipStart, err := requireNumber(clipVal, "start_beats")
			if err != nil {
				return nil, err
			}
			clipLength, err := requireNumber(clipVal, "length_beats")
			if err != nil {
				return nil, err
			}
			if _, err := g.AddClip(th, clipName, clipStart, clipLength); err != nil {
				return nil, err
			}
		}
	}

	g.CommitClipGrid()
	if err := g.ValidateNoOverlaps(); err != nil {
		return nil, err
	}
	return g, nil
}

// SerializeSession encodes a SessionGraph to the canonical JSON format
// (spec §4.2, §6), byte-stable for repeated calls on an unchanged graph.
func SerializeSession(g *session.SessionGraph) string {
	members := []jsonval.Member{
		{Key: "name", Value: jsonval.String(g.Name)},
		{Key: "tempo_bpm", Value: jsonval.Number(g.Tempo)},
		{Key: "start_beats", Value: jsonval.Number(g.Start)},
		{Key: "end_beats", Value: jsonval.Number(g.End)},
		{Key: "render", Value: jsonval.Object(
			jsonval.Member{Key: "sample_rate_hz", Value: jsonval.Number(float64(g.Render.SampleRateHz))},
			jsonval.Member{Key: "bit_depth", Value: jsonval.Number(float64(g.Render.BitDepth))},
			jsonval.Member{Key: "dither", Value: jsonval.Bool(g.Render.Dither)},
		)},
	}

	var markerSets []jsonval.Value
	for _, ms := range g.MarkerSets() {
		var markers []jsonval.Value
		for _, m := range ms.Markers {
			markers = append(markers, jsonval.Object(
				jsonval.Member{Key: "name", Value: jsonval.String(m.Name)},
				jsonval.Member{Key: "position_beats", Value: jsonval.Number(m.PositionBeats)},
			))
		}
		markerSets = append(markerSets, jsonval.Object(
			jsonval.Member{Key: "name", Value: jsonval.String(ms.Name)},
			jsonval.Member{Key: "markers", Value: jsonval.Array(markers...)},
		))
	}
	members = append(members, jsonval.Member{Key: "marker_sets", Value: jsonval.Array(markerSets...)})

	var lanes []jsonval.Value
	for _, l := range g.PlaylistLanes() {
		lanes = append(lanes, jsonval.Object(
			jsonval.Member{Key: "name", Value: jsonval.String(l.Name)},
			jsonval.Member{Key: "is_active", Value: jsonval.Bool(l.IsActive)},
		))
	}
	members = append(members, jsonval.Member{Key: "playlist_lanes", Value: jsonval.Array(lanes...)})

	var tracks []jsonval.Value
	for _, t := range g.Tracks() {
		var clips []jsonval.Value
		for _, c := range t.Clips {
			clips = append(clips, jsonval.Object(
				jsonval.Member{Key: "name", Value: jsonval.String(c.Name)},
				jsonval.Member{Key: "start_beats", Value: jsonval.Number(c.StartBeats)},
				jsonval.Member{Key: "length_beats", Value: jsonval.Number(c.LengthBeats)},
			))
		}
		tracks = append(tracks, jsonval.Object(
			jsonval.Member{Key: "name", Value: jsonval.String(t.Name)},
			jsonval.Member{Key: "clips", Value: jsonval.Array(clips...)},
		))
	}
	members = append(members, jsonval.Member{Key: "tracks", Value: jsonval.Array(tracks...)})

	return jsonval.Write(jsonval.Object(members...))
}

// LoadSessionFromFile reads and parses a session JSON file.
func LoadSessionFromFile(path string, hub *telemetry.Hub) (*session.SessionGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, telemetry.Wrap(telemetry.StatusIoError, "unable to open session file", err)
	}
	return ParseSession(string(data), hub)
}

// SaveSessionToFile serializes a SessionGraph and writes it to path.
func SaveSessionToFile(g *session.SessionGraph, path string) error {
	if err := os.WriteFile(path, []byte(SerializeSession(g)), 0o644); err != nil {
		return telemetry.Wrap(telemetry.StatusIoError, "unable to write session file", err)
	}
	return nil
}

func requireField(v jsonval.Value, key string) (jsonval.Value, error) {
	field, ok := v.Get(key)
	if !ok {
		return jsonval.Null(), telemetry.New(telemetry.StatusInvalidArgument, "missing required field: "+key)
	}
	return field, nil
}

func requireString(v jsonval.Value, key string) (string, error) {
	return requireStringLabeled(v, key, key)
}

func requireStringLabeled(v jsonval.Value, key, label string) (string, error) {
	field, ok := v.Get(key)
	if !ok {
		return "", telemetry.New(telemetry.StatusInvalidArgument, "missing required field: "+label)
	}
	s, ok := field.String()
	if !ok {
		return "", telemetry.New(telemetry.StatusInvalidArgument, label+" must be a string")
	}
	return s, nil
}

func requireNumber(v jsonval.Value, key string) (float64, error) {
	return requireNumberLabeled(v, key, key)
}

func requireNumberLabeled(v jsonval.Value, key, label string) (float64, error) {
	field, ok := v.Get(key)
	if !ok {
		return 0, telemetry.New(telemetry.StatusInvalidArgument, "missing required field: "+label)
	}
	n, ok := field.Number()
	if !ok {
		return 0, telemetry.New(telemetry.StatusInvalidArgument, label+" must be a number")
	}
	return n, nil
}
