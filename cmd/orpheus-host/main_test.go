package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseRangeEndOnly(t *testing.T) {
	start, end, err := parseRange("8", 0, 4)
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if start != 0 || end != 8 {
		t.Fatalf("got (%v, %v), want (0, 8)", start, end)
	}
}

func TestParseRangeStartAndEnd(t *testing.T) {
	start, end, err := parseRange("2:6", 0, 0)
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if start != 2 || end != 6 {
		t.Fatalf("got (%v, %v), want (2, 6)", start, end)
	}
}

func TestParseRangeStartOnly(t *testing.T) {
	start, end, err := parseRange("2:", 0, 10)
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if start != 2 || end != 10 {
		t.Fatalf("got (%v, %v), want (2, 10)", start, end)
	}
}

func TestParseRangeEndOnlyColon(t *testing.T) {
	start, end, err := parseRange(":6", 1, 10)
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if start != 1 || end != 6 {
		t.Fatalf("got (%v, %v), want (1, 6)", start, end)
	}
}

func TestParseRangeEmptySpecReturnsSessionBounds(t *testing.T) {
	start, end, err := parseRange("", 3, 9)
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if start != 3 || end != 9 {
		t.Fatalf("got (%v, %v), want (3, 9)", start, end)
	}
}

func TestParseRangeRejectsBothSidesEmpty(t *testing.T) {
	if _, _, err := parseRange(":", 0, 0); err == nil {
		t.Fatalf("expected error for \":\"")
	}
}

func TestParseRangeRejectsEndNotGreaterThanStart(t *testing.T) {
	if _, _, err := parseRange("4:4", 0, 0); err == nil {
		t.Fatalf("expected error when end == start")
	}
}

func TestParseRangeRejectsMalformedNumber(t *testing.T) {
	if _, _, err := parseRange("abc", 0, 0); err == nil {
		t.Fatalf("expected error for non-numeric range")
	}
}

func TestStatusCodeIsLowercase(t *testing.T) {
	code := statusCode(1) // telemetry.StatusInvalidArgument, avoiding the import for this leaf check
	if code != strings.ToLower(code) {
		t.Fatalf("statusCode %q is not lowercase", code)
	}
}

func TestNewHostErrorBuildsDottedCode(t *testing.T) {
	err := newHostError("render_click", 0, "boom")
	if !strings.HasPrefix(err.code, "render_click.") {
		t.Fatalf("expected dotted code prefixed with op, got %q", err.code)
	}
	if err.Error() != "boom" {
		t.Fatalf("Error() = %q, want %q", err.Error(), "boom")
	}
}

func writeTestSession(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	text := `{"name":"Demo","tempo_bpm":120,"start_beats":0,"end_beats":8,
		"tracks":[{"name":"A","clips":[{"name":"c1","start_beats":0,"length_beats":4}]}]}`
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatalf("write session fixture: %v", err)
	}
	return path
}

func TestLoadCommandEmitsJSONSummary(t *testing.T) {
	sessionPath := writeTestSession(t)
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"load", "--session", sessionPath, "--json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), `"name":"Demo"`) {
		t.Fatalf("expected JSON summary with session name, got %q", out.String())
	}
}

func TestLoadCommandMissingSessionFails(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"load"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error when --session is missing")
	}
}

func TestRenderClickCommandWritesFile(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "click.wav")
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"render-click", "--out", outPath})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("expected click file to exist: %v", err)
	}
}

func TestRenderTracksCommandAppliesRange(t *testing.T) {
	sessionPath := writeTestSession(t)
	outDir := t.TempDir()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"render-tracks", "--session", sessionPath, "--out", outDir, "--range", "0:2"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected at least one rendered stem")
	}
}

func TestRenderTracksCommandRejectsUnknownTrack(t *testing.T) {
	sessionPath := writeTestSession(t)
	outDir := t.TempDir()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"render-tracks", "--session", sessionPath, "--out", outDir, "--tracks", "nonexistent"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for unknown track name")
	}
}

func TestSimulateTransportCommandReportsMetrics(t *testing.T) {
	sessionPath := writeTestSession(t)
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"simulate-transport", "--session", sessionPath, "--json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), `"buffers_processed"`) {
		t.Fatalf("expected buffers_processed in output, got %q", out.String())
	}
}

func TestSimulateTransportCommandRejectsEmptySession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, []byte(`{"name":"Empty","tempo_bpm":120,"start_beats":0,"end_beats":0,"tracks":[]}`), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"simulate-transport", "--session", path})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for session with no clips")
	}
}
