// Command orpheus-host is the Minimal Host CLI (C13): a session
// loader/driver that exercises the ABI for load, render-click,
// render-tracks, and simulate-transport (spec §4.11, §6).
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"orpheuscore/internal/abi"
	"orpheuscore/internal/jsonval"
	"orpheuscore/internal/osc"
	"orpheuscore/internal/perfmon"
	"orpheuscore/internal/render"
	"orpheuscore/internal/routing"
	"orpheuscore/internal/session"
	"orpheuscore/internal/telemetry"
	"orpheuscore/internal/transport"
)

// globalFlags holds the root command's persistent options (spec §6
// "Global options").
type globalFlags struct {
	jsonOutput   bool
	sessionPath  string
	specPath     string
	tracksCSV    string
	rangeSpec    string
	sampleRateHz uint32
	bitDepth     uint16
}

var flags globalFlags

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "orpheus-host",
		Short:         "Minimal host CLI exercising the orpheuscore ABI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "emit structured JSON instead of human text")
	root.PersistentFlags().StringVar(&flags.sessionPath, "session", "", "path to a session JSON file")
	root.PersistentFlags().StringVar(&flags.specPath, "spec", "", "path to a click-spec JSON file")
	root.PersistentFlags().StringVar(&flags.tracksCSV, "tracks", "", "comma-separated track names")
	root.PersistentFlags().StringVar(&flags.rangeSpec, "range", "", "beat range, one of end / start:end / start: / :end")
	root.PersistentFlags().Uint32Var(&flags.sampleRateHz, "sr", 48000, "render sample rate in Hz")
	var bitDepth uint32
	root.PersistentFlags().Uint32Var(&bitDepth, "bd", 24, "render bit depth (16, 24, or 32)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		flags.bitDepth = uint16(bitDepth)
	}

	root.AddCommand(newLoadCommand(), newRenderClickCommand(), newRenderTracksCommand(), newSimulateTransportCommand())
	return root
}

// hostError is the CLI's own error type, carrying the orpheus_status
// code and dotted error code the JSON output shape requires (spec §6
// "JSON error shape: {error:{code,message,details:[…]}}").
type hostError struct {
	code    string
	status  telemetry.Status
	message string
	details []string
}

func (e *hostError) Error() string { return e.message }

func newHostError(op string, status telemetry.Status, message string, details ...string) *hostError {
	return &hostError{code: op + "." + statusCode(status), status: status, message: message, details: details}
}

func statusCode(s telemetry.Status) string {
	return strings.ToLower(s.String())
}

// reportError prints the JSON or human error shape for err and returns
// it unchanged so RunE can propagate it to Execute (spec §6, §7: "exit
// code 1 on any failure").
func reportError(cmd *cobra.Command, err error) error {
	he, ok := err.(*hostError)
	if !ok {
		he = &hostError{code: "internal.unknown_error", status: telemetry.StatusInternalError, message: err.Error()}
	}
	if flags.jsonOutput {
		var details []jsonval.Value
		for _, d := range he.details {
			details = append(details, jsonval.String(d))
		}
		out := jsonval.Write(jsonval.Object(jsonval.Member{Key: "error", Value: jsonval.Object(
			jsonval.Member{Key: "code", Value: jsonval.String(he.code)},
			jsonval.Member{Key: "message", Value: jsonval.String(he.message)},
			jsonval.Member{Key: "details", Value: jsonval.Array(details...)},
		)}))
		fmt.Fprintln(cmd.ErrOrStderr(), out)
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %s (%s)\n", he.message, he.code)
	}
	return he
}

// emit prints value as JSON (via valueFn) or as human text (via
// textFn), depending on the --json flag.
func emit(cmd *cobra.Command, valueFn func() jsonval.Value, textFn func() string) {
	if flags.jsonOutput {
		fmt.Fprintln(cmd.OutOrStdout(), jsonval.Write(valueFn()))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), textFn())
	}
}

func loadSessionFromFlag(op string) (abi.SessionHandle, *session.SessionGraph, error) {
	if flags.sessionPath == "" {
		return 0, nil, newHostError(op, telemetry.StatusInvalidArgument, "--session is required")
	}
	text, err := os.ReadFile(flags.sessionPath)
	if err != nil {
		return 0, nil, newHostError(op, telemetry.StatusIoError, "unable to read session file: "+err.Error())
	}
	h, status := abi.LoadSession(string(text))
	if status != telemetry.StatusOK {
		return 0, nil, newHostError(op, status, "failed to load session")
	}
	g, _ := abi.SessionGraph(h)
	return h, g, nil
}

// parseRange implements spec §6's range grammar: end / start:end /
// start: / :end, at least one side present, end > start.
func parseRange(spec string, sessionStart, sessionEnd float64) (start, end float64, err error) {
	if spec == "" {
		return sessionStart, sessionEnd, nil
	}
	start, end = sessionStart, sessionEnd
	if !strings.Contains(spec, ":") {
		v, perr := strconv.ParseFloat(spec, 64)
		if perr != nil {
			return 0, 0, fmt.Errorf("invalid --range %q: %w", spec, perr)
		}
		end = v
	} else {
		parts := strings.SplitN(spec, ":", 2)
		if parts[0] == "" && parts[1] == "" {
			return 0, 0, fmt.Errorf("invalid --range %q: at least one side must be present", spec)
		}
		if parts[0] != "" {
			v, perr := strconv.ParseFloat(parts[0], 64)
			if perr != nil {
				return 0, 0, fmt.Errorf("invalid --range start %q: %w", parts[0], perr)
			}
			start = v
		}
		if parts[1] != "" {
			v, perr := strconv.ParseFloat(parts[1], 64)
			if perr != nil {
				return 0, 0, fmt.Errorf("invalid --range end %q: %w", parts[1], perr)
			}
			end = v
		}
	}
	if !(end > start) {
		return 0, 0, fmt.Errorf("invalid --range %q: end must be > start", spec)
	}
	return start, end, nil
}

func newLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load a session file and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, g, err := loadSessionFromFlag("load")
			if err != nil {
				return reportError(cmd, err)
			}
			tracks := g.Tracks()
			clipCount := 0
			for _, t := range tracks {
				clipCount += len(t.Clips)
			}
			emit(cmd,
				func() jsonval.Value {
					return jsonval.Object(
						jsonval.Member{Key: "name", Value: jsonval.String(g.Name)},
						jsonval.Member{Key: "tempo_bpm", Value: jsonval.Number(g.Tempo)},
						jsonval.Member{Key: "position_beats", Value: jsonval.Number(g.Transport.PositionBeats)},
						jsonval.Member{Key: "is_playing", Value: jsonval.Bool(g.Transport.IsPlaying)},
						jsonval.Member{Key: "track_count", Value: jsonval.Number(float64(len(tracks)))},
						jsonval.Member{Key: "clip_count", Value: jsonval.Number(float64(clipCount))},
					)
				},
				func() string {
					return fmt.Sprintf("%s: tempo=%.2f tracks=%d clips=%d position=%.2f playing=%v",
						g.Name, g.Tempo, len(tracks), clipCount, g.Transport.PositionBeats, g.Transport.IsPlaying)
				},
			)
			return nil
		},
	}
}

func newRenderClickCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "render-click",
		Short: "Render a metronome click track",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return reportError(cmd, newHostError("render_click", telemetry.StatusInvalidArgument, "--out is required"))
			}
			tempoBPM := 120.0
			bars := 4
			channels := 2
			if flags.specPath != "" {
				text, err := os.ReadFile(flags.specPath)
				if err != nil {
					return reportError(cmd, newHostError("render_click", telemetry.StatusIoError, "unable to read click spec: "+err.Error()))
				}
				v, err := jsonval.Parse(string(text))
				if err != nil {
					return reportError(cmd, newHostError("render_click", telemetry.StatusInvalidArgument, "malformed click spec: "+err.Error()))
				}
				if n, ok := v.Get("tempo_bpm"); ok {
					if f, ok := n.Number(); ok {
						tempoBPM = f
					}
				}
				if n, ok := v.Get("bars"); ok {
					if f, ok := n.Number(); ok {
						bars = int(f)
					}
				}
				if n, ok := v.Get("channels"); ok {
					if f, ok := n.Number(); ok {
						channels = int(f)
					}
				}
			} else if flags.sessionPath != "" {
				_, g, err := loadSessionFromFlag("render_click")
				if err != nil {
					return err
				}
				tempoBPM = g.Tempo
			}

			path, err := render.RenderClick(render.ClickSpec{
				OutputPath: outPath, TempoBPM: tempoBPM, SampleRateHz: flags.sampleRateHz, Channels: channels, Bars: bars,
			})
			if err != nil {
				return reportError(cmd, newHostError("render_click", statusFromError(err), err.Error()))
			}
			emit(cmd,
				func() jsonval.Value {
					return jsonval.Object(jsonval.Member{Key: "output", Value: jsonval.String(path)})
				},
				func() string { return "wrote " + path },
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output WAV path")
	return cmd
}

func newRenderTracksCommand() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "render-tracks",
		Short: "Render tracks to per-track WAV stems",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				return reportError(cmd, newHostError("render_tracks", telemetry.StatusInvalidArgument, "--out is required"))
			}
			_, g, err := loadSessionFromFlag("render_tracks")
			if err != nil {
				return reportError(cmd, err)
			}

			var handles []session.Handle
			if flags.tracksCSV != "" {
				wanted := strings.Split(flags.tracksCSV, ",")
				for _, name := range wanted {
					name = strings.TrimSpace(name)
					found := false
					for _, t := range g.Tracks() {
						if t.Name == name {
							handles = append(handles, t.Handle)
							found = true
							break
						}
					}
					if !found {
						return reportError(cmd, newHostError("render_tracks", telemetry.StatusNotFound, "unknown track: "+name))
					}
				}
			} else {
				for _, t := range g.Tracks() {
					handles = append(handles, t.Handle)
				}
			}

			if flags.sampleRateHz != 0 {
				if serr := g.SetRenderSampleRate(flags.sampleRateHz); serr != nil {
					return reportError(cmd, newHostError("render_tracks", statusFromError(serr), serr.Error()))
				}
			}
			if flags.bitDepth != 0 {
				if serr := g.SetRenderBitDepth(flags.bitDepth); serr != nil {
					return reportError(cmd, newHostError("render_tracks", statusFromError(serr), serr.Error()))
				}
			}
			if flags.rangeSpec != "" {
				start, end, rerr := parseRange(flags.rangeSpec, g.Start, g.End)
				if rerr != nil {
					return reportError(cmd, newHostError("render_tracks", telemetry.StatusInvalidArgument, rerr.Error()))
				}
				if serr := g.SetSessionRange(start, end); serr != nil {
					return reportError(cmd, newHostError("render_tracks", statusFromError(serr), serr.Error()))
				}
			}

			outputs, err := render.RenderTracks(g, handles, render.Spec{OutputDirectory: outDir, Channels: 2})
			if err != nil {
				return reportError(cmd, newHostError("render_tracks", statusFromError(err), err.Error()))
			}
			emit(cmd,
				func() jsonval.Value {
					var paths []jsonval.Value
					for _, p := range outputs {
						paths = append(paths, jsonval.String(p))
					}
					return jsonval.Object(jsonval.Member{Key: "outputs", Value: jsonval.Array(paths...)})
				},
				func() string { return "wrote " + strings.Join(outputs, ", ") },
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory")
	return cmd
}

// toneReader is a synthetic AudioReader backed by an osc.Oscillator,
// standing in for a registered audio file when a loaded session has no
// embedded audio (the session JSON format carries no audio payload;
// spec §3: "a clip with no registered audio... is skipped during
// real-time playback" otherwise). Used only by simulate-transport, to
// give the transport something audible to mix.
type toneReader struct {
	osc         *osc.Oscillator
	frequencyHz float64
	totalFrames int64
	position    int64
}

func (t *toneReader) IsOpen() bool       { return true }
func (t *toneReader) Channels() int      { return 1 }
func (t *toneReader) TotalFrames() int64 { return t.totalFrames }
func (t *toneReader) Seek(frame int64) error {
	t.position = frame
	return nil
}
func (t *toneReader) ReadSamples(dst [][]float64) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	n := len(dst[0])
	for i := 0; i < n; i++ {
		if t.position >= t.totalFrames {
			dst[0][i] = 0
			continue
		}
		dst[0][i] = float64(t.osc.GenerateSample(t.frequencyHz, 0))
		t.position++
	}
	return n, nil
}

func newSimulateTransportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate-transport",
		Short: "Drive the transport controller over a synthetic session and report state",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, g, err := loadSessionFromFlag("simulate_transport")
			if err != nil {
				return reportError(cmd, err)
			}

			const bufferFrames = 512
			const bufferCount = 200
			hub := telemetry.Default()

			clipCount := 0
			for _, t := range g.Tracks() {
				clipCount += len(t.Clips)
			}
			if clipCount == 0 {
				return reportError(cmd, newHostError("simulate_transport", telemetry.StatusInvalidArgument, "session has no clips to simulate"))
			}
			if clipCount > transport.MaxActiveClips {
				clipCount = transport.MaxActiveClips
			}

			routingConfig := routing.DefaultConfig(clipCount)
			matrix := routing.NewMatrix(routingConfig, flags.sampleRateHz, bufferFrames)
			controller := transport.NewController(flags.sampleRateHz, matrix, hub, bufferFrames)
			monitor := perfmon.NewMonitor(flags.sampleRateHz, time.Now())

			registered := 0
			for _, t := range g.Tracks() {
				for _, c := range t.Clips {
					if registered >= clipCount {
						break
					}
					freq := 220.0 * (1.0 + float64(registered)*0.25)
					reader := &toneReader{
						osc:         osc.New(osc.Config{SampleRateHz: float64(flags.sampleRateHz), Waveform: osc.WaveSine}),
						frequencyHz: freq,
						totalFrames: int64(flags.sampleRateHz) * 10,
					}
					if rerr := controller.RegisterClipAudio(c.Handle, reader); rerr != nil {
						continue
					}
					_ = controller.SetLoop(c.Handle, true)
					_ = controller.Start(c.Handle)
					registered++
				}
			}

			outputs := make([][]float32, routingConfig.NumOutputs)
			for i := range outputs {
				outputs[i] = make([]float32, bufferFrames)
			}

			eventCounts := map[transport.EventKind]int{}
			for i := 0; i < bufferCount; i++ {
				start := time.Now()
				controller.ProcessAudio(outputs, bufferFrames)
				monitor.RecordCallback(time.Since(start), bufferFrames, registered)
				for _, ev := range controller.ProcessCallbacks() {
					eventCounts[ev.Kind]++
				}
			}

			pos := controller.GetCurrentPosition(g.Tempo)
			metrics := monitor.GetMetrics()

			emit(cmd,
				func() jsonval.Value {
					return jsonval.Object(
						jsonval.Member{Key: "clips_registered", Value: jsonval.Number(float64(registered))},
						jsonval.Member{Key: "buffers_processed", Value: jsonval.Number(float64(bufferCount))},
						jsonval.Member{Key: "position_samples", Value: jsonval.Number(float64(pos.Samples))},
						jsonval.Member{Key: "position_beats", Value: jsonval.Number(pos.Beats)},
						jsonval.Member{Key: "dropped_events", Value: jsonval.Number(float64(controller.DroppedEventCount()))},
						jsonval.Member{Key: "cpu_usage_percent", Value: jsonval.Number(metrics.CPUUsagePercent)},
						jsonval.Member{Key: "buffer_underrun_count", Value: jsonval.Number(float64(metrics.BufferUnderrunCount))},
					)
				},
				func() string {
					return fmt.Sprintf("simulated %d buffers, %d clips, position=%d samples (%.2f beats), cpu=%.2f%%, underruns=%d",
						bufferCount, registered, pos.Samples, pos.Beats, metrics.CPUUsagePercent, metrics.BufferUnderrunCount)
				},
			)
			return nil
		},
	}
}

func statusFromError(err error) telemetry.Status {
	if tErr, ok := err.(*telemetry.Error); ok {
		return tErr.Status
	}
	return telemetry.StatusInternalError
}
