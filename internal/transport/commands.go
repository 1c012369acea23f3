package transport

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdStopAll
	cmdStopGroup
	cmdSeek
	cmdRestart
	cmdUpdateMetadata
)

// MetadataUpdate is an atomic batch of ClipMetadata field updates (spec
// §4.7 UpdateMetadata); nil fields are left unchanged. UpdateGain,
// UpdateTrim, UpdateFades, SetLoop, and SetStopOthersOnPlay are all
// expressed as MetadataUpdate values with only their own fields set,
// so they share one
// code path for validation and application.
type MetadataUpdate struct {
	GainDB           *float64
	TrimInSamples    *int64
	TrimOutSamples   *int64
	FadeInSeconds    *float64
	FadeOutSeconds   *float64
	FadeInCurve      *FadeCurve
	FadeOutCurve     *FadeCurve
	LoopEnabled      *bool
	StopOthersOnPlay *bool
}

// command is one UI->Audio ring entry (spec §4.7). Only the fields
// relevant to kind are populated.
type command struct {
	kind       commandKind
	handle     Handle
	groupIndex uint8
	seekSample int64
	update     MetadataUpdate
}

func float64Ptr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64       { return &v }
func boolPtr(v bool) *bool          { return &v }
func curvePtr(v FadeCurve) *FadeCurve { return &v }
