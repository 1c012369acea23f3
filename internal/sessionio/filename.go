package sessionio

import (
	"strconv"
	"strings"
)

// MakeRenderStemFilename builds the deterministic render-stem filename
// (spec §4.2, §6): lowercased/underscore-normalized project and stem,
// joined with a sample-rate tag and bit-depth suffix. A zero sample rate
// defaults to 44100; a zero bit depth defaults to 16.
func MakeRenderStemFilename(project, stem string, sampleRateHz uint32, bitDepthBits uint16) string {
	if sampleRateHz == 0 {
		sampleRateHz = 44100
	}
	if bitDepthBits == 0 {
		bitDepthBits = 16
	}
	return sanitizeName(project) + "_" + sanitizeName(stem) + "_" +
		formatSampleRateTag(sampleRateHz) + "_" + strconv.Itoa(int(bitDepthBits)) + "b.wav"
}

// MakeRenderClickFilename is MakeRenderStemFilename nested under "out/"
// (spec §4.2, §6).
func MakeRenderClickFilename(project, stem string, sampleRateHz uint32, bitDepthBits uint16) string {
	return "out/" + MakeRenderStemFilename(project, stem, sampleRateHz, bitDepthBits)
}

// sanitizeName lowercases, maps '_'/'-'/' ' to '_', drops every other
// non-alphanumeric byte, collapses repeated underscores, trims leading
// and trailing underscores, and falls back to "session" when nothing
// survives (spec §4.2).
func sanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r - 'A' + 'a')
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '_' || r == '-' || r == ' ':
			b.WriteByte('_')
		}
	}
	collapsed := strings.Trim(collapseUnderscores(b.String()), "_")
	if collapsed == "" {
		return "session"
	}
	return collapsed
}

func collapseUnderscores(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevUnderscore := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// formatSampleRateTag renders "{k}k" for an integer-kHz rate, or
// "{k}p{rest}k" when the remainder has a nonzero fractional-kHz part
// (44100 -> "44p1k", 48000 -> "48k", 192000 -> "192k"), per spec §4.2.
func formatSampleRateTag(sampleRateHz uint32) string {
	khz := sampleRateHz / 1000
	rem := sampleRateHz % 1000
	if rem == 0 {
		return strconv.Itoa(int(khz)) + "k"
	}
	for rem%10 == 0 {
		rem /= 10
	}
	if rem == 0 {
		return strconv.Itoa(int(khz)) + "k"
	}
	return strconv.Itoa(int(khz)) + "p" + strconv.Itoa(int(rem)) + "k"
}
