package session

import "math"

// BeatsToSamples converts a duration in musical beats to samples at the
// given tempo and sample rate, per spec §3:
//
//	samples = beats * (60 / tempo_bpm) * sample_rate, rounded half-to-zero
//
// "Half-to-zero" (symmetric round-half-down-in-magnitude) means a tie
// (fraction exactly 0.5) rounds toward zero rather than away from it
// (2.5 -> 2, -2.5 -> -2), unlike math.Round, which rounds ties away
// from zero.
func BeatsToSamples(beats, tempoBPM float64, sampleRateHz uint32) int64 {
	seconds := beats * (60.0 / tempoBPM)
	return int64(RoundHalfToZero(seconds * float64(sampleRateHz)))
}

// RoundHalfToZero rounds x to the nearest integer, with ties (fractional
// part exactly 0.5) resolved toward zero.
func RoundHalfToZero(x float64) float64 {
	if x >= 0 {
		frac := x - math.Floor(x)
		if frac > 0.5 {
			return math.Floor(x) + 1
		}
		return math.Floor(x)
	}
	frac := math.Ceil(x) - x
	if frac > 0.5 {
		return math.Ceil(x) - 1
	}
	return math.Ceil(x)
}
