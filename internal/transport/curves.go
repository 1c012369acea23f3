package transport

import "math"

// exponentialCurveSlope is the documented "k" constant for the
// Exponential fade curve (spec §4.7).
const exponentialCurveSlope = 4.0

// curveGain evaluates a fade curve at normalized phase t in [0, 1],
// returning the ramp-in value (0 at t=0, 1 at t=1), per spec §4.7:
//
//	Linear:      t
//	EqualPower:  sin(t * pi/2)
//	Exponential: (exp(k*t) - 1) / (exp(k) - 1), k = 4
func curveGain(curve FadeCurve, t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	switch curve {
	case FadeEqualPower:
		return math.Sin(t * math.Pi / 2)
	case FadeExponential:
		return (math.Exp(exponentialCurveSlope*t) - 1) / (math.Exp(exponentialCurveSlope) - 1)
	default:
		return t
	}
}

// fadeInGain returns the gain factor applied elapsedFrames into a
// fade-in of durationFrames (1.0 once the fade has completed, or
// always 1.0 when durationFrames <= 0 — no fade configured).
func fadeInGain(curve FadeCurve, elapsedFrames, durationFrames int64) float64 {
	if durationFrames <= 0 {
		return 1.0
	}
	if elapsedFrames >= durationFrames {
		return 1.0
	}
	t := float64(elapsedFrames) / float64(durationFrames)
	return curveGain(curve, t)
}

// fadeOutGain returns the gain factor elapsedFrames into a fade-out of
// durationFrames: 1.0 at the start of the fade, 0.0 once complete. A
// non-positive duration fades out instantly (gain 0).
func fadeOutGain(curve FadeCurve, elapsedFrames, durationFrames int64) float64 {
	if durationFrames <= 0 {
		return 0
	}
	if elapsedFrames >= durationFrames {
		return 0
	}
	t := float64(elapsedFrames) / float64(durationFrames)
	return 1 - curveGain(curve, t)
}

// dbToLinear converts a dB gain value to a linear amplitude factor.
func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}
