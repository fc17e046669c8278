package dsp

import "math"

// Goertzel estimates the magnitude of a single frequency bin over a window
// of samples. Considerably cheaper than a full transform when only one tone
// frequency is of interest.
type Goertzel struct {
	coeff  float64
	window int
}

// NewGoertzel builds an estimator for toneHz at the given sample rate with
// the given window length in samples. The tone frequency is quantized to the
// nearest bin of the window.
func NewGoertzel(toneHz float64, sampleRate, window int) Goertzel {
	k := math.Floor(0.5 + float64(window)*toneHz/float64(sampleRate))
	w := (2 * math.Pi / float64(window)) * k
	return Goertzel{
		coeff:  2 * math.Cos(w),
		window: window,
	}
}

// Window returns the window length in samples.
func (g Goertzel) Window() int {
	return g.window
}

// Magnitude runs the filter over exactly one window of samples. Passing a
// slice of any other length than Window() still works but estimates a
// different bin spacing than configured.
func (g Goertzel) Magnitude(block []float64) float64 {
	var q0, q1, q2 float64
	for _, s := range block {
		q0 = g.coeff*q1 - q2 + s
		q2 = q1
		q1 = q0
	}
	return math.Sqrt(q1*q1 + q2*q2 - q1*q2*g.coeff)
}
