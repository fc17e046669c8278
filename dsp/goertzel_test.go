package dsp

import (
	"math"
	"testing"
)

func sine(freq float64, sampleRate, n int, amplitude float64) []float64 {
	out := make([]float64, n)
	w := 2 * math.Pi * freq / float64(sampleRate)
	for idx := range out {
		out[idx] = amplitude * math.Sin(w*float64(idx))
	}
	return out
}

func TestGoertzelDetectsConfiguredTone(t *testing.T) {
	const (
		sampleRate = 8000
		window     = 4000 // 0.5 s
		toneHz     = 250.0
	)

	g := NewGoertzel(toneHz, sampleRate, window)

	onTone := g.Magnitude(sine(toneHz, sampleRate, window, 0.1))
	offTone := g.Magnitude(sine(2*toneHz, sampleRate, window, 0.1))

	// An exact-bin sinusoid accumulates to roughly amplitude*window/2;
	// a tone one octave up lands in a different bin and contributes next
	// to nothing.
	if onTone < 100 {
		t.Fatalf("on-tone magnitude = %v, expected large response", onTone)
	}
	if offTone > 1 {
		t.Fatalf("off-tone magnitude = %v, expected near-zero response", offTone)
	}
	if offTone >= onTone/100 {
		t.Fatalf("poor bin selectivity: on=%v off=%v", onTone, offTone)
	}
}

func TestGoertzelSilence(t *testing.T) {
	g := NewGoertzel(100, 8000, 4000)
	if mag := g.Magnitude(make([]float64, 4000)); mag != 0 {
		t.Fatalf("silence magnitude = %v, want 0", mag)
	}
}

func BenchmarkGoertzel(b *testing.B) {
	const window = 4000
	g := NewGoertzel(100, 8000, window)
	block := sine(100, 8000, window, 0.1)

	b.SetBytes(window * 8)
	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		g.Magnitude(block)
	}
}
