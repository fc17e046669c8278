package gate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sine(freq float64, sampleRate, n int, amplitude float64) []float64 {
	out := make([]float64, n)
	w := 2 * math.Pi * freq / float64(sampleRate)
	for idx := range out {
		out[idx] = amplitude * math.Sin(w*float64(idx))
	}
	return out
}

func TestNoToneAlwaysPasses(t *testing.T) {
	tone := NewTone(None(), 8000)

	assert.True(t, tone.Match(nil))
	assert.True(t, tone.Match([]float64{}))
	assert.True(t, tone.Match(make([]float64, 100)))
	assert.True(t, tone.Match(sine(1000, 8000, 100, 1)))
}

func TestCTCSSDetection(t *testing.T) {
	const (
		sampleRate = 8000
		toneHz     = 100.0
	)

	tone := NewTone(CTCSS(toneHz), sampleRate)
	window := len(tone.ring)
	assert.Equal(t, sampleRate/2, window, "window is half a second of audio")

	// A full window of the configured tone passes.
	assert.True(t, tone.Match(sine(toneHz, sampleRate, window, 0.1)))

	// The same amplitude at twice the frequency does not.
	other := NewTone(CTCSS(toneHz), sampleRate)
	assert.False(t, other.Match(sine(2*toneHz, sampleRate, window, 0.1)))
}

func TestCTCSSNeedsFullWindow(t *testing.T) {
	const sampleRate = 8000

	tone := NewTone(CTCSS(100), sampleRate)
	window := len(tone.ring)

	// Tone present but insufficient history: gate stays shut.
	half := sine(100, sampleRate, window/2, 0.1)
	assert.False(t, tone.Match(half))

	// Second half completes the window.
	assert.True(t, tone.Match(sine(100, sampleRate, window-len(half), 0.1)))
}

func TestCTCSSTrailingWindow(t *testing.T) {
	const sampleRate = 8000

	tone := NewTone(CTCSS(100), sampleRate)
	window := len(tone.ring)

	// Fill the window with the tone, then push a full window of silence:
	// the tone has left the trailing window and detection must drop.
	assert.True(t, tone.Match(sine(100, sampleRate, window, 0.1)))
	assert.False(t, tone.Match(make([]float64, window)))
}

// recordingDecoder verifies DigitalTone consults the pluggable decoder
// rather than silently behaving like NoTone.
type recordingDecoder struct {
	calls  int
	code   string
	result bool
}

func (d *recordingDecoder) Match(code string, block []float64) bool {
	d.calls++
	d.code = code
	return d.result
}

func TestDCSStubPassesByDefault(t *testing.T) {
	tone := NewTone(DCS("023"), 8000)
	assert.True(t, tone.Match(make([]float64, 64)), "stand-in decoder passes everything")
}

func TestDCSDecoderPluggable(t *testing.T) {
	tone := NewTone(DCS("023"), 8000)

	dec := &recordingDecoder{result: false}
	tone.SetDCSDecoder(dec)

	assert.False(t, tone.Match(make([]float64, 64)))
	assert.Equal(t, 1, dec.calls)
	assert.Equal(t, "023", dec.code)

	dec.result = true
	assert.True(t, tone.Match(nil))

	// Removing the decoder restores the accept-all stand-in.
	tone.SetDCSDecoder(nil)
	assert.True(t, tone.Match(nil))
}

func TestToneSpecString(t *testing.T) {
	assert.Equal(t, "none", None().String())
	assert.Equal(t, "ctcss 123.0 Hz", CTCSS(123).String())
	assert.Equal(t, "dcs 023", DCS("023").String())
}
