package gate

import (
	"fmt"

	"github.com/bemasher/rtlmux/dsp"
)

// ToneType discriminates the variants of ToneSpec.
type ToneType int

const (
	// NoTone passes all audio.
	NoTone ToneType = iota
	// AnalogTone gates on a continuous subaudible CTCSS tone.
	AnalogTone
	// DigitalTone gates on a DCS code via a pluggable decoder.
	DigitalTone
)

func (t ToneType) String() string {
	switch t {
	case NoTone:
		return "none"
	case AnalogTone:
		return "ctcss"
	case DigitalTone:
		return "dcs"
	}
	return fmt.Sprintf("ToneType(%d)", int(t))
}

// ToneSpec is the channel-access tone configuration:
// NoTone | AnalogTone(Hz) | DigitalTone(Code).
type ToneSpec struct {
	Type ToneType
	Hz   float64 // AnalogTone only
	Code string  // DigitalTone only, e.g. "023"
}

func None() ToneSpec            { return ToneSpec{Type: NoTone} }
func CTCSS(hz float64) ToneSpec { return ToneSpec{Type: AnalogTone, Hz: hz} }
func DCS(code string) ToneSpec  { return ToneSpec{Type: DigitalTone, Code: code} }

func (spec ToneSpec) String() string {
	switch spec.Type {
	case AnalogTone:
		return fmt.Sprintf("ctcss %.1f Hz", spec.Hz)
	case DigitalTone:
		return fmt.Sprintf("dcs %s", spec.Code)
	}
	return "none"
}

// DCSDecoder is the plug point for digital (DCS) tone decoding. No real
// decoder ships yet; the default implementation passes everything, which is
// not the same thing as NoTone: a DigitalTone gate still consults whatever
// decoder is installed.
type DCSDecoder interface {
	Match(code string, block []float64) bool
}

// acceptAllDCS is the stand-in decoder used until a real one is supplied.
type acceptAllDCS struct{}

func (acceptAllDCS) Match(string, []float64) bool { return true }

// toneWindowSeconds is the trailing window the CTCSS estimator integrates
// over.
const toneWindowSeconds = 0.5

// DefaultToneMagnitude is the fixed CTCSS detection threshold on the raw
// Goertzel magnitude.
const DefaultToneMagnitude = 0.01

// Tone is the subaudible tone gate. For AnalogTone it keeps only the
// trailing half second of audio in a ring buffer and runs a Goertzel
// single-bin estimate over it; history older than the window is never
// retained.
type Tone struct {
	Spec ToneSpec

	// Threshold is the detection threshold on the Goertzel magnitude.
	Threshold float64

	goertzel dsp.Goertzel
	ring     []float64
	head     int
	seen     int
	scratch  []float64

	dcs DCSDecoder
}

// NewTone builds a gate for spec at the given audio sample rate.
func NewTone(spec ToneSpec, sampleRate int) *Tone {
	t := &Tone{
		Spec:      spec,
		Threshold: DefaultToneMagnitude,
		dcs:       acceptAllDCS{},
	}
	if spec.Type == AnalogTone {
		window := int(float64(sampleRate)*toneWindowSeconds + 0.5)
		t.goertzel = dsp.NewGoertzel(spec.Hz, sampleRate, window)
		t.ring = make([]float64, window)
		t.scratch = make([]float64, window)
	}
	return t
}

// SetDCSDecoder installs a digital tone decoder, replacing the accept-all
// stand-in. A nil decoder restores the stand-in.
func (t *Tone) SetDCSDecoder(d DCSDecoder) {
	if d == nil {
		t.dcs = acceptAllDCS{}
		return
	}
	t.dcs = d
}

// Match consumes one audio block and reports whether the configured tone is
// present. NoTone always passes, including for empty blocks. AnalogTone
// requires a full window of history before it can pass.
func (t *Tone) Match(block []float64) bool {
	switch t.Spec.Type {
	case AnalogTone:
		t.push(block)
		if t.seen < len(t.ring) {
			return false
		}
		return t.goertzel.Magnitude(t.window()) > t.Threshold
	case DigitalTone:
		return t.dcs.Match(t.Spec.Code, block)
	}
	return true
}

// push appends block to the ring, discarding samples older than the window.
func (t *Tone) push(block []float64) {
	for _, s := range block {
		t.ring[t.head] = s
		t.head++
		if t.head == len(t.ring) {
			t.head = 0
		}
	}
	t.seen += len(block)
	if t.seen > len(t.ring) {
		t.seen = len(t.ring)
	}
}

// window copies the ring out in arrival order.
func (t *Tone) window() []float64 {
	n := copy(t.scratch, t.ring[t.head:])
	copy(t.scratch[n:], t.ring[:t.head])
	return t.scratch
}
