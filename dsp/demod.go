package dsp

import (
	"math"
	"math/cmplx"
)

// Demodulator performs narrowband FM frequency discrimination. The phase of
// the final sample in each block is carried into the next call so the
// unwrapped phase is continuous across block boundaries. Resetting the
// carried phase between consecutive blocks of one transmission puts an
// audible click at every boundary.
//
// Output is the per-sample phase derivative clipped to [-pi, pi], which is
// proportional to instantaneous frequency deviation. It is not re-normalized
// to a target level. One instance per audio path; not safe for concurrent
// use.
type Demodulator struct {
	prevPhase float64
	out       []float64
}

// minDemodInput matches the spec of the discriminator: blocks with fewer
// than 4 interleaved I/Q values (2 complex samples) produce an empty result.
const minDemodInput = 2

// Demodulate discriminates one block of normalized complex samples. The
// returned slice is reused between calls.
func (d *Demodulator) Demodulate(iq []complex128) []float64 {
	if len(iq) < minDemodInput {
		return nil
	}

	if cap(d.out) < len(iq) {
		d.out = make([]float64, len(iq))
	}
	out := d.out[:len(iq)]

	prev := d.prevPhase
	for idx, s := range iq {
		phase := cmplx.Phase(s)
		out[idx] = clipPi(wrapPi(phase - prev))
		prev = phase
	}
	d.prevPhase = prev

	return out
}

// Reset clears the carried phase. Only for starting a fresh stream; never
// call between consecutive blocks of one stream.
func (d *Demodulator) Reset() {
	d.prevPhase = 0
}

// wrapPi maps a phase difference into (-pi, pi], the differentiation of the
// unwrapped phase.
func wrapPi(delta float64) float64 {
	for delta > math.Pi {
		delta -= 2 * math.Pi
	}
	for delta <= -math.Pi {
		delta += 2 * math.Pi
	}
	return delta
}

func clipPi(v float64) float64 {
	if v > math.Pi {
		return math.Pi
	}
	if v < -math.Pi {
		return -math.Pi
	}
	return v
}
