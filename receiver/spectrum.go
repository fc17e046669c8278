package receiver

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/bemasher/rtlmux/event"
)

// spectrumBins is the number of power bins published per spectrum event.
const spectrumBins = 128

// publishSpectrum computes a coarse power spectrum of the current block and
// publishes it for display layers. Purely diagnostic; channels never see
// this data.
func (r *Receiver) publishSpectrum(iq []complex128) {
	if r.fft == nil || r.fft.Len() != len(iq) {
		r.fft = fourier.NewCmplxFFT(len(iq))
		r.fftIn = make([]complex128, len(iq))
		r.fftOut = make([]complex128, len(iq))
	}

	// The coefficients are computed out of place; channels still dispatch
	// from the original block.
	copy(r.fftIn, iq)
	coeff := r.fft.Coefficients(r.fftOut, r.fftIn)

	bins := make([]float64, spectrumBins)
	per := len(coeff) / spectrumBins
	if per == 0 {
		return
	}
	scale := 1 / float64(len(coeff))
	for b := range bins {
		var sum float64
		for _, c := range coeff[b*per : (b+1)*per] {
			m := cmplx.Abs(c) * scale
			sum += m * m
		}
		bins[b] = 10 * math.Log10(sum/float64(per)+1e-12)
	}

	r.bus.Publish(event.Spectrum, event.Payload{
		"receiver": r.cfg.Name,
		"bins":     bins,
	})
}
