// RTLMUX - A multichannel FM squelch scanner for rtl_tcp SDR servers.
// Copyright (C) 2026 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package dsp provides the signal processing primitives for narrowband FM
// channel scanning: sample normalization, phase-continuous frequency
// discrimination, power measurement and single-bin tone estimation.
package dsp

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// NormLUT maps raw rtl_tcp bytes to normalized samples in [-1, 1] using the
// affine transform (byte - 127.5) / 127.5.
type NormLUT []float64

func NewNormLUT() (lut NormLUT) {
	lut = make([]float64, 0x100)
	for idx := range lut {
		lut[idx] = (float64(idx) - 127.5) / 127.5
	}
	return
}

// Execute normalizes interleaved I/Q bytes into output. len(output) must
// equal len(input).
func (lut NormLUT) Execute(input []byte, output []float64) {
	for idx, b := range input {
		output[idx] = lut[b]
	}
}

// Complex normalizes interleaved I/Q bytes into complex samples.
// len(output) must equal len(input)/2.
func (lut NormLUT) Complex(input []byte, output []complex128) {
	i := 0
	for idx := range output {
		output[idx] = complex(lut[input[i]], lut[input[i+1]])
		i += 2
	}
}

const (
	// FloorDB is reported for empty or silent blocks.
	FloorDB = -120.0

	epsilon = 1e-12
)

// PowerDB returns the RMS power of a block in dBFS: 20*log10(rms + eps).
func PowerDB(block []float64) float64 {
	if len(block) == 0 {
		return FloorDB
	}
	rms := math.Sqrt(floats.Dot(block, block) / float64(len(block)))
	return 20 * math.Log10(rms+epsilon)
}

// MeanPowerDB returns the mean-square power of a block in dBFS. Used as the
// per-block aggregate signal diagnostic.
func MeanPowerDB(block []float64) float64 {
	if len(block) == 0 {
		return FloorDB
	}
	return 10 * math.Log10(floats.Dot(block, block)/float64(len(block))+epsilon)
}
