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

// Package gate implements the stateful audio gates applied to each
// demodulated channel: a power squelch with hysteresis and a subaudible
// tone gate.
package gate

import "github.com/bemasher/rtlmux/dsp"

// Default squelch parameters.
const (
	DefaultThresholdDB  = -45.0
	DefaultHysteresisDB = 2.0
)

// Squelch is a power-threshold gate with hysteresis. It opens when block
// power exceeds ThresholdDB and closes only when power drops below
// ThresholdDB - HysteresisDB. The asymmetric band prevents rapid chatter
// when the signal sits at the threshold. At most one transition occurs per
// Update.
type Squelch struct {
	ThresholdDB  float64
	HysteresisDB float64

	open bool
}

func NewSquelch(thresholdDB, hysteresisDB float64) *Squelch {
	return &Squelch{
		ThresholdDB:  thresholdDB,
		HysteresisDB: hysteresisDB,
	}
}

// Update measures block power and advances the gate state. Returns true
// while the gate is open.
func (s *Squelch) Update(block []float64) bool {
	return s.UpdatePower(dsp.PowerDB(block))
}

// UpdatePower advances the gate from an already-measured power in dBFS.
func (s *Squelch) UpdatePower(powerDB float64) bool {
	if !s.open && powerDB > s.ThresholdDB {
		s.open = true
	} else if s.open && powerDB < s.ThresholdDB-s.HysteresisDB {
		s.open = false
	}
	return s.open
}

// Open reports the gate state without advancing it.
func (s *Squelch) Open() bool {
	return s.open
}
