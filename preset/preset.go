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

// Package preset defines persisted channel presets and their storage. The
// core consumes and produces these records; ownership of where they live
// belongs to the Store implementation.
package preset

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/bemasher/rtlmux/gate"
)

// Preset is a persisted channel configuration, keyed by name in a Store.
// Tone configuration is kept as strings on disk and converted to the
// gate.ToneSpec sum type at activation.
type Preset struct {
	Frequency  uint32  `yaml:"frequency"`
	SquelchDB  float64 `yaml:"squelch"`
	Hysteresis float64 `yaml:"hysteresis,omitempty"`
	ToneType   string  `yaml:"tone_type,omitempty"`
	ToneValue  float64 `yaml:"tone_value,omitempty"`
	ToneCode   string  `yaml:"tone_code,omitempty"`
	Sink       string  `yaml:"sink,omitempty"`
}

// Tone resolves the stored tone fields into a ToneSpec.
func (p Preset) Tone() (gate.ToneSpec, error) {
	switch strings.ToLower(p.ToneType) {
	case "", "none":
		return gate.None(), nil
	case "ctcss", "pl":
		if p.ToneValue <= 0 {
			return gate.ToneSpec{}, errors.Errorf("ctcss tone requires a positive tone_value, got %v", p.ToneValue)
		}
		return gate.CTCSS(p.ToneValue), nil
	case "dcs", "dpl":
		if p.ToneCode == "" {
			return gate.ToneSpec{}, errors.New("dcs tone requires tone_code")
		}
		return gate.DCS(p.ToneCode), nil
	}
	return gate.ToneSpec{}, errors.Errorf("unknown tone_type %q", p.ToneType)
}

// HysteresisDB returns the squelch hysteresis, defaulted when unset.
func (p Preset) HysteresisDB() float64 {
	if p.Hysteresis <= 0 {
		return gate.DefaultHysteresisDB
	}
	return p.Hysteresis
}

// Store supplies and accepts preset records. Implementations own
// persistence; the core never touches the backing medium directly.
type Store interface {
	Load() (map[string]Preset, error)
	Save(map[string]Preset) error
}
