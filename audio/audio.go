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

// Package audio routes demodulated channel audio to output devices, named
// pipes or test doubles. Sinks must be non-blocking or bounded in latency:
// channel delivery is synchronous with acquisition and a stalled sink
// throttles its entire receiver.
package audio

import (
	"strings"

	"github.com/pkg/errors"
)

// Sink consumes demodulated audio blocks. Write must not block
// indefinitely; dropping a block is preferable to stalling acquisition.
// Close releases the sink resource and is idempotent.
type Sink interface {
	Write(block []float64) error
	Close() error
}

// Open constructs a sink from its identifier:
//
//	"null"           discard audio
//	"pipe:/path"     named pipe, 16-bit little-endian PCM
//	"portaudio"      default output device
//	"portaudio:N"    output device by index
func Open(id string, sampleRate int) (Sink, error) {
	switch {
	case id == "" || id == "null":
		return Null{}, nil
	case strings.HasPrefix(id, "pipe:"):
		return NewPipe(strings.TrimPrefix(id, "pipe:"))
	case id == "portaudio" || strings.HasPrefix(id, "portaudio:"):
		return NewPortAudio(id, sampleRate)
	}
	return nil, errors.Errorf("unknown sink %q", id)
}

// pcm16 converts normalized samples to 16-bit PCM with clipping.
func pcm16(block []float64) []int16 {
	out := make([]int16, len(block))
	for idx, s := range block {
		v := s * 32767.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[idx] = int16(v)
	}
	return out
}

// Null discards everything.
type Null struct{}

func (Null) Write([]float64) error { return nil }
func (Null) Close() error          { return nil }
