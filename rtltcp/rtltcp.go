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

// Package rtltcp implements the TCP control and data protocol spoken by
// rtl_tcp servers. Commands are fixed 5-byte frames, samples arrive as an
// unframed stream of interleaved unsigned 8-bit I/Q pairs.
package rtltcp

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var dongleMagic = [4]byte{'R', 'T', 'L', '0'}

// Opcode identifies an rtl_tcp command. Values defined in rtl_tcp.c.
type Opcode byte

const (
	SetFrequency     Opcode = 0x01
	SetSampleRate    Opcode = 0x02
	SetGainMode      Opcode = 0x03
	SetGain          Opcode = 0x04
	SetPPMCorrection Opcode = 0x05
)

func (op Opcode) String() string {
	switch op {
	case SetFrequency:
		return "SET_FREQUENCY"
	case SetSampleRate:
		return "SET_SAMPLE_RATE"
	case SetGainMode:
		return "SET_GAIN_MODE"
	case SetGain:
		return "SET_GAIN"
	case SetPPMCorrection:
		return "SET_PPM_CORRECTION"
	}
	return fmt.Sprintf("OP_%02X", byte(op))
}

// Encode serializes a command frame: 1-byte opcode followed by a 4-byte
// big-endian unsigned argument.
func Encode(op Opcode, arg uint32) [5]byte {
	var frame [5]byte
	frame[0] = byte(op)
	binary.BigEndian.PutUint32(frame[1:], arg)
	return frame
}

// DongleInfo is the 12-byte header rtl_tcp sends on connect. Contains the
// magic number, tuner type and the number of valid gain values.
type DongleInfo struct {
	Magic     [4]byte
	Tuner     Tuner
	GainCount uint32
}

func (d DongleInfo) String() string {
	return fmt.Sprintf("{Magic:%q Tuner:%s GainCount:%d}", d.Magic, d.Tuner, d.GainCount)
}

// Valid checks that the magic number matches the expected byte string 'RTL0'.
func (d DongleInfo) Valid() bool {
	return d.Magic == dongleMagic
}

// Tuner provides mapping of tuner value to tuner string.
type Tuner uint32

func (t Tuner) String() string {
	switch t {
	case 1:
		return "E4000"
	case 2:
		return "FC0012"
	case 3:
		return "FC0013"
	case 4:
		return "FC2580"
	case 5:
		return "R820T"
	case 6:
		return "R828D"
	}
	return "UNKNOWN"
}

// Client manages one connection to an rtl_tcp server. Command writes are
// serialized so concurrent retune and gain changes never interleave partial
// frames on the wire. The zero value is a disconnected client.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	live bool

	Info DongleInfo

	// ReadTimeout bounds a single ReadIQ call so a silent server surfaces
	// as empty reads instead of blocking forever. Zero selects the default.
	ReadTimeout time.Duration
}

const defaultReadTimeout = 100 * time.Millisecond

// Connect dials the server, reads the dongle information header and switches
// the tuner to manual gain mode. On failure the client remains disconnected;
// reconnecting is the caller's policy.
func (c *Client) Connect(host string, port int, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)), timeout)
	if err != nil {
		return errors.Wrap(err, "connect rtl_tcp")
	}
	return c.Attach(conn)
}

// Attach adopts an established connection and performs the rtl_tcp
// handshake. Exposed so tests and alternate transports can supply their own
// conn. On error the conn is closed and the client stays disconnected.
func (c *Client) Attach(conn net.Conn) (err error) {
	defer func() {
		if err != nil {
			conn.Close()
		}
	}()

	if err = binary.Read(conn, binary.BigEndian, &c.Info); err != nil {
		return errors.Wrap(err, "read dongle info")
	}
	if !c.Info.Valid() {
		return errors.Errorf("invalid magic number: expected %q received %q", dongleMagic, c.Info.Magic)
	}

	c.mu.Lock()
	c.conn = conn
	c.live = true
	c.mu.Unlock()

	// rtl_tcp expects the gain mode set before any manual gain command.
	return c.SetTunerGainMode(true)
}

// Live reports whether the connection is usable. Flips false on peer close,
// mid-stream errors, or Close.
func (c *Client) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func (c *Client) execute(op Opcode, arg uint32) error {
	frame := Encode(op, arg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.live {
		return errors.Errorf("send %s: not connected", op)
	}
	if _, err := c.conn.Write(frame[:]); err != nil {
		c.live = false
		return errors.Wrapf(err, "send %s", op)
	}
	return nil
}

// SetCenterFreq sets the tuner center frequency in Hz.
func (c *Client) SetCenterFreq(freq uint32) error {
	return c.execute(SetFrequency, freq)
}

// SetSampleRate sets the sample rate in Hz.
func (c *Client) SetSampleRate(rate uint32) error {
	return c.execute(SetSampleRate, rate)
}

// SetTunerGainMode selects manual (true) or automatic gain.
func (c *Client) SetTunerGainMode(manual bool) error {
	if manual {
		return c.execute(SetGainMode, 1)
	}
	return c.execute(SetGainMode, 0)
}

// SetGain sets tuner gain in dB; the wire argument is signed tenths of a dB.
// (19.7 dB => 197, -1.5 dB => -15)
func (c *Client) SetGain(gainDB float64) error {
	return c.execute(SetGain, uint32(int32(math.Round(gainDB*10.0))))
}

// SetFreqCorrection sets frequency correction in ppm.
func (c *Client) SetFreqCorrection(ppm uint32) error {
	return c.execute(SetPPMCorrection, ppm)
}

// ReadIQ blocks until buf is filled with raw interleaved unsigned 8-bit I/Q
// samples and returns len(buf), or until ReadTimeout elapses. Timeouts
// return 0 with the connection still live so callers may wait and retry. A
// short read or peer close returns 0 and marks the connection dead; neither
// is an error.
func (c *Client) ReadIQ(buf []byte) int {
	c.mu.Lock()
	conn := c.conn
	timeout := c.ReadTimeout
	c.mu.Unlock()
	if conn == nil {
		return 0
	}
	if timeout == 0 {
		timeout = defaultReadTimeout
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	n, err := io.ReadFull(conn, buf)
	if err == nil {
		return len(buf)
	}

	// A timeout before any bytes arrived leaves the stream aligned and the
	// connection usable. A timeout mid-frame would desync I/Q pairs, so it
	// falls through and kills the connection like any other error.
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() && n == 0 {
		return 0
	}

	c.mu.Lock()
	c.live = false
	c.mu.Unlock()
	return 0
}

// Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.live = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
