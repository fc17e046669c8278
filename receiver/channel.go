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

package receiver

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/bemasher/rtlmux/audio"
	"github.com/bemasher/rtlmux/dsp"
	"github.com/bemasher/rtlmux/event"
	"github.com/bemasher/rtlmux/gate"
)

// ChannelConfig describes one demodulated audio channel.
type ChannelConfig struct {
	ID           string
	Frequency    uint32
	SquelchDB    float64
	HysteresisDB float64
	Tone         gate.ToneSpec
	Sink         string
}

// Channel is a single squelch- and tone-gated audio path tapping its
// receiver's IQ stream. Its stored frequency is only meaningful while it
// matches the receiver's currently tuned frequency; the tuner is a shared
// resource and the receiver arbitrates it.
type Channel struct {
	ID string

	rx *Receiver

	mu      sync.Mutex
	cfg     ChannelConfig
	demod   *dsp.Demodulator
	squelch *gate.Squelch
	tone    *gate.Tone
	sink    audio.Sink
	running bool
	open    bool

	log *log.Entry
}

func newChannel(rx *Receiver, cfg ChannelConfig, sink audio.Sink) *Channel {
	return &Channel{
		ID:      cfg.ID,
		rx:      rx,
		cfg:     cfg,
		demod:   new(dsp.Demodulator),
		squelch: gate.NewSquelch(cfg.SquelchDB, cfg.HysteresisDB),
		tone:    gate.NewTone(cfg.Tone, rx.cfg.SampleRate),
		sink:    sink,
		log: log.WithFields(log.Fields{
			"receiver": rx.cfg.Name,
			"channel":  cfg.ID,
		}),
	}
}

// Start tunes the receiver's shared tuner to the channel frequency and
// begins processing.
func (ch *Channel) Start() error {
	if err := ch.rx.retune(ch.cfg.Frequency); err != nil {
		return err
	}

	ch.mu.Lock()
	ch.running = true
	freq := ch.cfg.Frequency
	ch.mu.Unlock()

	ch.log.WithField("freq", freq).Info("channel started")
	return nil
}

// Stop halts processing and releases the audio sink. If the gate is open a
// closing notification is emitted first so open events stay paired.
func (ch *Channel) Stop() {
	ch.mu.Lock()
	wasOpen := ch.open
	freq := ch.cfg.Frequency
	ch.running = false
	ch.open = false
	sink := ch.sink
	ch.mu.Unlock()

	if wasOpen {
		ch.publishGate(event.ChannelClosed, freq)
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			ch.log.WithError(err).Warn("sink close failed")
		}
	}
	ch.log.Info("channel stopped")
}

// SetFrequency updates the stored frequency and retunes the shared tuner.
// Concurrent retunes against the same receiver are serialized by the
// protocol client.
func (ch *Channel) SetFrequency(hz uint32) error {
	if err := ch.rx.retune(hz); err != nil {
		return err
	}

	ch.mu.Lock()
	ch.cfg.Frequency = hz
	ch.mu.Unlock()

	ch.log.WithField("freq", hz).Info("channel retuned")
	return nil
}

// Running reports the channel run state.
func (ch *Channel) Running() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.running
}

// Open reports the gate state.
func (ch *Channel) Open() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.open
}

// Frequency returns the channel's stored center frequency.
func (ch *Channel) Frequency() uint32 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.cfg.Frequency
}

// process consumes one IQ block. Demodulation feeds the squelch and tone
// gates; audio flows to the sink only while both pass. The gate makes at
// most one transition per block and every transition emits exactly one
// notification, published after the lock is released so subscribers may
// call back into the channel. Nothing is written after the gate closes.
func (ch *Channel) process(iq []complex128) {
	transition, freq := ch.processLocked(iq)

	switch transition {
	case event.ChannelOpened:
		ch.publishGate(event.ChannelOpened, freq)
		ch.log.WithField("freq", freq).Info("gate open")
	case event.ChannelClosed:
		ch.publishGate(event.ChannelClosed, freq)
		ch.log.WithField("freq", freq).Info("gate closed")
	}
}

func (ch *Channel) processLocked(iq []complex128) (transition string, freq uint32) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if !ch.running || len(iq) < 2 {
		return "", 0
	}

	block := ch.demod.Demodulate(iq)
	if len(block) == 0 {
		return "", 0
	}

	squelchOpen := ch.squelch.Update(block)
	toneMatch := ch.tone.Match(block)
	open := squelchOpen && toneMatch

	switch {
	case open && !ch.open:
		ch.open = true
		transition = event.ChannelOpened
		gateTransitions.WithLabelValues(ch.rx.cfg.Name, ch.ID, "open").Inc()
	case !open && ch.open:
		ch.open = false
		transition = event.ChannelClosed
		gateTransitions.WithLabelValues(ch.rx.cfg.Name, ch.ID, "closed").Inc()
	}

	if open {
		if err := ch.sink.Write(block); err != nil {
			audioWriteErrors.WithLabelValues(ch.rx.cfg.Name, ch.ID).Inc()
			ch.log.WithError(err).Warn("audio write failed")
		}
	}

	return transition, ch.cfg.Frequency
}

func (ch *Channel) publishGate(name string, freq uint32) {
	ch.rx.bus.Publish(name, event.Payload{
		"receiver": ch.rx.cfg.Name,
		"channel":  ch.ID,
		"freq":     freq,
	})
}
