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

// Package receiver ties one rtl_tcp connection to a set of demodulated
// audio channels. The acquisition loop reads fixed-size IQ blocks and hands
// each block to every active channel exactly once, in arrival order.
package receiver

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/bemasher/rtlmux/audio"
	"github.com/bemasher/rtlmux/dsp"
	"github.com/bemasher/rtlmux/event"
	"github.com/bemasher/rtlmux/preset"
	"github.com/bemasher/rtlmux/rtltcp"
)

// ConnState is the receiver connection status.
type ConnState int

const (
	// Disconnected: no connection, by request or after a failed connect.
	Disconnected ConnState = iota
	// Connected: acquisition loop running.
	Connected
	// Lost: the stream died underneath a live receiver.
	Lost
)

func (s ConnState) String() string {
	switch s {
	case Connected:
		return "connected"
	case Lost:
		return "lost"
	}
	return "disconnected"
}

// DispatchPolicy selects how blocks fan out to channels.
type DispatchPolicy int

const (
	// DispatchSequential delivers to channels one at a time. A slow channel
	// throttles the whole receiver.
	DispatchSequential DispatchPolicy = iota
	// DispatchParallel delivers to all channels concurrently and waits for
	// the slowest before the next read, bounding fan-out latency by the
	// worst channel instead of the sum.
	DispatchParallel
)

// SinkOpener constructs the audio sink for a channel.
type SinkOpener func(id string, sampleRate int) (audio.Sink, error)

// Config identifies and parameterizes a receiver. Name, Host, Port are the
// receiver's identity; the rest defaults sensibly.
type Config struct {
	Name string
	Host string
	Port int

	GainDB     float64
	SampleRate int // Hz, default 2048000

	// BlockBytes is the fixed IQ read size, default 16384 (8192 sample
	// pairs).
	BlockBytes int

	// MaxEmptyReads is the number of consecutive empty reads after which
	// the connection is declared lost. Default 50.
	MaxEmptyReads int

	DialTimeout time.Duration

	Dispatch DispatchPolicy

	// SpectrumEvery publishes a power spectrum event every N blocks.
	// 0 disables.
	SpectrumEvery int

	// OpenSink defaults to audio.Open.
	OpenSink SinkOpener

	// Store supplies presets for SetChannel. Optional.
	Store preset.Store
}

const (
	defaultSampleRate    = 2048000
	defaultBlockBytes    = 16384
	defaultMaxEmptyReads = 50
	defaultDialTimeout   = 5 * time.Second

	emptyReadDelay = 50 * time.Millisecond
)

// ErrUnknownChannel is returned when removing a channel id that does not
// exist.
var ErrUnknownChannel = errors.New("unknown channel")

// Receiver manages a single rtl_tcp dongle and its channels. The tuner's
// center frequency and gain are shared resources: channels are taps on
// whatever the tuner currently delivers, and exclusive preset activation is
// retune-then-replace-all-taps.
type Receiver struct {
	cfg Config
	bus *event.Bus
	log *log.Entry

	client *rtltcp.Client

	mu        sync.Mutex
	channels  map[string]*Channel
	order     []string
	state     ConnState
	tunedFreq uint32
	stop      chan struct{}
	stopped   bool
	done      chan struct{}

	presets *ChannelSet

	// spectrum scratch, owned by the acquisition goroutine
	fft    *fourier.CmplxFFT
	fftIn  []complex128
	fftOut []complex128
}

// New builds a Receiver. Presets load immediately when cfg.Store is set.
func New(cfg Config, bus *event.Bus) (*Receiver, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.BlockBytes == 0 {
		cfg.BlockBytes = defaultBlockBytes
	}
	if cfg.MaxEmptyReads == 0 {
		cfg.MaxEmptyReads = defaultMaxEmptyReads
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.OpenSink == nil {
		cfg.OpenSink = audio.Open
	}
	if bus == nil {
		bus = event.NewBus()
	}

	r := &Receiver{
		cfg:      cfg,
		bus:      bus,
		log:      log.WithField("receiver", cfg.Name),
		channels: make(map[string]*Channel),
	}

	if cfg.Store != nil {
		presets, err := NewChannelSet(cfg.Store)
		if err != nil {
			return nil, err
		}
		r.presets = presets
	}

	return r, nil
}

// Connect dials the rtl_tcp server, applies sample rate and gain, and
// starts the acquisition loop. On failure the receiver remains
// Disconnected; reconnecting is the caller's policy.
func (r *Receiver) Connect() error {
	client := new(rtltcp.Client)
	if err := client.Connect(r.cfg.Host, r.cfg.Port, r.cfg.DialTimeout); err != nil {
		return err
	}
	return r.ConnectWith(client)
}

// ConnectWith adopts an already-attached protocol client, applies base
// configuration and starts the acquisition loop. Exposed for tests and
// alternate transports.
func (r *Receiver) ConnectWith(client *rtltcp.Client) error {
	r.mu.Lock()
	if r.state == Connected {
		r.mu.Unlock()
		client.Close()
		return errors.New("already connected")
	}
	r.mu.Unlock()

	if err := client.SetSampleRate(uint32(r.cfg.SampleRate)); err != nil {
		client.Close()
		return err
	}
	if err := client.SetGain(r.cfg.GainDB); err != nil {
		client.Close()
		return err
	}

	r.mu.Lock()
	r.client = client
	r.state = Connected
	r.stop = make(chan struct{})
	r.stopped = false
	r.done = make(chan struct{})
	r.mu.Unlock()

	r.log.WithFields(log.Fields{
		"tuner": client.Info.Tuner.String(),
		"gain":  r.cfg.GainDB,
		"rate":  r.cfg.SampleRate,
	}).Info("receiver connected")
	r.bus.Publish(event.ReceiverConnected, event.Payload{"receiver": r.cfg.Name})

	go r.run()
	return nil
}

// Status reports the connection state.
func (r *Receiver) Status() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// TunedFreq returns the tuner's current center frequency; the single such
// frequency this receiver has at any instant.
func (r *Receiver) TunedFreq() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tunedFreq
}

// Presets exposes this receiver's preset set. Nil when no Store was
// configured.
func (r *Receiver) Presets() *ChannelSet {
	return r.presets
}

// Done is closed when the acquisition loop has exited. Nil before the first
// Connect.
func (r *Receiver) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Disconnect cancels the acquisition task and blocks until the socket is
// released and every channel has stopped. Safe to call in any state and
// more than once.
func (r *Receiver) Disconnect() {
	r.mu.Lock()
	if r.done == nil {
		r.mu.Unlock()
		return
	}
	if !r.stopped {
		r.stopped = true
		close(r.stop)
	}
	client, done := r.client, r.done
	r.mu.Unlock()

	// Closing the socket unblocks a read in progress.
	client.Close()
	<-done

	r.mu.Lock()
	old := r.takeChannelsLocked()
	wasConnected := r.state == Connected
	r.state = Disconnected
	r.mu.Unlock()

	for _, ch := range old {
		ch.Stop()
	}

	// A Lost receiver already announced its own disconnection.
	if wasConnected {
		r.log.Info("receiver disconnected")
		r.bus.Publish(event.ReceiverDisconnected, event.Payload{
			"receiver": r.cfg.Name,
			"reason":   "requested",
		})
	}
}

// takeChannelsLocked empties the channel table and returns the channels in
// dispatch order. Caller holds r.mu.
func (r *Receiver) takeChannelsLocked() []*Channel {
	out := make([]*Channel, 0, len(r.order))
	for _, id := range r.order {
		if ch, ok := r.channels[id]; ok {
			out = append(out, ch)
		}
	}
	r.channels = make(map[string]*Channel)
	r.order = nil
	return out
}

// retune points the shared tuner at freq. Command serialization happens in
// the protocol client; at most one command frame is in flight at a time.
func (r *Receiver) retune(freq uint32) error {
	r.mu.Lock()
	client := r.client
	r.mu.Unlock()
	if client == nil {
		return errors.New("not connected")
	}

	if err := client.SetCenterFreq(freq); err != nil {
		return err
	}

	r.mu.Lock()
	r.tunedFreq = freq
	r.mu.Unlock()
	return nil
}

// SetGain adjusts tuner gain in dB.
func (r *Receiver) SetGain(gainDB float64) error {
	r.mu.Lock()
	client := r.client
	r.mu.Unlock()
	if client == nil {
		return errors.New("not connected")
	}
	if err := client.SetGain(gainDB); err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg.GainDB = gainDB
	r.mu.Unlock()
	return nil
}

// AddChannel creates and starts a channel without disturbing siblings.
// An empty ID is assigned a fresh one. Starting retunes the shared tuner to
// the channel's frequency; if running siblings declare other frequencies
// the displacement is logged, not hidden.
func (r *Receiver) AddChannel(cfg ChannelConfig) (*Channel, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.HysteresisDB <= 0 {
		cfg.HysteresisDB = 2
	}

	sink, err := r.cfg.OpenSink(cfg.Sink, r.cfg.SampleRate)
	if err != nil {
		return nil, errors.Wrapf(err, "open sink for channel %s", cfg.ID)
	}

	ch := newChannel(r, cfg, sink)

	r.mu.Lock()
	if _, dup := r.channels[cfg.ID]; dup {
		r.mu.Unlock()
		sink.Close()
		return nil, errors.Errorf("channel %s already exists", cfg.ID)
	}
	for _, id := range r.order {
		sibling := r.channels[id]
		if sibling.Running() && sibling.Frequency() != cfg.Frequency {
			r.log.WithFields(log.Fields{
				"channel":      id,
				"channel_freq": sibling.Frequency(),
				"new_freq":     cfg.Frequency,
			}).Warn("retune displaces a running channel's frequency")
		}
	}
	r.channels[cfg.ID] = ch
	r.order = append(r.order, cfg.ID)
	r.mu.Unlock()

	if err := ch.Start(); err != nil {
		r.mu.Lock()
		delete(r.channels, cfg.ID)
		r.removeFromOrder(cfg.ID)
		r.mu.Unlock()
		sink.Close()
		return nil, err
	}

	r.bus.Publish(event.ChannelAdded, event.Payload{
		"receiver": r.cfg.Name,
		"channel":  cfg.ID,
		"freq":     cfg.Frequency,
	})
	return ch, nil
}

// RemoveChannel stops and destroys one channel, releasing its sink.
func (r *Receiver) RemoveChannel(id string) error {
	r.mu.Lock()
	ch, ok := r.channels[id]
	if ok {
		delete(r.channels, id)
		r.removeFromOrder(id)
	}
	r.mu.Unlock()

	if !ok {
		r.log.WithField("channel", id).Warn("remove: unknown channel")
		return ErrUnknownChannel
	}

	ch.Stop()
	r.bus.Publish(event.ChannelRemoved, event.Payload{
		"receiver": r.cfg.Name,
		"channel":  id,
	})
	return nil
}

// removeFromOrder drops id from the dispatch order. Caller holds r.mu.
func (r *Receiver) removeFromOrder(id string) {
	for idx, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:idx], r.order[idx+1:]...)
			return
		}
	}
}

// Channels returns the ids of active channels, sorted.
func (r *Receiver) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string{}, r.order...)
	sort.Strings(out)
	return out
}

// Channel looks up an active channel by id.
func (r *Receiver) Channel(id string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// run is the acquisition loop: read one fixed-size block, normalize,
// publish the aggregate power diagnostic, fan out to every active channel,
// repeat. Empty reads degrade to a short wait; a bounded run of them, or a
// dead connection, ends the loop with status Lost.
func (r *Receiver) run() {
	defer close(r.done)

	var (
		raw  = make([]byte, r.cfg.BlockBytes)
		flat = make([]float64, r.cfg.BlockBytes)
		iq   = make([]complex128, r.cfg.BlockBytes/2)
		lut  = dsp.NewNormLUT()

		emptyReads int
		blocks     uint64
	)

	r.log.Debug("acquisition loop started")
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		n := r.client.ReadIQ(raw)
		if n == 0 {
			// A requested stop closes the socket out from under the read;
			// that is not a lost connection.
			select {
			case <-r.stop:
				return
			default:
			}
			if !r.client.Live() {
				r.markLost("stream closed")
				return
			}
			emptyReadsTotal.WithLabelValues(r.cfg.Name).Inc()
			emptyReads++
			if emptyReads >= r.cfg.MaxEmptyReads {
				r.markLost("consecutive empty reads")
				return
			}
			time.Sleep(emptyReadDelay)
			continue
		}
		emptyReads = 0
		blocks++
		blocksReadTotal.WithLabelValues(r.cfg.Name).Inc()

		lut.Execute(raw, flat)
		lut.Complex(raw, iq)

		power := dsp.MeanPowerDB(flat)
		signalPower.WithLabelValues(r.cfg.Name).Set(power)
		r.bus.Publish(event.SignalUpdate, event.Payload{
			"receiver": r.cfg.Name,
			"power":    power,
		})

		if r.cfg.SpectrumEvery > 0 && blocks%uint64(r.cfg.SpectrumEvery) == 0 {
			r.publishSpectrum(iq)
		}

		r.dispatch(iq)
	}
}

// markLost records an involuntary connection loss.
func (r *Receiver) markLost(reason string) {
	r.mu.Lock()
	if r.state != Connected {
		r.mu.Unlock()
		return
	}
	r.state = Lost
	r.mu.Unlock()

	r.log.WithField("reason", reason).Warn("connection lost")
	r.bus.Publish(event.ReceiverDisconnected, event.Payload{
		"receiver": r.cfg.Name,
		"reason":   reason,
	})
}

// dispatch hands one block to every active channel. Channels never see
// blocks out of order or more than once; a fault in one channel is logged
// and does not reach its siblings or the loop.
func (r *Receiver) dispatch(iq []complex128) {
	r.mu.Lock()
	chans := make([]*Channel, 0, len(r.order))
	for _, id := range r.order {
		if ch, ok := r.channels[id]; ok {
			chans = append(chans, ch)
		}
	}
	r.mu.Unlock()

	if r.cfg.Dispatch == DispatchParallel && len(chans) > 1 {
		var wg sync.WaitGroup
		for _, ch := range chans {
			wg.Add(1)
			go func(ch *Channel) {
				defer wg.Done()
				r.deliver(ch, iq)
			}(ch)
		}
		wg.Wait()
		return
	}

	for _, ch := range chans {
		r.deliver(ch, iq)
	}
}

func (r *Receiver) deliver(ch *Channel, iq []complex128) {
	defer func() {
		if p := recover(); p != nil {
			err, _ := p.(error)
			if err == nil {
				err = xerrors.Errorf("panic: %v", p)
			} else {
				err = xerrors.Errorf("recovered: %w", err)
			}
			processingFaults.WithLabelValues(r.cfg.Name, ch.ID).Inc()
			r.log.WithError(err).WithField("channel", ch.ID).Error("channel processing fault")
		}
	}()
	ch.process(iq)
}
