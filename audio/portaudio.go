package audio

import (
	"strconv"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	paInitOnce sync.Once
	paInitErr  error
)

// PortAudio plays audio on an output device. Writes go through a bounded
// queue consumed by the stream callback; when the queue is full the oldest
// pending block is dropped so acquisition never stalls on the audio device.
type PortAudio struct {
	stream *portaudio.Stream
	queue  chan []float32

	mu      sync.Mutex
	pending []float32
	closed  bool
}

const portAudioQueueDepth = 8

// NewPortAudio opens the default output device, or a device by index for
// ids of the form "portaudio:N".
func NewPortAudio(id string, sampleRate int) (*PortAudio, error) {
	paInitOnce.Do(func() {
		paInitErr = portaudio.Initialize()
	})
	if paInitErr != nil {
		return nil, errors.Wrap(paInitErr, "portaudio initialize")
	}

	dev, err := outputDevice(id)
	if err != nil {
		return nil, err
	}

	p := &PortAudio{queue: make(chan []float32, portAudioQueueDepth)}

	params := portaudio.LowLatencyParameters(nil, dev)
	params.Input.Channels = 0
	params.Output.Channels = 1
	params.SampleRate = float64(sampleRate)

	p.stream, err = portaudio.OpenStream(params, p.fill)
	if err != nil {
		return nil, errors.Wrap(err, "portaudio open stream")
	}
	if err := p.stream.Start(); err != nil {
		p.stream.Close()
		return nil, errors.Wrap(err, "portaudio start stream")
	}
	return p, nil
}

func outputDevice(id string) (*portaudio.DeviceInfo, error) {
	host, err := portaudio.DefaultHostApi()
	if err != nil {
		return nil, errors.Wrap(err, "portaudio host api")
	}

	idx := strings.TrimPrefix(id, "portaudio")
	idx = strings.TrimPrefix(idx, ":")
	if idx == "" {
		return host.DefaultOutputDevice, nil
	}

	n, err := strconv.Atoi(idx)
	if err != nil {
		return nil, errors.Errorf("bad portaudio device index %q", idx)
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, errors.Wrap(err, "portaudio devices")
	}
	if n < 0 || n >= len(devices) {
		return nil, errors.Errorf("portaudio device index %d out of range (%d devices)", n, len(devices))
	}
	return devices[n], nil
}

// fill is the stream callback; it drains the queue into the device buffer
// and pads with silence when the queue runs dry.
func (p *PortAudio) fill(out []float32) {
	n := 0
	for n < len(out) {
		if len(p.pending) == 0 {
			select {
			case p.pending = <-p.queue:
			default:
				for ; n < len(out); n++ {
					out[n] = 0
				}
				return
			}
		}
		c := copy(out[n:], p.pending)
		p.pending = p.pending[c:]
		n += c
	}
}

func (p *PortAudio) Write(block []float64) error {
	if len(block) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("portaudio sink closed")
	}
	p.mu.Unlock()

	buf := make([]float32, len(block))
	for idx, s := range block {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf[idx] = float32(s)
	}

	for {
		select {
		case p.queue <- buf:
			return nil
		default:
			// Queue full: shed the oldest block to bound latency.
			select {
			case <-p.queue:
				log.WithField("sink", "portaudio").Debug("dropped audio block")
			default:
			}
		}
	}
}

func (p *PortAudio) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.stream.Stop(); err != nil {
		p.stream.Close()
		return err
	}
	return p.stream.Close()
}
