package audio

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Pipe writes 16-bit little-endian PCM to a named pipe. The fifo is created
// if missing. Opening is deferred until a reader appears; while nobody is
// reading, blocks are dropped rather than buffered so squelch closure is
// never followed by stale audio.
type Pipe struct {
	path string

	mu sync.Mutex
	f  *os.File
}

func NewPipe(path string) (*Pipe, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := unix.Mkfifo(path, 0o644); err != nil {
			return nil, errors.Wrapf(err, "mkfifo %s", path)
		}
	}
	return &Pipe{path: path}, nil
}

func (p *Pipe) Write(block []float64) error {
	if len(block) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.f == nil {
		// O_NONBLOCK open fails with ENXIO until a reader attaches.
		f, err := os.OpenFile(p.path, os.O_WRONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			if errors.Is(err, unix.ENXIO) {
				return nil
			}
			return errors.Wrapf(err, "open %s", p.path)
		}
		p.f = f
	}

	err := binary.Write(p.f, binary.LittleEndian, pcm16(block))
	if err != nil {
		// Reader went away or the fifo is full; drop and re-open lazily.
		p.f.Close()
		p.f = nil
		if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.EAGAIN) {
			return nil
		}
		return errors.Wrapf(err, "write %s", p.path)
	}
	return nil
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f = nil
	return err
}
