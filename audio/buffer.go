package audio

import "sync"

// Buffer is an in-memory sink for tests. It copies every block it receives;
// callers are free to reuse their block buffers.
type Buffer struct {
	mu     sync.Mutex
	blocks [][]float64
	closed bool
}

func (b *Buffer) Write(block []float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks = append(b.blocks, append([]float64{}, block...))
	return nil
}

func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Blocks returns the blocks written so far.
func (b *Buffer) Blocks() [][]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]float64{}, b.blocks...)
}

// Samples returns the total number of samples written.
func (b *Buffer) Samples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, blk := range b.blocks {
		n += len(blk)
	}
	return n
}

// Closed reports whether Close has been called.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
