package audio

import "sync"

// Buffer is a thread-safe queue of raw PCM chunks connecting one capture
// callback (producer) to one polling loop (consumer).
//
// Push appends a chunk; DrainAll atomically removes and returns everything
// queued so far without blocking. Every pushed chunk is returned by exactly
// one DrainAll call — no loss, no duplication. After Close, Push becomes a
// no-op and any still-queued chunks are discarded.
//
// All methods are safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	chunks [][]byte
	closed bool
}

// NewBuffer returns an empty, open Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Push appends chunk to the buffer. Called from the capture callback at
// arbitrary times. Push on a closed buffer is a no-op.
func (b *Buffer) Push(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.chunks = append(b.chunks, chunk)
}

// DrainAll atomically removes and returns all buffered chunks, or nil if
// none are pending. It never blocks.
func (b *Buffer) DrainAll() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.chunks) == 0 {
		return nil
	}
	out := b.chunks
	b.chunks = nil
	return out
}

// Len returns the number of chunks currently queued.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Close discards any queued chunks and turns subsequent Push calls into
// no-ops. Once a stop has been requested, delivery is best effort: chunks
// queued after Close are dropped.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.chunks = nil
}

// Concat joins chunks into a single contiguous PCM sample.
func Concat(chunks [][]byte) []byte {
	var n int
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
