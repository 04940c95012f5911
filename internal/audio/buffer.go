package audio

import (
	"sync"
)

// ChunkBuffer is an ordered, append-only list of encoded audio chunks.
// It is only ever cleared as a whole.
type ChunkBuffer struct {
	chunks [][]byte
	size   int

	mu sync.RWMutex
}

// NewChunkBuffer creates an empty chunk buffer
func NewChunkBuffer() *ChunkBuffer {
	return &ChunkBuffer{}
}

// Append adds an encoded chunk to the end of the buffer and returns the new chunk count
func (b *ChunkBuffer) Append(chunk []byte) int {
	buf := make([]byte, len(chunk))
	copy(buf, chunk)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = append(b.chunks, buf)
	b.size += len(buf)
	return len(b.chunks)
}

// Concat returns every chunk received so far joined in arrival order
func (b *ChunkBuffer) Concat() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]byte, 0, b.size)
	for _, chunk := range b.chunks {
		out = append(out, chunk...)
	}
	return out
}

// Len returns the number of chunks held
func (b *ChunkBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chunks)
}

// Size returns the total number of bytes held
func (b *ChunkBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Reset drops every chunk
func (b *ChunkBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = nil
	b.size = 0
}
