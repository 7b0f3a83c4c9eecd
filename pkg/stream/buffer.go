// ABOUTME: Reorder-by-sequence chunk buffer with bounded capacity
// ABOUTME: Guarantees strict in-order, duplicate-free delivery with lossy eviction
package stream

import (
	"sync"

	"github.com/pcmcast/pcmcast-go/pkg/audio"
)

// DefaultMaxBufferChunks bounds buffered-but-unconsumed chunks per stream.
const DefaultMaxBufferChunks = 100

// BufferConfig configures a Buffer.
type BufferConfig struct {
	// MaxChunks bounds the number of buffered, unconsumed chunks
	// (default: 100).
	MaxChunks int

	// OnDrop, when set, is called with the number of chunks removed by a
	// capacity-eviction pass. Eviction is a memory-bounded lossy policy,
	// not an error.
	OnDrop func(count int)
}

// Buffer reorders chunks that arrive out of order or duplicated. It delivers
// chunks to its consumer in strictly increasing, gap-free sequence order;
// gaps stall delivery rather than being skipped, except under the bounded
// eviction policy. Safe for concurrent use.
type Buffer struct {
	mu sync.Mutex

	chunks       map[int]audio.Chunk
	nextExpected int
	finalSeq     int
	hasFinal     bool

	maxChunks int
	onDrop    func(int)
}

// NewBuffer creates a chunk reorder buffer.
func NewBuffer(config BufferConfig) *Buffer {
	if config.MaxChunks <= 0 {
		config.MaxChunks = DefaultMaxBufferChunks
	}

	return &Buffer{
		chunks:    make(map[int]audio.Chunk),
		maxChunks: config.MaxChunks,
		onDrop:    config.OnDrop,
	}
}

// Add stores a chunk by sequence number and reports whether it was stored.
// Chunks below the consumption cursor (already consumed or superseded) and
// duplicates of buffered chunks are silently dropped, which makes delivery
// idempotent. Exceeding capacity triggers an oldest-first eviction pass.
func (b *Buffer) Add(c audio.Chunk) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c.Sequence < b.nextExpected {
		return false
	}
	if _, exists := b.chunks[c.Sequence]; exists {
		return false
	}

	b.chunks[c.Sequence] = c

	if c.Final {
		b.finalSeq = c.Sequence
		b.hasFinal = true
	}

	if len(b.chunks) > b.maxChunks {
		b.evict()
	}
	return true
}

// Accepts reports whether Add would store the chunk rather than drop it as
// stale or duplicate.
func (b *Buffer) Accepts(c audio.Chunk) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c.Sequence < b.nextExpected {
		return false
	}
	_, exists := b.chunks[c.Sequence]
	return !exists
}

// evict removes the lowest-numbered buffered entries until at most maxChunks
// remain. If the pass skips past the cursor, the cursor advances to the
// lowest remaining sequence, accepting permanent loss of the skipped range.
// Caller holds b.mu.
func (b *Buffer) evict() {
	dropped := 0
	for len(b.chunks) > b.maxChunks {
		lowest := -1
		for seq := range b.chunks {
			if lowest < 0 || seq < lowest {
				lowest = seq
			}
		}
		delete(b.chunks, lowest)
		dropped++
	}

	// Advance the cursor past the evicted range.
	lowest := -1
	for seq := range b.chunks {
		if lowest < 0 || seq < lowest {
			lowest = seq
		}
	}
	if lowest > b.nextExpected {
		b.nextExpected = lowest
	}

	if b.onDrop != nil && dropped > 0 {
		b.onDrop(dropped)
	}
}

// Peek returns the chunk at the consumption cursor without removing it.
func (b *Buffer) Peek() (audio.Chunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.chunks[b.nextExpected]
	return c, ok
}

// Next returns and removes the chunk at the consumption cursor, advancing the
// cursor by one. Returns false if that sequence has not arrived yet (gap).
func (b *Buffer) Next() (audio.Chunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.chunks[b.nextExpected]
	if !ok {
		return audio.Chunk{}, false
	}

	delete(b.chunks, b.nextExpected)
	b.nextExpected++
	return c, true
}

// HasNext reports whether the chunk at the consumption cursor is present.
func (b *Buffer) HasNext() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.chunks[b.nextExpected]
	return ok
}

// HasFinal reports whether the stream's final chunk has been received.
func (b *Buffer) HasFinal() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasFinal
}

// Complete reports whether the final chunk has been both received and
// consumed.
func (b *Buffer) Complete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasFinal && b.nextExpected > b.finalSeq
}

// Len returns the number of buffered, unconsumed chunks.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// NextExpected returns the current consumption cursor.
func (b *Buffer) NextExpected() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextExpected
}

// Reset clears all state for stream reuse.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = make(map[int]audio.Chunk)
	b.nextExpected = 0
	b.finalSeq = 0
	b.hasFinal = false
}
