// ABOUTME: PCM chunk encoder with flush-on-end semantics
// ABOUTME: Slices accumulated PCM bytes into fixed-duration sequenced chunks
package stream

import (
	"time"

	"github.com/google/uuid"
	"github.com/pcmcast/pcmcast-go/pkg/audio"
)

// DefaultChunkDurationMs is the nominal chunk duration when none is configured.
const DefaultChunkDurationMs = 100

// EncoderConfig configures an Encoder.
type EncoderConfig struct {
	// Format is the PCM format of the input bytes (default: audio.DefaultFormat).
	Format audio.Format

	// ChunkDurationMs is the nominal duration of each full chunk (default: 100).
	ChunkDurationMs int

	// StreamID identifies the first stream (default: fresh uuid).
	StreamID string
}

// Encoder slices raw PCM bytes into ordered chunks. It exclusively owns the
// accumulation buffer for not-yet-chunked bytes. Purely deterministic
// integer/byte arithmetic; no failure conditions.
type Encoder struct {
	format    audio.Format
	chunkMs   int
	chunkSize int

	streamID string
	seq      int
	buf      []byte
}

// NewEncoder creates a chunk encoder.
func NewEncoder(config EncoderConfig) *Encoder {
	if config.Format == (audio.Format{}) {
		config.Format = audio.DefaultFormat()
	}
	if config.ChunkDurationMs == 0 {
		config.ChunkDurationMs = DefaultChunkDurationMs
	}
	if config.StreamID == "" {
		config.StreamID = uuid.New().String()
	}

	return &Encoder{
		format:    config.Format,
		chunkMs:   config.ChunkDurationMs,
		chunkSize: config.Format.ChunkBytes(config.ChunkDurationMs),
		streamID:  config.StreamID,
	}
}

// Encode appends pcm to the accumulation buffer and slices off full chunks.
// Returns a possibly-empty slice when not enough data has accumulated.
func (e *Encoder) Encode(pcm []byte) []audio.Chunk {
	e.buf = append(e.buf, pcm...)

	var chunks []audio.Chunk
	for len(e.buf) >= e.chunkSize {
		data := make([]byte, e.chunkSize)
		copy(data, e.buf[:e.chunkSize])
		e.buf = e.buf[e.chunkSize:]

		chunks = append(chunks, e.newChunk(data, false))
	}

	return chunks
}

// Flush emits the remaining partial buffer as the single final chunk. When no
// bytes remain it emits an empty zero-duration marker, so every stream ends
// with exactly one final chunk.
func (e *Encoder) Flush() []audio.Chunk {
	data := make([]byte, len(e.buf))
	copy(data, e.buf)
	e.buf = e.buf[:0]

	return []audio.Chunk{e.newChunk(data, true)}
}

// Reset starts a new logical stream: clears the buffer, resets the sequence
// counter, and assigns a fresh stream id unless one is supplied.
func (e *Encoder) Reset(streamID ...string) {
	e.buf = nil
	e.seq = 0

	if len(streamID) > 0 && streamID[0] != "" {
		e.streamID = streamID[0]
	} else {
		e.streamID = uuid.New().String()
	}
}

// StreamID returns the current stream identifier.
func (e *Encoder) StreamID() string { return e.streamID }

// Format returns the configured PCM format.
func (e *Encoder) Format() audio.Format { return e.format }

// ChunkSize returns the byte size of one full chunk.
func (e *Encoder) ChunkSize() int { return e.chunkSize }

// BufferedBytes returns the number of accumulated, not-yet-chunked bytes.
func (e *Encoder) BufferedBytes() int { return len(e.buf) }

func (e *Encoder) newChunk(data []byte, final bool) audio.Chunk {
	c := audio.Chunk{
		StreamID:   e.streamID,
		Sequence:   e.seq,
		Timestamp:  time.Now(),
		Format:     e.format,
		Data:       data,
		DurationMs: e.format.Duration(len(data)),
		Final:      final,
	}
	e.seq++
	return c
}
