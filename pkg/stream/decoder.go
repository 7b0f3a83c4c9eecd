// ABOUTME: Chunk decoder driving a pull-based, backpressure-aware byte stream
// ABOUTME: Reorders via Buffer and detects stream completion and switches
package stream

import (
	"io"
	"sync"

	"github.com/pcmcast/pcmcast-go/pkg/audio"
)

// DefaultStreamDepth is the number of chunk payloads the output stream will
// hold before signaling backpressure to the decoder.
const DefaultStreamDepth = 8

// DecoderConfig configures a Decoder.
type DecoderConfig struct {
	// MaxBufferChunks bounds the reorder buffer (default: 100).
	MaxBufferChunks int

	// StreamDepth is the output stream's pending-payload capacity
	// (default: 8). When full, the decoder stops consuming chunks until
	// the reader pulls again.
	StreamDepth int

	// OnDrop is forwarded to the reorder buffer's eviction callback.
	OnDrop func(count int)

	// OnComplete, when set, is called once per stream at the moment the
	// final chunk is consumed from the reorder buffer. Completion can
	// happen inside AddChunk or inside a later Read pull that clears
	// backpressure.
	OnComplete func()
}

// Decoder consumes chunks in any arrival order and exposes a pull-driven
// byte stream of the original PCM. The first chunk of a session captures the
// stream id and format; a chunk with a different stream id triggers an
// implicit stream switch (full reset, no explicit end signal required).
type Decoder struct {
	mu sync.Mutex

	config DecoderConfig
	buffer *Buffer

	format   audio.Format
	streamID string
	started  bool
	ended    bool

	out *Reader
}

// NewDecoder creates a chunk decoder.
func NewDecoder(config DecoderConfig) *Decoder {
	if config.StreamDepth <= 0 {
		config.StreamDepth = DefaultStreamDepth
	}

	return &Decoder{
		config: config,
		buffer: NewBuffer(BufferConfig{
			MaxChunks: config.MaxBufferChunks,
			OnDrop:    config.OnDrop,
		}),
	}
}

// AddChunk hands a chunk to the reorder buffer and pushes any newly
// available in-order data to the output stream. It reports whether the chunk
// was accepted; stale and duplicate chunks are dropped without effect.
func (d *Decoder) AddChunk(c audio.Chunk) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started && c.StreamID != d.streamID {
		// Implicit stream switch: the sender started a new stream
		// without ending the previous one.
		d.resetLocked()
	}

	if !d.started {
		d.started = true
		d.streamID = c.StreamID
		d.format = c.Format
	}

	accepted := d.buffer.Add(c)
	d.pumpLocked()
	return accepted
}

// Accepts reports whether AddChunk would accept the chunk. A chunk from a
// different stream id is always accepted (it starts a new stream).
func (d *Decoder) Accepts(c audio.Chunk) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started && c.StreamID != d.streamID {
		return true
	}
	return d.buffer.Accepts(c)
}

// AddSerialized deserializes a wire-form chunk and adds it.
func (d *Decoder) AddSerialized(s audio.Serialized) error {
	c, err := s.Chunk()
	if err != nil {
		return err
	}
	d.AddChunk(c)
	return nil
}

// AddFrame parses one JSON text frame and adds the chunk it carries.
func (d *Decoder) AddFrame(frame []byte) error {
	c, err := audio.ParseFrame(frame)
	if err != nil {
		return err
	}
	d.AddChunk(c)
	return nil
}

// CreateStream returns the pull-driven byte stream of decoded PCM. Calling it
// again for the same session returns the existing stream.
func (d *Decoder) CreateStream() *Reader {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.out == nil {
		d.out = &Reader{
			dec:      d,
			payloads: make(chan []byte, d.config.StreamDepth),
		}
		d.pumpLocked()
	}
	return d.out
}

// pumpLocked pushes in-order chunk payloads to the output stream. A chunk is
// consumed from the buffer only after the stream accepted its payload;
// backpressure stalls consumption without ever dropping a chunk. Caller
// holds d.mu.
func (d *Decoder) pumpLocked() {
	s := d.out
	if s == nil || d.ended || s.closed {
		return
	}

	for {
		c, ok := d.buffer.Peek()
		if !ok {
			return
		}

		if len(c.Data) > 0 {
			select {
			case s.payloads <- c.Data:
			default:
				// Downstream declined; wait for the next pull.
				return
			}
		}

		d.buffer.Next()

		if c.Final {
			d.ended = true
			s.endLocked()
			if d.config.OnComplete != nil {
				d.config.OnComplete()
			}
			return
		}
	}
}

// resetLocked clears all session state. Caller holds d.mu.
func (d *Decoder) resetLocked() {
	if d.out != nil {
		d.out.endLocked()
		d.out = nil
	}
	d.buffer.Reset()
	d.format = audio.Format{}
	d.streamID = ""
	d.started = false
	d.ended = false
}

// Reset ends any live output stream and clears buffer, format and stream id
// for reuse.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

// Format returns the format captured from the first chunk of the session.
func (d *Decoder) Format() audio.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

// StreamID returns the stream id captured from the first chunk.
func (d *Decoder) StreamID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamID
}

// Complete reports whether the final chunk has been received and consumed.
func (d *Decoder) Complete() bool {
	return d.buffer.Complete()
}

// HasFinal reports whether the final chunk has been received.
func (d *Decoder) HasFinal() bool {
	return d.buffer.HasFinal()
}

// BufferedChunks returns the number of buffered, unconsumed chunks.
func (d *Decoder) BufferedChunks() int {
	return d.buffer.Len()
}

// Reader is the pull-driven output stream of a Decoder. Each Read pull frees
// capacity and triggers another push attempt, so a stalled decoder resumes
// exactly where backpressure paused it. Reader implements io.ReadCloser; the
// stream ends with io.EOF once the final chunk's payload has been consumed.
type Reader struct {
	dec      *Decoder
	payloads chan []byte
	closed   bool
	leftover []byte
}

// Read returns decoded PCM bytes in exact original order. It blocks until
// payload data is available or the stream ends.
func (r *Reader) Read(p []byte) (int, error) {
	if len(r.leftover) > 0 {
		n := copy(p, r.leftover)
		r.leftover = r.leftover[n:]
		return n, nil
	}

	data, ok := <-r.payloads
	if !ok {
		return 0, io.EOF
	}

	// A pull freed a payload slot; let the decoder push more.
	r.dec.pump()

	n := copy(p, data)
	r.leftover = data[n:]
	return n, nil
}

// Close ends the stream. Subsequent reads drain buffered payloads and then
// return io.EOF.
func (r *Reader) Close() error {
	r.dec.mu.Lock()
	defer r.dec.mu.Unlock()
	r.endLocked()
	return nil
}

// endLocked closes the payload channel once. Caller holds dec.mu, which
// also guards all channel sends, so a send on a closed channel cannot occur.
func (r *Reader) endLocked() {
	if !r.closed {
		r.closed = true
		close(r.payloads)
	}
}

func (d *Decoder) pump() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pumpLocked()
}
