// ABOUTME: Receiver orchestration wrapping the chunk decoder
// ABOUTME: Republishes completion and per-chunk events and tracks statistics
package pcmcast

import (
	"sync"
	"time"

	"github.com/pcmcast/pcmcast-go/pkg/audio"
	"github.com/pcmcast/pcmcast-go/pkg/stream"
)

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	// MaxBufferChunks bounds the reorder buffer (default: 100).
	MaxBufferChunks int

	// StreamDepth is the output stream's pending-payload capacity
	// (default: 8).
	StreamDepth int

	// EventBuffer is the lifecycle event channel capacity (default: 64).
	EventBuffer int
}

// Receiver reassembles inbound chunks into a gapless output stream and
// republishes the decoder's lifecycle as events: stream-start on the first
// chunk of each stream, one chunk event per accepted chunk, stream-end with
// stats on completion, dropped events under buffer pressure.
type Receiver struct {
	decoder *stream.Decoder
	events  chan Event

	mu       sync.Mutex
	streamID string
	started  time.Time
	stats    StreamStats
	ended    bool
}

// NewReceiver creates a receiver.
func NewReceiver(config ReceiverConfig) *Receiver {
	if config.EventBuffer == 0 {
		config.EventBuffer = DefaultEventBuffer
	}

	r := &Receiver{
		events: make(chan Event, config.EventBuffer),
	}
	r.decoder = stream.NewDecoder(stream.DecoderConfig{
		MaxBufferChunks: config.MaxBufferChunks,
		StreamDepth:     config.StreamDepth,
		OnDrop: func(count int) {
			r.mu.Lock()
			id := r.streamID
			r.mu.Unlock()
			publish(r.events, Event{Kind: EventDropped, StreamID: id, Dropped: count})
		},
		// Completion means the final chunk was consumed, not merely
		// received; a gap ahead of the final chunk defers this until
		// the missing chunks arrive and drain.
		OnComplete: func() {
			r.mu.Lock()
			if r.ended {
				r.mu.Unlock()
				return
			}
			r.ended = true
			id := r.streamID
			stats := r.statsLocked()
			r.mu.Unlock()
			publish(r.events, Event{Kind: EventStreamEnd, StreamID: id, Stats: &stats})
		},
	})
	return r
}

// Events returns the lifecycle event channel.
func (r *Receiver) Events() <-chan Event {
	return r.events
}

// AddChunk feeds one chunk to the decoder. A chunk from a different stream
// id implicitly starts a new stream, resetting all per-stream state first.
// Stale and duplicate chunks are dropped without touching stats or events.
func (r *Receiver) AddChunk(c audio.Chunk) {
	if !r.decoder.Accepts(c) {
		return
	}

	r.mu.Lock()
	if c.StreamID != r.streamID {
		r.resetStatsLocked(c)
		publish(r.events, Event{Kind: EventStreamStart, StreamID: c.StreamID, Format: c.Format})
	}

	r.stats.Chunks++
	r.stats.Bytes += int64(len(c.Data))
	r.observeLatencyLocked(c)
	r.mu.Unlock()

	// Publish the chunk event before handing it over: consuming the final
	// chunk fires the stream-end event from inside AddChunk, and that must
	// order after every chunk event.
	chunk := c
	publish(r.events, Event{Kind: EventChunk, StreamID: c.StreamID, Chunk: &chunk})

	r.decoder.AddChunk(c)
}

// AddSerialized deserializes and adds a wire-form chunk.
func (r *Receiver) AddSerialized(s audio.Serialized) error {
	c, err := s.Chunk()
	if err != nil {
		return err
	}
	r.AddChunk(c)
	return nil
}

// AddFrame parses a JSON text frame and adds the chunk it carries. Parse
// errors leave stream state untouched.
func (r *Receiver) AddFrame(frame []byte) error {
	c, err := audio.ParseFrame(frame)
	if err != nil {
		return err
	}
	r.AddChunk(c)
	return nil
}

// Stream returns the pull-driven output stream of decoded PCM.
func (r *Receiver) Stream() *stream.Reader {
	return r.decoder.CreateStream()
}

// Format returns the format captured from the first chunk.
func (r *Receiver) Format() audio.Format {
	return r.decoder.Format()
}

// StreamID returns the id of the stream currently being received.
func (r *Receiver) StreamID() string {
	return r.decoder.StreamID()
}

// IsComplete reports whether the final chunk has been received and consumed.
func (r *Receiver) IsComplete() bool {
	return r.decoder.Complete()
}

// BufferedChunks returns the number of chunks awaiting in-order delivery.
func (r *Receiver) BufferedChunks() int {
	return r.decoder.BufferedChunks()
}

// Stats returns a snapshot of the current stream's statistics.
func (r *Receiver) Stats() StreamStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statsLocked()
}

// Reset ends any live output stream and clears all state for reuse.
func (r *Receiver) Reset() {
	r.decoder.Reset()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamID = ""
	r.stats = StreamStats{}
	r.ended = false
}

// resetStatsLocked starts stat tracking for a new stream. Caller holds r.mu.
func (r *Receiver) resetStatsLocked(first audio.Chunk) {
	r.streamID = first.StreamID
	r.started = time.Now()
	r.stats = StreamStats{StreamID: first.StreamID}
	r.ended = false
}

// observeLatencyLocked folds one chunk's creation-to-arrival latency into
// the stats. Caller holds r.mu.
func (r *Receiver) observeLatencyLocked(c audio.Chunk) {
	if c.Timestamp.IsZero() {
		return
	}

	latency := time.Since(c.Timestamp)
	if latency < 0 {
		return
	}

	if r.stats.LatencySamples == 0 || latency < r.stats.LatencyMin {
		r.stats.LatencyMin = latency
	}
	if latency > r.stats.LatencyMax {
		r.stats.LatencyMax = latency
	}

	total := r.stats.LatencyAvg*time.Duration(r.stats.LatencySamples) + latency
	r.stats.LatencySamples++
	r.stats.LatencyAvg = total / time.Duration(r.stats.LatencySamples)
}

// statsLocked snapshots stats with the running duration. Caller holds r.mu.
func (r *Receiver) statsLocked() StreamStats {
	stats := r.stats
	if !r.started.IsZero() {
		stats.Duration = time.Since(r.started)
	}
	return stats
}
