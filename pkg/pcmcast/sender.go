// ABOUTME: Sender orchestration wiring the encoder and real-time pacer
// ABOUTME: Converts PCM buffers or streams into paced chunk emissions
package pcmcast

import (
	"errors"
	"io"
	"time"

	"github.com/pcmcast/pcmcast-go/pkg/audio"
	"github.com/pcmcast/pcmcast-go/pkg/pace"
	"github.com/pcmcast/pcmcast-go/pkg/stream"
)

// DefaultEventBuffer is the capacity of lifecycle event channels.
const DefaultEventBuffer = 64

// EmitFunc delivers one chunk to the transport. The sender awaits the call
// before considering the chunk delivered, so a slow emitter delays
// subsequent pacing steps. An error aborts the stream's pacing loop.
type EmitFunc func(audio.Chunk) error

// SenderConfig configures a Sender.
type SenderConfig struct {
	// Format is the PCM format of the input (default: audio.DefaultFormat).
	Format audio.Format

	// ChunkDurationMs is the nominal chunk duration (default: 100).
	ChunkDurationMs int

	// DisablePacing replays chunks back-to-back instead of in real time.
	DisablePacing bool

	// EventBuffer is the lifecycle event channel capacity (default: 64).
	EventBuffer int
}

// Sender slices PCM into chunks and paces their emission at roughly the rate
// the audio represents. Each Send call is one logical stream with a freshly
// generated stream id.
type Sender struct {
	config  SenderConfig
	encoder *stream.Encoder
	pacer   *pace.Pacer[audio.Chunk]
	events  chan Event
}

// NewSender creates a sender.
func NewSender(config SenderConfig) *Sender {
	if config.Format == (audio.Format{}) {
		config.Format = audio.DefaultFormat()
	}
	if config.ChunkDurationMs == 0 {
		config.ChunkDurationMs = stream.DefaultChunkDurationMs
	}
	if config.EventBuffer == 0 {
		config.EventBuffer = DefaultEventBuffer
	}

	return &Sender{
		config: config,
		encoder: stream.NewEncoder(stream.EncoderConfig{
			Format:          config.Format,
			ChunkDurationMs: config.ChunkDurationMs,
		}),
		pacer:  pace.NewPacer[audio.Chunk](!config.DisablePacing),
		events: make(chan Event, config.EventBuffer),
	}
}

// Events returns the lifecycle event channel: stream-start before pacing
// begins, one chunk event per paced chunk, stream-end with aggregated stats
// once pacing completes or the emitter fails.
func (s *Sender) Events() <-chan Event {
	return s.events
}

// SetPacing toggles real-time pacing.
func (s *Sender) SetPacing(enabled bool) {
	s.pacer.SetEnabled(enabled)
}

// Abort halts the in-flight pacing loop at the next pacing boundary.
func (s *Sender) Abort() {
	s.pacer.Abort()
}

// Send encodes the full PCM buffer, flushes, and paces the resulting chunks
// through emit. Returns the aggregated stats and the emit or abort error,
// if any.
func (s *Sender) Send(pcm []byte, emit EmitFunc) (StreamStats, error) {
	s.encoder.Reset()

	chunks := s.encoder.Encode(pcm)
	chunks = append(chunks, s.encoder.Flush()...)

	items := make([]pace.Item[audio.Chunk], len(chunks))
	for i, c := range chunks {
		items[i] = chunkItem(c)
	}

	start := time.Now()
	stats := s.beginStream()
	err := s.pacer.Pace(items, s.emitFunc(emit, stats))
	return s.endStream(stats, start, err)
}

// SendFromStream is the incremental variant: PCM is consumed from source as
// it becomes available and chunks are paced as they are produced. Source
// read errors abort the stream and propagate to the caller.
func (s *Sender) SendFromStream(source io.Reader, emit EmitFunc) (StreamStats, error) {
	s.encoder.Reset()

	items := make(chan pace.Item[audio.Chunk])
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(items)

		buf := make([]byte, s.encoder.ChunkSize())
		for {
			n, err := source.Read(buf)
			if n > 0 {
				for _, c := range s.encoder.Encode(buf[:n]) {
					select {
					case items <- chunkItem(c):
					case <-done:
						return
					}
				}
			}
			if err == io.EOF {
				for _, c := range s.encoder.Flush() {
					select {
					case items <- chunkItem(c):
					case <-done:
					}
				}
				return
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	start := time.Now()
	stats := s.beginStream()
	err := s.pacer.PaceChan(items, s.emitFunc(emit, stats))
	if err == nil {
		select {
		case err = <-readErr:
		default:
		}
	}
	return s.endStream(stats, start, err)
}

// beginStream publishes stream-start and seeds the stats accumulator.
func (s *Sender) beginStream() *StreamStats {
	publish(s.events, Event{
		Kind:     EventStreamStart,
		StreamID: s.encoder.StreamID(),
		Format:   s.encoder.Format(),
	})

	return &StreamStats{StreamID: s.encoder.StreamID()}
}

// emitFunc wraps the caller's emitter with event publication and stats
// accumulation.
func (s *Sender) emitFunc(emit EmitFunc, stats *StreamStats) func(pace.Item[audio.Chunk]) error {
	return func(item pace.Item[audio.Chunk]) error {
		if err := emit(item.Value); err != nil {
			return err
		}

		stats.Chunks++
		stats.Bytes += int64(len(item.Value.Data))

		c := item.Value
		publish(s.events, Event{Kind: EventChunk, StreamID: c.StreamID, Chunk: &c})
		return nil
	}
}

// endStream finalizes stats and publishes stream-end. Aborted streams emit
// no end event; emitter failures do, so consumers always observe a terminal
// event for a stream that failed rather than stopped.
func (s *Sender) endStream(stats *StreamStats, start time.Time, err error) (StreamStats, error) {
	stats.Duration = time.Since(start)

	if !errors.Is(err, pace.ErrAborted) {
		publish(s.events, Event{Kind: EventStreamEnd, StreamID: stats.StreamID, Stats: stats})
	}
	return *stats, err
}

// chunkItem converts a chunk into a paced item with the chunk's own playback
// duration as the inter-item delay.
func chunkItem(c audio.Chunk) pace.Item[audio.Chunk] {
	return pace.Item[audio.Chunk]{
		Value: c,
		Delay: time.Duration(c.DurationMs * float64(time.Millisecond)),
		Final: c.Final,
	}
}
