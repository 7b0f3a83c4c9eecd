// ABOUTME: Tagged-variant stream lifecycle events and derived statistics
// ABOUTME: Replaces string-keyed dispatch with an exhaustive event enum
package pcmcast

import (
	"time"

	"github.com/pcmcast/pcmcast-go/pkg/audio"
)

// EventKind discriminates the variants of Event.
type EventKind int

const (
	// EventStreamStart fires before the first chunk of a stream.
	EventStreamStart EventKind = iota

	// EventChunk fires for each chunk sent or received.
	EventChunk

	// EventStreamEnd fires when a stream completes, carrying its stats.
	EventStreamEnd

	// EventError reports a transport or parse failure. Errors are scoped
	// to one stream or connection and never fatal to others.
	EventError

	// EventDropped reports chunks discarded by the bounded-eviction
	// policy under memory pressure.
	EventDropped
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStreamStart:
		return "stream-start"
	case EventChunk:
		return "chunk"
	case EventStreamEnd:
		return "stream-end"
	case EventError:
		return "error"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification. Kind selects which fields are set:
// StreamID and Format for stream-start, Chunk for chunk, Stats for
// stream-end, Err for error, Dropped for dropped.
type Event struct {
	Kind     EventKind
	StreamID string
	Format   audio.Format
	Chunk    *audio.Chunk
	Stats    *StreamStats
	Err      error
	Dropped  int
}

// StreamStats summarizes one stream. It is derived, never stored: senders
// aggregate while pacing, receivers while consuming.
type StreamStats struct {
	StreamID string
	Chunks   int
	Bytes    int64
	Duration time.Duration

	// Latency fields are populated receiver-side only, computed from
	// chunk creation timestamps versus arrival time.
	LatencySamples int
	LatencyMin     time.Duration
	LatencyMax     time.Duration
	LatencyAvg     time.Duration
}

// publish delivers an event without blocking. A slow or absent consumer
// drops events rather than stalling the pipeline.
func publish(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}
