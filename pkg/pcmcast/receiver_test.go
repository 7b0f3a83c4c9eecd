// ABOUTME: Tests for Receiver orchestration
// ABOUTME: Tests reassembly, lifecycle events, stats, and frame parsing
package pcmcast

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/pcmcast/pcmcast-go/pkg/audio"
	"github.com/pcmcast/pcmcast-go/pkg/stream"
)

// makeChunks encodes pcm into chunks including the final flush marker.
func makeChunks(t *testing.T, pcm []byte) []audio.Chunk {
	t.Helper()

	enc := stream.NewEncoder(stream.EncoderConfig{})
	chunks := enc.Encode(pcm)
	return append(chunks, enc.Flush()...)
}

func TestReceiverReassembly(t *testing.T) {
	pcm := make([]byte, 8000)
	for i := range pcm {
		pcm[i] = byte(i * 7)
	}
	chunks := makeChunks(t, pcm)

	r := NewReceiver(ReceiverConfig{})
	out := r.Stream()

	done := make(chan []byte)
	go func() {
		data, _ := io.ReadAll(out)
		done <- data
	}()

	// Deliver out of order: final first, then the rest reversed.
	for i := len(chunks) - 1; i >= 0; i-- {
		r.AddChunk(chunks[i])
	}

	select {
	case got := <-done:
		if !bytes.Equal(got, pcm) {
			t.Errorf("reassembled %d bytes, want %d, content mismatch", len(got), len(pcm))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not complete")
	}

	if !r.IsComplete() {
		t.Error("receiver should report complete")
	}
}

func TestReceiverEvents(t *testing.T) {
	chunks := makeChunks(t, make([]byte, 6400))

	r := NewReceiver(ReceiverConfig{})
	out := r.Stream()
	go io.Copy(io.Discard, out)

	for _, c := range chunks {
		r.AddChunk(c)
	}

	var kinds []EventKind
drain:
	for {
		select {
		case ev := <-r.Events():
			kinds = append(kinds, ev.Kind)
		case <-time.After(200 * time.Millisecond):
			break drain
		}

		if len(kinds) > 0 && kinds[len(kinds)-1] == EventStreamEnd {
			break
		}
	}

	if len(kinds) == 0 || kinds[0] != EventStreamStart {
		t.Fatalf("expected stream-start first, got %v", kinds)
	}
	if kinds[len(kinds)-1] != EventStreamEnd {
		t.Errorf("expected stream-end last, got %v", kinds)
	}

	chunkEvents := 0
	for _, k := range kinds {
		if k == EventChunk {
			chunkEvents++
		}
	}
	if chunkEvents != len(chunks) {
		t.Errorf("expected %d chunk events, got %d", len(chunks), chunkEvents)
	}
}

func TestReceiverEndEventWaitsForGapFill(t *testing.T) {
	// 3 data chunks plus the empty final marker.
	chunks := makeChunks(t, make([]byte, 9600))
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}

	r := NewReceiver(ReceiverConfig{})
	r.Stream()

	// The final chunk arrives with two chunks still missing.
	r.AddChunk(chunks[0])
	r.AddChunk(chunks[3])

	if r.IsComplete() {
		t.Fatal("stream must not be complete with chunks outstanding")
	}
	for {
		select {
		case ev := <-r.Events():
			if ev.Kind == EventStreamEnd {
				t.Fatal("stream-end published before the missing chunks arrived")
			}
			continue
		default:
		}
		break
	}

	// One gap left: still incomplete.
	r.AddChunk(chunks[2])
	if r.IsComplete() {
		t.Fatal("stream must not be complete with a gap remaining")
	}

	// Filling the last gap drains the buffer through the final chunk.
	r.AddChunk(chunks[1])

	var end Event
	deadline := time.After(time.Second)
wait:
	for {
		select {
		case ev := <-r.Events():
			if ev.Kind == EventStreamEnd {
				end = ev
				break wait
			}
		case <-deadline:
			t.Fatal("no stream-end after the stream completed")
		}
	}

	if !r.IsComplete() {
		t.Error("receiver should report complete")
	}
	if end.Stats == nil {
		t.Fatal("stream-end event carried no stats")
	}
	if end.Stats.Chunks != 4 || end.Stats.Bytes != 9600 {
		t.Errorf("end stats = %d chunks / %d bytes, want 4 / 9600",
			end.Stats.Chunks, end.Stats.Bytes)
	}
}

func TestReceiverDuplicateChunksNotCounted(t *testing.T) {
	// One data chunk plus the final marker.
	chunks := makeChunks(t, make([]byte, 3200))

	r := NewReceiver(ReceiverConfig{})
	go io.Copy(io.Discard, r.Stream())

	r.AddChunk(chunks[0])
	r.AddChunk(chunks[0]) // duplicate delivery
	r.AddChunk(chunks[1])
	r.AddChunk(chunks[0]) // stale redelivery after consumption

	stats := r.Stats()
	if stats.Chunks != 2 {
		t.Errorf("stats.Chunks = %d, want 2", stats.Chunks)
	}
	if stats.Bytes != 3200 {
		t.Errorf("stats.Bytes = %d, want 3200", stats.Bytes)
	}

	chunkEvents := 0
	for {
		select {
		case ev := <-r.Events():
			if ev.Kind == EventChunk {
				chunkEvents++
			}
			continue
		default:
		}
		break
	}
	if chunkEvents != 2 {
		t.Errorf("chunk events = %d, want 2", chunkEvents)
	}
}

func TestReceiverStats(t *testing.T) {
	enc := stream.NewEncoder(stream.EncoderConfig{})
	chunks := enc.Encode(make([]byte, 6400))
	chunks = append(chunks, enc.Flush()...)

	// Backdate timestamps so latency is measurable.
	for i := range chunks {
		chunks[i].Timestamp = time.Now().Add(-50 * time.Millisecond)
	}

	r := NewReceiver(ReceiverConfig{})
	go io.Copy(io.Discard, r.Stream())

	for _, c := range chunks {
		r.AddChunk(c)
	}

	stats := r.Stats()
	if stats.Chunks != len(chunks) {
		t.Errorf("expected %d chunks in stats, got %d", len(chunks), stats.Chunks)
	}
	if stats.Bytes != 6400 {
		t.Errorf("expected 6400 bytes in stats, got %d", stats.Bytes)
	}
	if stats.LatencySamples != len(chunks) {
		t.Errorf("expected %d latency samples, got %d", len(chunks), stats.LatencySamples)
	}
	if stats.LatencyAvg < 40*time.Millisecond {
		t.Errorf("expected latency around 50ms, got %v", stats.LatencyAvg)
	}
}

func TestReceiverAddFrame(t *testing.T) {
	chunks := makeChunks(t, make([]byte, 3200))

	r := NewReceiver(ReceiverConfig{})
	go io.Copy(io.Discard, r.Stream())

	for _, c := range chunks {
		frame, err := c.MarshalFrame()
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := r.AddFrame(frame); err != nil {
			t.Fatalf("add frame: %v", err)
		}
	}

	if r.StreamID() != chunks[0].StreamID {
		t.Errorf("expected stream id %s, got %s", chunks[0].StreamID, r.StreamID())
	}
}

func TestReceiverAddFrameParseError(t *testing.T) {
	r := NewReceiver(ReceiverConfig{})

	if err := r.AddFrame([]byte("not json")); err == nil {
		t.Error("expected parse error")
	}

	// Malformed input must not disturb stream state.
	if r.StreamID() != "" {
		t.Errorf("parse failure should not set stream id, got %s", r.StreamID())
	}
	if r.Stats().Chunks != 0 {
		t.Errorf("parse failure should not count chunks, got %d", r.Stats().Chunks)
	}
}

func TestReceiverDroppedEvents(t *testing.T) {
	enc := stream.NewEncoder(stream.EncoderConfig{})
	var chunks []audio.Chunk
	for i := 0; i < 8; i++ {
		chunks = append(chunks, enc.Encode(make([]byte, 3200))...)
	}

	// Tiny buffer and no consumer: adds force eviction.
	r := NewReceiver(ReceiverConfig{MaxBufferChunks: 2, StreamDepth: 1})

	// Withhold chunk 0 so nothing drains into the stream channel.
	for _, c := range chunks[1:] {
		r.AddChunk(c)
	}

	dropped := 0
drain:
	for {
		select {
		case ev := <-r.Events():
			if ev.Kind == EventDropped {
				dropped += ev.Dropped
			}
		default:
			break drain
		}
	}

	if dropped == 0 {
		t.Error("expected dropped events under buffer pressure")
	}
	if r.BufferedChunks() > 2 {
		t.Errorf("buffer exceeded bound: %d", r.BufferedChunks())
	}
}

func TestReceiverImplicitStreamSwitch(t *testing.T) {
	first := makeChunks(t, make([]byte, 3200))
	second := makeChunks(t, make([]byte, 3200))

	r := NewReceiver(ReceiverConfig{})
	go io.Copy(io.Discard, r.Stream())

	r.AddChunk(first[0])
	r.AddChunk(second[0])

	if r.Stats().StreamID != second[0].StreamID {
		t.Errorf("expected stats for new stream %s, got %s", second[0].StreamID, r.Stats().StreamID)
	}
	if r.Stats().Chunks != 1 {
		t.Errorf("expected stats reset on switch, got %d chunks", r.Stats().Chunks)
	}

	starts := 0
	for {
		select {
		case ev := <-r.Events():
			if ev.Kind == EventStreamStart {
				starts++
			}
			continue
		default:
		}
		break
	}
	if starts != 2 {
		t.Errorf("expected 2 stream-start events, got %d", starts)
	}
}

func TestReceiverReset(t *testing.T) {
	chunks := makeChunks(t, make([]byte, 3200))

	r := NewReceiver(ReceiverConfig{})
	for _, c := range chunks {
		r.AddChunk(c)
	}

	r.Reset()

	if r.StreamID() != "" {
		t.Errorf("expected empty stream id after reset, got %s", r.StreamID())
	}
	if r.Stats().Chunks != 0 {
		t.Errorf("expected zeroed stats after reset, got %d chunks", r.Stats().Chunks)
	}
	if r.BufferedChunks() != 0 {
		t.Errorf("expected empty buffer after reset, got %d", r.BufferedChunks())
	}
}
