// ABOUTME: Tests for chunk wire serialization
// ABOUTME: Verifies base64 payload round-trips and frame parsing
package audio

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestChunkSerializeRoundTrip(t *testing.T) {
	payload := make([]byte, 257)
	for i := range payload {
		payload[i] = byte(i)
	}

	original := Chunk{
		StreamID:   "stream-1",
		Sequence:   7,
		Timestamp:  time.UnixMilli(1700000000123),
		Format:     DefaultFormat(),
		Data:       payload,
		DurationMs: 8.03125,
		Final:      true,
	}

	frame, err := original.MarshalFrame()
	if err != nil {
		t.Fatalf("MarshalFrame failed: %v", err)
	}

	decoded, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}

	if decoded.StreamID != original.StreamID {
		t.Errorf("StreamID = %q, want %q", decoded.StreamID, original.StreamID)
	}
	if decoded.Sequence != original.Sequence {
		t.Errorf("Sequence = %d, want %d", decoded.Sequence, original.Sequence)
	}
	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	if decoded.Format != original.Format {
		t.Errorf("Format = %v, want %v", decoded.Format, original.Format)
	}
	if !bytes.Equal(decoded.Data, original.Data) {
		t.Error("payload bytes differ after round trip")
	}
	if decoded.DurationMs != original.DurationMs {
		t.Errorf("DurationMs = %v, want %v", decoded.DurationMs, original.DurationMs)
	}
	if !decoded.Final {
		t.Error("Final flag lost in round trip")
	}
}

func TestChunkSerializeEmptyPayload(t *testing.T) {
	c := Chunk{StreamID: "s", Format: DefaultFormat(), Final: true}

	frame, err := c.MarshalFrame()
	if err != nil {
		t.Fatalf("MarshalFrame failed: %v", err)
	}

	decoded, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}

	if len(decoded.Data) != 0 {
		t.Errorf("expected empty payload, got %d bytes", len(decoded.Data))
	}
}

func TestWireFieldNames(t *testing.T) {
	c := Chunk{StreamID: "s", Sequence: 1, Format: DefaultFormat(), Data: []byte{1, 2}}

	frame, err := c.MarshalFrame()
	if err != nil {
		t.Fatalf("MarshalFrame failed: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(frame, &raw); err != nil {
		t.Fatalf("frame is not a JSON object: %v", err)
	}

	for _, field := range []string{"streamId", "sequenceNumber", "timestamp", "format", "data", "durationMs", "isFinal"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("wire frame missing field %q", field)
		}
	}

	var format map[string]json.RawMessage
	if err := json.Unmarshal(raw["format"], &format); err != nil {
		t.Fatalf("format is not a JSON object: %v", err)
	}
	for _, field := range []string{"sampleRate", "channels", "bitDepth", "encoding"} {
		if _, ok := format[field]; !ok {
			t.Errorf("wire format missing field %q", field)
		}
	}
}

func TestParseFrameErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", "pcm bytes"},
		{"wrong shape", `[1,2,3]`},
		{"bad base64", `{"streamId":"s","sequenceNumber":0,"data":"???"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFrame([]byte(tt.frame)); err == nil {
				t.Error("expected parse error, got nil")
			}
		})
	}
}

func TestParseFrameRejectsBinaryPayloadField(t *testing.T) {
	// A frame whose data field is not valid base64 must surface a parse
	// error rather than a zero chunk.
	frame := `{"streamId":"s","sequenceNumber":0,"timestamp":0,` +
		`"format":{"sampleRate":16000,"channels":1,"bitDepth":16,"encoding":"s16le"},` +
		`"data":"not base64!","durationMs":0,"isFinal":false}`

	_, err := ParseFrame([]byte(frame))
	if err == nil {
		t.Fatal("expected error for invalid base64 payload")
	}
	if !strings.Contains(err.Error(), "payload") {
		t.Errorf("error should mention payload, got: %v", err)
	}
}
