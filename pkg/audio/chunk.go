// ABOUTME: Chunk and Serialized chunk records with the JSON wire codec
// ABOUTME: Handles base64 payload encoding for text-frame transports
package audio

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Chunk is one sequenced, time-bounded slice of PCM audio. Sequence numbers
// are strictly increasing by 1 per stream starting at 0. Exactly one chunk
// per stream carries Final=true, and it has the highest sequence number.
type Chunk struct {
	StreamID   string
	Sequence   int
	Timestamp  time.Time
	Format     Format
	Data       []byte
	DurationMs float64
	Final      bool
}

// Serialized is the text-safe wire form of a Chunk: the payload is base64
// encoded so the chunk can travel over a text-frame channel. One WebSocket
// text frame carries the JSON serialization of one Serialized chunk.
type Serialized struct {
	StreamID   string     `json:"streamId"`
	Sequence   int        `json:"sequenceNumber"`
	Timestamp  int64      `json:"timestamp"` // Unix milliseconds
	Format     wireFormat `json:"format"`
	Data       string     `json:"data"` // base64
	DurationMs float64    `json:"durationMs"`
	Final      bool       `json:"isFinal"`
}

// wireFormat is the JSON shape of Format on the wire.
type wireFormat struct {
	SampleRate int      `json:"sampleRate"`
	Channels   int      `json:"channels"`
	BitDepth   int      `json:"bitDepth"`
	Encoding   Encoding `json:"encoding"`
}

// Serialize converts the chunk to its wire form. The base64 round-trip is
// lossless: decoding yields the exact original payload bytes.
func (c Chunk) Serialize() Serialized {
	return Serialized{
		StreamID:  c.StreamID,
		Sequence:  c.Sequence,
		Timestamp: c.Timestamp.UnixMilli(),
		Format: wireFormat{
			SampleRate: c.Format.SampleRate,
			Channels:   c.Format.Channels,
			BitDepth:   c.Format.BitDepth,
			Encoding:   c.Format.Encoding,
		},
		Data:       base64.StdEncoding.EncodeToString(c.Data),
		DurationMs: c.DurationMs,
		Final:      c.Final,
	}
}

// Chunk decodes the wire form back into a Chunk.
func (s Serialized) Chunk() (Chunk, error) {
	data, err := base64.StdEncoding.DecodeString(s.Data)
	if err != nil {
		return Chunk{}, fmt.Errorf("invalid chunk payload: %w", err)
	}

	return Chunk{
		StreamID:  s.StreamID,
		Sequence:  s.Sequence,
		Timestamp: time.UnixMilli(s.Timestamp),
		Format: Format{
			SampleRate: s.Format.SampleRate,
			Channels:   s.Format.Channels,
			BitDepth:   s.Format.BitDepth,
			Encoding:   s.Format.Encoding,
		},
		Data:       data,
		DurationMs: s.DurationMs,
		Final:      s.Final,
	}, nil
}

// MarshalFrame renders the chunk as a single JSON text frame.
func (c Chunk) MarshalFrame() ([]byte, error) {
	return json.Marshal(c.Serialize())
}

// ParseFrame parses one JSON text frame into a Chunk.
func ParseFrame(frame []byte) (Chunk, error) {
	var s Serialized
	if err := json.Unmarshal(frame, &s); err != nil {
		return Chunk{}, fmt.Errorf("invalid chunk frame: %w", err)
	}
	return s.Chunk()
}
