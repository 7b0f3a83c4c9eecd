// ABOUTME: Audio format descriptor and byte/duration math
// ABOUTME: Defines Format, PCM encodings, and chunk size calculations
package audio

import "fmt"

// Encoding identifies the raw PCM sample layout.
type Encoding string

const (
	EncodingS16LE Encoding = "s16le"
	EncodingS16BE Encoding = "s16be"
	EncodingF32LE Encoding = "f32le"
	EncodingF32BE Encoding = "f32be"
)

// Valid reports whether the encoding is one of the supported PCM layouts.
func (e Encoding) Valid() bool {
	switch e {
	case EncodingS16LE, EncodingS16BE, EncodingF32LE, EncodingF32BE:
		return true
	}
	return false
}

// Format describes a raw PCM audio stream. It is an immutable value type;
// every chunk carries a copy so decoders never need out-of-band format
// negotiation.
type Format struct {
	SampleRate int      // Hz
	Channels   int      // 1 or 2
	BitDepth   int      // bits per sample
	Encoding   Encoding // sample layout
}

// DefaultFormat returns the default streaming format: 16kHz mono 16-bit
// little-endian PCM.
func DefaultFormat() Format {
	return Format{
		SampleRate: 16000,
		Channels:   1,
		BitDepth:   16,
		Encoding:   EncodingS16LE,
	}
}

// Validate checks the format for internal consistency.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("invalid channel count: %d (supported: 1, 2)", f.Channels)
	}
	if f.BitDepth%8 != 0 || f.BitDepth == 0 {
		return fmt.Errorf("invalid bit depth: %d", f.BitDepth)
	}
	if !f.Encoding.Valid() {
		return fmt.Errorf("invalid encoding: %q", f.Encoding)
	}
	return nil
}

// BytesPerFrame returns the size of one sample frame (all channels).
func (f Format) BytesPerFrame() int {
	return (f.BitDepth / 8) * f.Channels
}

// BytesPerSecond returns the PCM data rate.
func (f Format) BytesPerSecond() int {
	return f.BytesPerFrame() * f.SampleRate
}

// ChunkBytes returns the byte size of a chunk of the given duration,
// rounded down to a whole sample frame.
func (f Format) ChunkBytes(durationMs int) int {
	frames := f.SampleRate * durationMs / 1000
	return frames * f.BytesPerFrame()
}

// Duration returns the playback duration in milliseconds of n PCM bytes.
func (f Format) Duration(n int) float64 {
	if f.SampleRate == 0 || f.BytesPerFrame() == 0 {
		return 0
	}
	return float64(n) / float64(f.BytesPerFrame()) / float64(f.SampleRate) * 1000
}

// String returns a compact human-readable description.
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit/%s", f.SampleRate, f.Channels, f.BitDepth, f.Encoding)
}
