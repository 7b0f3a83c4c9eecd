// ABOUTME: Synthetic sine-wave PCM source
// ABOUTME: Pull-driven io.ReadCloser producing a continuous test tone
package source

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/pcmcast/pcmcast-go/pkg/audio"
)

// DefaultFrequency is the default tone frequency (A4).
const DefaultFrequency = 440.0

// SineConfig configures a Sine source.
type SineConfig struct {
	// Format of the generated PCM (default: audio.DefaultFormat). Only
	// 16-bit little-endian output is supported.
	Format audio.Format

	// Frequency of the tone in Hz (default: 440).
	Frequency float64

	// Amplitude scales the tone, 0.0 to 1.0 (default: 0.5).
	Amplitude float64
}

// Sine generates a continuous sine-wave tone as raw PCM. Read produces
// samples until Stop is called, after which it returns io.EOF.
type Sine struct {
	format    audio.Format
	frequency float64
	amplitude float64

	mu          sync.Mutex
	sampleIndex uint64
	stopped     bool
}

// NewSine creates a sine source.
func NewSine(config SineConfig) (*Sine, error) {
	if config.Format == (audio.Format{}) {
		config.Format = audio.DefaultFormat()
	}
	if err := config.Format.Validate(); err != nil {
		return nil, fmt.Errorf("sine format: %w", err)
	}
	if config.Format.Encoding != audio.EncodingS16LE {
		return nil, fmt.Errorf("sine source supports %s only, got %s", audio.EncodingS16LE, config.Format.Encoding)
	}
	if config.Frequency == 0 {
		config.Frequency = DefaultFrequency
	}
	if config.Amplitude == 0 {
		config.Amplitude = 0.5
	}
	if config.Amplitude < 0 || config.Amplitude > 1 {
		return nil, fmt.Errorf("amplitude %v out of range [0, 1]", config.Amplitude)
	}

	return &Sine{
		format:    config.Format,
		frequency: config.Frequency,
		amplitude: config.Amplitude,
	}, nil
}

// Format returns the source's PCM format.
func (s *Sine) Format() audio.Format {
	return s.format
}

// Read fills p with 16-bit little-endian samples. All channels carry the
// same tone.
func (s *Sine) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, io.EOF
	}

	frameBytes := s.format.BytesPerFrame()
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	for i := 0; i < frames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.format.SampleRate)
		sample := math.Sin(2 * math.Pi * s.frequency * t)
		pcm := int16(sample * 32767.0 * s.amplitude)

		for ch := 0; ch < s.format.Channels; ch++ {
			off := i*frameBytes + ch*2
			p[off] = byte(pcm)
			p[off+1] = byte(pcm >> 8)
		}
	}

	s.sampleIndex += uint64(frames)
	return frames * frameBytes, nil
}

// Stop ends the tone; subsequent reads return io.EOF.
func (s *Sine) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// Close implements io.Closer as an alias for Stop.
func (s *Sine) Close() error {
	s.Stop()
	return nil
}
