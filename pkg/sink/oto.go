// ABOUTME: In-process audio sink using the oto library
// ABOUTME: Plays 16-bit little-endian PCM streams through the OS audio device
package sink

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/pcmcast/pcmcast-go/pkg/audio"
)

// OtoSink plays PCM through the operating system's audio device. Only
// 16-bit little-endian streams are supported; the oto context is created
// lazily from the first stream's format and reused while the format
// matches.
type OtoSink struct {
	mu     sync.Mutex
	otoCtx *oto.Context
	player *oto.Player
	format audio.Format
}

// PlayStream plays the stream, blocking until it drains or Stop is called.
func (s *OtoSink) PlayStream(r io.Reader, format audio.Format) error {
	if format.Encoding != audio.EncodingS16LE {
		return fmt.Errorf("oto sink supports %s only, got %s", audio.EncodingS16LE, format.Encoding)
	}

	s.mu.Lock()
	if s.otoCtx != nil && s.format != format {
		s.mu.Unlock()
		return fmt.Errorf("oto context already initialized for %s", s.format)
	}

	if s.otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("create oto context: %w", err)
		}
		<-readyChan

		s.otoCtx = ctx
		s.format = format
		log.Printf("Audio output initialized: %s", format)
	}

	player := s.otoCtx.NewPlayer(r)
	s.player = player
	s.mu.Unlock()

	player.Play()

	// The player pulls from r on its own; wait for it to drain.
	for player.IsPlaying() {
		time.Sleep(20 * time.Millisecond)
	}

	s.mu.Lock()
	s.player = nil
	s.mu.Unlock()

	return player.Close()
}

// Stop halts the current stream's playback.
func (s *OtoSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil {
		s.player.Pause()
		s.player.Close()
		s.player = nil
	}
}
