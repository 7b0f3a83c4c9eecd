// ABOUTME: Audio sink interface for playing received PCM streams
// ABOUTME: Backends play a live stream incrementally as bytes arrive
package sink

import (
	"io"

	"github.com/pcmcast/pcmcast-go/pkg/audio"
)

// Sink plays a PCM stream. PlayStream blocks until the stream ends, the
// sink fails, or Stop is called.
type Sink interface {
	PlayStream(r io.Reader, format audio.Format) error
	Stop()
}
