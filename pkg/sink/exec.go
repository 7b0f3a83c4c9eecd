// ABOUTME: Exec sink spawning an external player process
// ABOUTME: Streams raw PCM to the player's stdin (ffplay, aplay, paplay)
package sink

import (
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"sync"

	"github.com/pcmcast/pcmcast-go/pkg/audio"
)

// ExecSink plays PCM by piping it to an external player's stdin. The
// command is built per stream from the format, so one sink can play
// streams of differing formats in sequence.
type ExecSink struct {
	// Command overrides automatic player detection (e.g. "ffplay").
	Command string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// playerCommand builds the player invocation for a format. Preference
// order: ffplay, aplay, paplay, whichever is installed.
func playerCommand(command string, format audio.Format) (string, []string, error) {
	if command == "" {
		for _, candidate := range []string{"ffplay", "aplay", "paplay"} {
			if _, err := exec.LookPath(candidate); err == nil {
				command = candidate
				break
			}
		}
		if command == "" {
			return "", nil, fmt.Errorf("no player found (tried ffplay, aplay, paplay)")
		}
	}

	rate := strconv.Itoa(format.SampleRate)
	channels := strconv.Itoa(format.Channels)

	switch command {
	case "ffplay":
		return command, []string{
			"-f", ffmpegFormat(format.Encoding),
			"-ar", rate, "-ch_layout", channelLayout(format.Channels),
			"-nodisp", "-autoexit", "-loglevel", "quiet", "-i", "pipe:0",
		}, nil
	case "aplay":
		return command, []string{
			"-f", alsaFormat(format.Encoding),
			"-r", rate, "-c", channels, "-q", "-t", "raw",
		}, nil
	case "paplay":
		return command, []string{
			"--raw", "--format=" + paFormat(format.Encoding),
			"--rate=" + rate, "--channels=" + channels,
		}, nil
	default:
		// Custom player: assume it reads raw PCM from stdin unconfigured.
		return command, nil, nil
	}
}

func ffmpegFormat(e audio.Encoding) string {
	switch e {
	case audio.EncodingS16BE:
		return "s16be"
	case audio.EncodingF32LE:
		return "f32le"
	case audio.EncodingF32BE:
		return "f32be"
	default:
		return "s16le"
	}
}

func alsaFormat(e audio.Encoding) string {
	switch e {
	case audio.EncodingS16BE:
		return "S16_BE"
	case audio.EncodingF32LE:
		return "FLOAT_LE"
	case audio.EncodingF32BE:
		return "FLOAT_BE"
	default:
		return "S16_LE"
	}
}

func paFormat(e audio.Encoding) string {
	switch e {
	case audio.EncodingS16BE:
		return "s16be"
	case audio.EncodingF32LE:
		return "float32le"
	case audio.EncodingF32BE:
		return "float32be"
	default:
		return "s16le"
	}
}

func channelLayout(channels int) string {
	if channels == 1 {
		return "mono"
	}
	return "stereo"
}

// PlayStream spawns the player and copies the stream to its stdin. It
// blocks until the stream ends and the player exits.
func (s *ExecSink) PlayStream(r io.Reader, format audio.Format) error {
	name, args, err := playerCommand(s.Command, format)
	if err != nil {
		return err
	}

	cmd := exec.Command(name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	log.Printf("Playing via %s (%s)", name, format)

	_, copyErr := io.Copy(stdin, r)
	stdin.Close()

	waitErr := cmd.Wait()

	s.mu.Lock()
	s.cmd = nil
	s.mu.Unlock()

	if copyErr != nil {
		return fmt.Errorf("stream to %s: %w", name, copyErr)
	}
	if waitErr != nil {
		return fmt.Errorf("%s exited: %w", name, waitErr)
	}
	return nil
}

// Stop kills the running player, if any. PlayStream then returns with the
// player's exit error.
func (s *ExecSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
}
