// ABOUTME: Tests for the exec sink
// ABOUTME: Tests player command construction and stdin streaming
package sink

import (
	"bytes"
	"os/exec"
	"strings"
	"testing"

	"github.com/pcmcast/pcmcast-go/pkg/audio"
)

func TestPlayerCommandArgs(t *testing.T) {
	format := audio.DefaultFormat()

	tests := []struct {
		command  string
		wantArgs []string
	}{
		{"ffplay", []string{"-f", "s16le", "-ar", "16000", "-ch_layout", "mono"}},
		{"aplay", []string{"-f", "S16_LE", "-r", "16000", "-c", "1"}},
		{"paplay", []string{"--raw", "--format=s16le", "--rate=16000", "--channels=1"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			name, args, err := playerCommand(tt.command, format)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if name != tt.command {
				t.Errorf("expected command %s, got %s", tt.command, name)
			}

			joined := strings.Join(args, " ")
			for _, want := range tt.wantArgs {
				if !strings.Contains(joined, want) {
					t.Errorf("args %q missing %q", joined, want)
				}
			}
		})
	}
}

func TestPlayerCommandCustom(t *testing.T) {
	name, args, err := playerCommand("my-player", audio.DefaultFormat())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "my-player" {
		t.Errorf("expected my-player, got %s", name)
	}
	if len(args) != 0 {
		t.Errorf("custom player should get no args, got %v", args)
	}
}

func TestEncodingNames(t *testing.T) {
	tests := []struct {
		encoding audio.Encoding
		ffmpeg   string
		alsa     string
		pulse    string
	}{
		{audio.EncodingS16LE, "s16le", "S16_LE", "s16le"},
		{audio.EncodingS16BE, "s16be", "S16_BE", "s16be"},
		{audio.EncodingF32LE, "f32le", "FLOAT_LE", "float32le"},
		{audio.EncodingF32BE, "f32be", "FLOAT_BE", "float32be"},
	}

	for _, tt := range tests {
		if got := ffmpegFormat(tt.encoding); got != tt.ffmpeg {
			t.Errorf("ffmpegFormat(%s) = %s, want %s", tt.encoding, got, tt.ffmpeg)
		}
		if got := alsaFormat(tt.encoding); got != tt.alsa {
			t.Errorf("alsaFormat(%s) = %s, want %s", tt.encoding, got, tt.alsa)
		}
		if got := paFormat(tt.encoding); got != tt.pulse {
			t.Errorf("paFormat(%s) = %s, want %s", tt.encoding, got, tt.pulse)
		}
	}
}

func TestExecSinkStreamsToStdin(t *testing.T) {
	// cat consumes stdin like a player would and exits cleanly at EOF.
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	sink := &ExecSink{Command: "cat"}

	pcm := make([]byte, 6400)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	if err := sink.PlayStream(bytes.NewReader(pcm), audio.DefaultFormat()); err != nil {
		t.Fatalf("play failed: %v", err)
	}
}

func TestExecSinkMissingPlayer(t *testing.T) {
	sink := &ExecSink{Command: "definitely-not-a-player-binary"}

	err := sink.PlayStream(bytes.NewReader([]byte{0, 0}), audio.DefaultFormat())
	if err == nil {
		t.Error("expected error for missing player binary")
	}
}
