// ABOUTME: Integration tests for Server API
// ABOUTME: Tests startup, client registration, and fan-out streaming
package pcmcast

import (
	"bytes"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pcmcast/pcmcast-go/pkg/audio"
)

func TestNewServer(t *testing.T) {
	tests := []struct {
		name      string
		config    ServerConfig
		expectErr bool
	}{
		{
			name:      "valid config",
			config:    ServerConfig{Port: 9301, Name: "Test Server"},
			expectErr: false,
		},
		{
			name:      "defaults",
			config:    ServerConfig{},
			expectErr: false,
		},
		{
			name: "invalid format",
			config: ServerConfig{
				Format: audio.Format{SampleRate: -1, Channels: 1, BitDepth: 16, Encoding: audio.EncodingS16LE},
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(tt.config)

			if tt.expectErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if server.config.Port == 0 {
				t.Error("port should have been set to default")
			}
			if server.config.Path == "" {
				t.Error("path should have been set to default")
			}
			if server.config.Format == (audio.Format{}) {
				t.Error("format should have been set to default")
			}
		})
	}
}

func TestServerStartStop(t *testing.T) {
	server, err := NewServer(ServerConfig{Port: 9302, Name: "Test Server"})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	server.Stop()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("server error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("server did not stop within timeout")
	}
}

// collectFrames reads frames from a raw connection until a final chunk
// arrives, returning the reassembled payload in sequence order.
func collectFrames(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()

	byseq := make(map[int][]byte)
	maxSeq := -1

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}

		chunk, err := audio.ParseFrame(data)
		if err != nil {
			t.Fatalf("parse frame: %v", err)
		}

		byseq[chunk.Sequence] = chunk.Data
		if chunk.Final {
			maxSeq = chunk.Sequence
			break
		}
	}

	var out []byte
	for i := 0; i <= maxSeq; i++ {
		out = append(out, byseq[i]...)
	}
	return out
}

func TestServerStreamToClient(t *testing.T) {
	server, err := NewServer(ServerConfig{Port: 9303, Name: "Test Server", DisablePacing: true})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	go server.Start()
	defer server.Stop()
	time.Sleep(200 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://localhost:9303/pcmcast", nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	time.Sleep(100 * time.Millisecond)

	clients := server.Clients()
	if len(clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(clients))
	}

	pcm := make([]byte, 8000)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	stats, err := server.StreamToClient(clients[0].ID, pcm)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if stats.Bytes != 8000 {
		t.Errorf("expected 8000 bytes streamed, got %d", stats.Bytes)
	}

	got := collectFrames(t, conn)
	if !bytes.Equal(got, pcm) {
		t.Errorf("received %d bytes, want %d, content mismatch", len(got), len(pcm))
	}
}

func TestServerStreamToUnknownClient(t *testing.T) {
	server, err := NewServer(ServerConfig{Port: 9304})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	if _, err := server.StreamToClient("nope", []byte{1, 2}); err == nil {
		t.Error("expected error for unknown client")
	}
}

func TestServerStreamToAll(t *testing.T) {
	server, err := NewServer(ServerConfig{Port: 9305, Name: "Test Server", DisablePacing: true})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	go server.Start()
	defer server.Stop()
	time.Sleep(200 * time.Millisecond)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conn, _, err := websocket.DefaultDialer.Dial("ws://localhost:9305/pcmcast", nil)
		if err != nil {
			t.Fatalf("failed to connect client %d: %v", i, err)
		}
		conns[i] = conn
		defer conn.Close()
	}

	time.Sleep(100 * time.Millisecond)

	if got := server.ClientCount(); got != 3 {
		t.Fatalf("expected 3 clients, got %d", got)
	}

	pcm := make([]byte, 6400)
	for i := range pcm {
		pcm[i] = byte(i * 5)
	}

	results := server.StreamToAll(pcm)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	streamIDs := make(map[string]bool)
	for _, res := range results {
		if res.Err != nil {
			t.Errorf("client %s: %v", res.ClientID, res.Err)
		}
		streamIDs[res.Stats.StreamID] = true
	}
	if len(streamIDs) != 3 {
		t.Errorf("expected a distinct stream id per client, got %d", len(streamIDs))
	}

	for i, conn := range conns {
		got := collectFrames(t, conn)
		if !bytes.Equal(got, pcm) {
			t.Errorf("client %d: content mismatch (%d bytes)", i, len(got))
		}
	}
}

func TestServerClientDisconnectRemoval(t *testing.T) {
	server, err := NewServer(ServerConfig{Port: 9306, Name: "Test Server"})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	go server.Start()
	defer server.Stop()
	time.Sleep(200 * time.Millisecond)

	conns := make([]*websocket.Conn, 2)
	for i := range conns {
		conn, _, err := websocket.DefaultDialer.Dial("ws://localhost:9306/pcmcast", nil)
		if err != nil {
			t.Fatalf("failed to connect client %d: %v", i, err)
		}
		conns[i] = conn
	}

	time.Sleep(100 * time.Millisecond)
	if got := server.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	conns[0].Close()
	time.Sleep(200 * time.Millisecond)

	if got := server.ClientCount(); got != 1 {
		t.Errorf("expected 1 client after disconnect, got %d", got)
	}

	// The departed client must not break streaming to the survivor.
	results := server.StreamToAll(make([]byte, 3200))
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("stream to survivor failed: %v", results[0].Err)
	}

	conns[1].Close()
}

func TestServerConcurrentStreams(t *testing.T) {
	server, err := NewServer(ServerConfig{Port: 9307, DisablePacing: true})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	go server.Start()
	defer server.Stop()
	time.Sleep(200 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://localhost:9307/pcmcast", nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	time.Sleep(100 * time.Millisecond)

	// Consecutive streams to the same client carry distinct stream ids.
	clients := server.Clients()
	ids := make(map[string]bool)
	for i := 0; i < 3; i++ {
		stats, err := server.StreamToClient(clients[0].ID, make([]byte, 3200))
		if err != nil {
			t.Fatalf("stream %d failed: %v", i, err)
		}
		ids[stats.StreamID] = true
		collectFrames(t, conn)
	}
	if len(ids) != 3 {
		t.Errorf("expected 3 distinct stream ids, got %d", len(ids))
	}
}
