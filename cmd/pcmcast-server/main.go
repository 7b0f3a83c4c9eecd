// ABOUTME: Entry point for the pcmcast streaming server
// ABOUTME: Serves a sine test tone to connected clients on a repeating loop
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pcmcast/pcmcast-go/internal/ui"
	"github.com/pcmcast/pcmcast-go/pkg/audio"
	"github.com/pcmcast/pcmcast-go/pkg/pcmcast"
	"github.com/pcmcast/pcmcast-go/pkg/source"
)

var (
	port       = flag.Int("port", 9240, "WebSocket server port")
	name       = flag.String("name", "", "Server friendly name (default: hostname-pcmcast-server)")
	logFile    = flag.String("log-file", "pcmcast-server.log", "Log file path")
	sampleRate = flag.Int("rate", 16000, "Sample rate in Hz")
	channels   = flag.Int("channels", 1, "Channel count")
	chunkMs    = flag.Int("chunk-ms", 100, "Chunk duration in milliseconds")
	frequency  = flag.Float64("freq", 440, "Test tone frequency in Hz")
	burstSecs  = flag.Int("burst", 5, "Seconds of audio per stream burst")
	noPacing   = flag.Bool("no-pacing", false, "Send chunks back-to-back instead of real time")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	withTUI    = flag.Bool("tui", false, "Show interactive status view")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if *withTUI {
		// The TUI owns the terminal; keep logs in the file only.
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-pcmcast-server", hostname)
	}

	format := audio.Format{
		SampleRate: *sampleRate,
		Channels:   *channels,
		BitDepth:   16,
		Encoding:   audio.EncodingS16LE,
	}

	server, err := pcmcast.NewServer(pcmcast.ServerConfig{
		Port:            *port,
		Name:            serverName,
		Format:          format,
		ChunkDurationMs: *chunkMs,
		DisablePacing:   *noPacing,
		EnableMDNS:      !*noMDNS,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	log.Printf("Starting PCMCast Server: %s on port %d", serverName, *port)
	log.Printf("Press Ctrl-C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		server.Stop()
	}()

	stopped := make(chan struct{})
	go func() {
		streamLoop(server, format)
		close(stopped)
	}()

	if *withTUI {
		go runTUI(server, serverName, stopped)
	}

	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}

// streamLoop repeatedly streams a tone burst to every connected client.
func streamLoop(server *pcmcast.Server, format audio.Format) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if server.ClientCount() == 0 {
			continue
		}

		tone, err := source.NewSine(source.SineConfig{Format: format, Frequency: *frequency})
		if err != nil {
			log.Printf("tone source: %v", err)
			return
		}

		pcm := make([]byte, format.BytesPerSecond()*(*burstSecs))
		if _, err := io.ReadFull(tone, pcm); err != nil {
			log.Printf("tone read: %v", err)
			return
		}

		results := server.StreamToAll(pcm)
		for _, res := range results {
			if res.Err != nil {
				log.Printf("stream to %s failed: %v", res.ClientID, res.Err)
				continue
			}
			log.Printf("streamed %d chunks (%d bytes) to %s in %v",
				res.Stats.Chunks, res.Stats.Bytes, res.ClientID, res.Stats.Duration)
		}
	}
}

// runTUI drives the status view from server state until the stream loop ends.
func runTUI(server *pcmcast.Server, serverName string, stopped <-chan struct{}) {
	program := ui.Run(serverName, *port)

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				clients := server.Clients()
				rows := make([]ui.ClientRow, len(clients))
				for i, c := range clients {
					rows[i] = ui.ClientRow{ID: c.ID, RemoteAddr: c.RemoteAddr}
				}
				program.Send(ui.StatusMsg{HasClients: true, Clients: rows})
			case <-stopped:
				program.Quit()
				return
			}
		}
	}()

	if _, err := program.Run(); err != nil {
		log.Printf("TUI error: %v", err)
	}
	server.Stop()
}
