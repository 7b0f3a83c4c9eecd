// ABOUTME: Entry point for the pcmcast player
// ABOUTME: Connects to a server (direct or via mDNS) and plays received streams
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pcmcast/pcmcast-go/internal/discovery"
	"github.com/pcmcast/pcmcast-go/pkg/audio"
	"github.com/pcmcast/pcmcast-go/pkg/pcmcast"
	"github.com/pcmcast/pcmcast-go/pkg/sink"
	"github.com/pcmcast/pcmcast-go/pkg/stream"
)

var (
	serverAddr  = flag.String("server", "", "Server address (host:port); empty discovers via mDNS")
	path        = flag.String("path", "/pcmcast", "WebSocket endpoint path")
	noReconnect = flag.Bool("no-reconnect", false, "Disable automatic reconnection")
	attempts    = flag.Int("reconnect-attempts", 5, "Maximum reconnection attempts")
	delay       = flag.Duration("reconnect-delay", time.Second, "Base reconnection delay")
	sinkName    = flag.String("sink", "oto", "Audio sink: oto, exec, or a player command")
)

func main() {
	flag.Parse()

	addr := *serverAddr
	endpoint := *path
	if addr == "" {
		found, err := discoverServer()
		if err != nil {
			log.Fatalf("discovery failed: %v", err)
		}
		addr = found.Addr()
		endpoint = found.Path
		log.Printf("Discovered server %s at %s", found.Name, addr)
	}

	client := pcmcast.NewClient(pcmcast.ClientConfig{
		ServerAddr:           addr,
		Path:                 endpoint,
		AutoReconnect:        !*noReconnect,
		MaxReconnectAttempts: *attempts,
		ReconnectDelay:       *delay,
	})

	out := selectSink(*sinkName)

	type incoming struct {
		reader *stream.Reader
		format audio.Format
	}
	streams := make(chan incoming, 1)

	client.HandleStreamStart(func(r *stream.Reader, format audio.Format) {
		select {
		case streams <- incoming{reader: r, format: format}:
		default:
			// Player busy; the new stream replaces playback on next pick-up.
		}
	})

	if err := client.Connect(); err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	log.Printf("Connected to %s%s", addr, endpoint)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for ev := range client.Events() {
			switch ev.Kind {
			case pcmcast.EventError:
				log.Printf("client error: %v", ev.Err)
			case pcmcast.EventDropped:
				log.Printf("dropped %d buffered chunks", ev.Dropped)
			}
		}
	}()

	for {
		select {
		case in := <-streams:
			log.Printf("Playing stream (%s)", in.format)
			if err := out.PlayStream(in.reader, in.format); err != nil {
				log.Printf("playback error: %v", err)
			} else {
				stats := client.Receiver().Stats()
				log.Printf("Stream finished: %d chunks, %d bytes, avg latency %v",
					stats.Chunks, stats.Bytes, stats.LatencyAvg)
			}
		case sig := <-sigChan:
			log.Printf("Received %v signal, shutting down...", sig)
			out.Stop()
			client.Disconnect()
			return
		}
	}
}

// discoverServer browses mDNS for the first advertised server.
func discoverServer() (*discovery.ServerInfo, error) {
	mgr := discovery.NewManager(discovery.Config{})
	defer mgr.Stop()

	log.Printf("Browsing for pcmcast servers...")
	if err := mgr.Browse(); err != nil {
		return nil, err
	}

	select {
	case info := <-mgr.Servers():
		return info, nil
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("no server found within 10s")
	}
}

// selectSink maps the -sink flag to a backend.
func selectSink(name string) sink.Sink {
	switch name {
	case "oto":
		return &sink.OtoSink{}
	case "exec":
		return &sink.ExecSink{}
	default:
		return &sink.ExecSink{Command: name}
	}
}
