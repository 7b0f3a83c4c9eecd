// ABOUTME: WebSocket server fanning PCM streams out to connected clients
// ABOUTME: Manages per-client send queues, writer goroutines, and lifecycle
package pcmcast

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pcmcast/pcmcast-go/internal/discovery"
	"github.com/pcmcast/pcmcast-go/pkg/audio"
)

const (
	// DefaultPort is the server's default listen port.
	DefaultPort = 9240

	// DefaultPath is the WebSocket endpoint path.
	DefaultPath = "/pcmcast"

	// clientSendBuffer is the per-client outbound queue depth. A client
	// that falls this far behind starts failing sends rather than
	// stalling other clients.
	clientSendBuffer = 64

	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Port to listen on (default: 9240).
	Port int

	// Name identifies the server in logs and mDNS advertisement.
	Name string

	// Path is the WebSocket endpoint path (default: /pcmcast).
	Path string

	// Format is the PCM format streamed to clients (default:
	// audio.DefaultFormat).
	Format audio.Format

	// ChunkDurationMs is the nominal chunk duration (default: 100).
	ChunkDurationMs int

	// DisablePacing sends chunks back-to-back instead of in real time.
	DisablePacing bool

	// EnableMDNS advertises the server on the local network.
	EnableMDNS bool

	// EventBuffer is the lifecycle event channel capacity (default: 64).
	EventBuffer int
}

// Server accepts WebSocket clients and fans PCM streams out to them. Each
// StreamToClient or StreamToAll call runs one stream: PCM is sliced into
// chunks and paced at real-time rate per destination.
type Server struct {
	config   ServerConfig
	serverID string

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	clients   map[string]*serverClient
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager

	events chan Event

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// serverClient is one connected client.
type serverClient struct {
	ID         string
	RemoteAddr string

	conn     *websocket.Conn
	sendChan chan []byte
	closed   bool
	mu       sync.Mutex
}

// ClientInfo describes a connected client.
type ClientInfo struct {
	ID         string
	RemoteAddr string
}

// StreamResult is the per-client outcome of a fan-out stream.
type StreamResult struct {
	ClientID string
	Stats    StreamStats
	Err      error
}

// NewServer creates a server. Call Start to begin listening.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Name == "" {
		config.Name = "PCMCast Server"
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.Format == (audio.Format{}) {
		config.Format = audio.DefaultFormat()
	}
	if err := config.Format.Validate(); err != nil {
		return nil, fmt.Errorf("server format: %w", err)
	}
	if config.EventBuffer == 0 {
		config.EventBuffer = DefaultEventBuffer
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Local network deployments accept all origins.
				return true
			},
		},
		clients:  make(map[string]*serverClient),
		events:   make(chan Event, config.EventBuffer),
		stopChan: make(chan struct{}),
	}

	return s, nil
}

// Events returns the server's lifecycle event channel.
func (s *Server) Events() <-chan Event {
	return s.events
}

// Start runs the server until Stop is called or the listener fails.
func (s *Server) Start() error {
	log.Printf("Server starting: %s (ID: %s)", s.config.Name, s.serverID)
	log.Printf("Stream format: %s, %dms chunks", s.config.Format, s.chunkDurationMs())

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        s.config.Path,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}

	s.mux.HandleFunc(s.config.Path, s.handleWebSocket)

	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("WebSocket server listening on %s%s", addr, s.config.Path)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-s.stopChan:
		log.Printf("Server shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		return err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Shutdown does not close hijacked WebSocket connections; close them so
	// reader and writer goroutines unblock.
	s.clientsMu.RLock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.clientsMu.RUnlock()

	s.wg.Wait()
	log.Printf("Server stopped cleanly")

	return nil
}

// Stop stops the server. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Clients returns the connected clients.
func (s *Server) Clients() []ClientInfo {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	clients := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, ClientInfo{ID: c.ID, RemoteAddr: c.RemoteAddr})
	}
	return clients
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// StreamToClient streams one PCM buffer to a single client as a fresh stream.
// It blocks until pacing completes or the client's queue stays full past a
// pacing step.
func (s *Server) StreamToClient(clientID string, pcm []byte) (StreamStats, error) {
	s.clientsMu.RLock()
	c, ok := s.clients[clientID]
	s.clientsMu.RUnlock()

	if !ok {
		return StreamStats{}, fmt.Errorf("client %s not connected", clientID)
	}

	return s.streamTo(c, pcm)
}

// StreamToAll streams one PCM buffer to every connected client concurrently.
// Each client gets its own stream id and pacing loop; one client's failure
// does not affect the others. Returns one result per client streamed to.
func (s *Server) StreamToAll(pcm []byte) []StreamResult {
	s.clientsMu.RLock()
	targets := make([]*serverClient, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.clientsMu.RUnlock()

	results := make([]StreamResult, len(targets))
	var wg sync.WaitGroup

	for i, c := range targets {
		wg.Add(1)
		go func(i int, c *serverClient) {
			defer wg.Done()
			stats, err := s.streamTo(c, pcm)
			results[i] = StreamResult{ClientID: c.ID, Stats: stats, Err: err}
		}(i, c)
	}

	wg.Wait()
	return results
}

// streamTo runs one paced stream to one client. A fresh sender per stream
// keeps stream ids and pacing state independent across concurrent fan-outs.
func (s *Server) streamTo(c *serverClient, pcm []byte) (StreamStats, error) {
	sender := NewSender(SenderConfig{
		Format:          s.config.Format,
		ChunkDurationMs: s.chunkDurationMs(),
		DisablePacing:   s.config.DisablePacing,
	})

	stats, err := sender.Send(pcm, func(chunk audio.Chunk) error {
		frame, err := chunk.MarshalFrame()
		if err != nil {
			return fmt.Errorf("marshal chunk %d: %w", chunk.Sequence, err)
		}
		return c.send(frame)
	})

	if err != nil {
		publish(s.events, Event{Kind: EventError, StreamID: stats.StreamID,
			Err: fmt.Errorf("stream to %s: %w", c.ID, err)})
	}
	return stats, err
}

// chunkDurationMs returns the configured chunk duration with its default.
func (s *Server) chunkDurationMs() int {
	if s.config.ChunkDurationMs == 0 {
		return 100
	}
	return s.config.ChunkDurationMs
}

// handleWebSocket upgrades and hands off new connections.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)
	s.handleConnection(conn, r.RemoteAddr)
}

// handleConnection registers a client and reads until the connection closes.
// Inbound frames are drained and ignored; the protocol is server-push only.
func (s *Server) handleConnection(conn *websocket.Conn, remoteAddr string) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		log.Printf("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	c := &serverClient{
		ID:         uuid.New().String(),
		RemoteAddr: remoteAddr,
		conn:       conn,
		sendChan:   make(chan []byte, clientSendBuffer),
	}

	s.clientsMu.Lock()
	s.clients[c.ID] = c
	count := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("Client connected: %s (%s), %d total", c.ID, remoteAddr, count)

	defer func() {
		s.removeClient(c)
		log.Printf("Client disconnected: %s", c.ID)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error from %s: %v", c.ID, err)
			}
			return
		}
	}
}

// clientWriter drains the client's send queue onto the socket and keeps the
// connection alive with periodic pings.
func (s *Server) clientWriter(c *serverClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.sendChan:
			if !ok {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// removeClient unregisters a client and closes its send queue.
func (s *Server) removeClient(c *serverClient) {
	s.clientsMu.Lock()
	delete(s.clients, c.ID)
	s.clientsMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.sendChan)
	}
}

// send queues one frame for the client. A full queue or a departed client
// fails the send so the caller's stream can abort.
func (c *serverClient) send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client %s disconnected", c.ID)
	}

	select {
	case c.sendChan <- frame:
		return nil
	default:
		return fmt.Errorf("client %s send buffer full", c.ID)
	}
}
