// ABOUTME: WebSocket client with connection state machine and auto-reconnect
// ABOUTME: Parses inbound chunk frames and feeds the receiver with reset-on-switch
package pcmcast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pcmcast/pcmcast-go/pkg/audio"
	"github.com/pcmcast/pcmcast-go/pkg/stream"
)

// Connection state machine: disconnected → connecting → connected, with
// reconnecting entered on unexpected close when auto-reconnect is enabled.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned for operations requiring a connection.
	ErrNotConnected = errors.New("not connected")

	// ErrDisconnected rejects outstanding waits when Disconnect is called.
	ErrDisconnected = errors.New("client disconnected")

	// ErrReconnectFailed is the terminal error after the reconnect
	// attempt budget is exhausted. A new Connect call is required.
	ErrReconnectFailed = errors.New("reconnect attempts exhausted")
)

// DefaultMaxReconnectAttempts bounds automatic reconnection tries.
const DefaultMaxReconnectAttempts = 5

// DefaultReconnectDelay is the base backoff delay; attempt n waits
// base * 2^(n-1).
const DefaultReconnectDelay = time.Second

// ClientConfig configures a Client.
type ClientConfig struct {
	// ServerAddr is the server address (host:port).
	ServerAddr string

	// Path is the WebSocket endpoint path (default: /pcmcast).
	Path string

	// AutoReconnect enables reconnection with exponential backoff after
	// an unexpected close.
	AutoReconnect bool

	// MaxReconnectAttempts caps reconnection tries (default: 5).
	MaxReconnectAttempts int

	// ReconnectDelay is the base backoff delay (default: 1s).
	ReconnectDelay time.Duration

	// Receiver configures the embedded receiver.
	Receiver ReceiverConfig

	// EventBuffer is the event channel capacity (default: 64).
	EventBuffer int
}

// StreamStartFunc is called with the live output stream and its format when
// the first chunk of a (re)started stream arrives, so playback can begin
// incrementally rather than waiting for completion.
type StreamStartFunc func(*stream.Reader, audio.Format)

// Client maintains one WebSocket connection to a pcmcast server and feeds
// inbound chunk frames to a Receiver.
type Client struct {
	config   ClientConfig
	receiver *Receiver
	events   chan Event

	mu             sync.Mutex
	conn           *websocket.Conn
	state          ConnState
	attempts       int
	reconnectTimer *time.Timer
	closing        bool
	curStreamID    string

	onStreamStart []StreamStartFunc
	streamWaiters []chan streamHandle
}

// streamHandle resolves a WaitForStream call.
type streamHandle struct {
	reader *stream.Reader
	format audio.Format
	err    error
}

// NewClient creates a client. Call Connect to establish the connection.
func NewClient(config ClientConfig) *Client {
	if config.Path == "" {
		config.Path = "/pcmcast"
	}
	if config.MaxReconnectAttempts == 0 {
		config.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}
	if config.EventBuffer == 0 {
		config.EventBuffer = DefaultEventBuffer
	}

	return &Client{
		config:   config,
		receiver: NewReceiver(config.Receiver),
		events:   make(chan Event, config.EventBuffer),
		state:    StateDisconnected,
	}
}

// Events returns the client's event channel (errors, stream lifecycle).
func (c *Client) Events() <-chan Event {
	return c.events
}

// Receiver returns the embedded receiver.
func (c *Client) Receiver() *Receiver {
	return c.receiver
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HandleStreamStart registers a callback fired on the first chunk of each
// (re)started stream.
func (c *Client) HandleStreamStart(fn StreamStartFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStreamStart = append(c.onStreamStart, fn)
}

// Connect establishes the WebSocket connection. A dial failure leaves the
// client disconnected; auto-reconnect applies only to established
// connections that drop unexpectedly.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect from state %s", c.state)
	}
	c.state = StateConnecting
	c.closing = false
	c.attempts = 0
	c.mu.Unlock()

	conn, err := c.dial()
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// dial opens the WebSocket connection.
func (c *Client) dial() (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return conn, nil
}

// Disconnect forces the disconnected state immediately: it cancels any
// pending reconnect timer, rejects outstanding WaitForStream calls, and
// closes the socket. Socket teardown completes asynchronously.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closing = true
	c.state = StateDisconnected
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.rejectWaitersLocked(ErrDisconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// WaitForStream blocks until the first chunk of a stream arrives, returning
// the live output stream and its format. It fails if the context ends or
// Disconnect is called.
func (c *Client) WaitForStream(ctx context.Context) (*stream.Reader, audio.Format, error) {
	c.mu.Lock()
	if c.curStreamID != "" {
		reader := c.receiver.Stream()
		format := c.receiver.Format()
		c.mu.Unlock()
		return reader, format, nil
	}

	waiter := make(chan streamHandle, 1)
	c.streamWaiters = append(c.streamWaiters, waiter)
	c.mu.Unlock()

	select {
	case h := <-waiter:
		return h.reader, h.format, h.err
	case <-ctx.Done():
		return nil, audio.Format{}, ctx.Err()
	}
}

// readLoop consumes frames from one connection until it fails or closes.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleConnLost(conn, err)
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		c.handleFrame(data)
	}
}

// handleFrame parses one inbound text frame as a serialized chunk. Parse
// errors surface as error events and leave stream state untouched.
func (c *Client) handleFrame(data []byte) {
	chunk, err := audio.ParseFrame(data)
	if err != nil {
		publish(c.events, Event{Kind: EventError, Err: fmt.Errorf("inbound frame: %w", err)})
		return
	}

	c.mu.Lock()
	newStream := chunk.StreamID != c.curStreamID
	if newStream {
		if c.curStreamID != "" {
			// Implicit stream switch: reset before accepting.
			c.receiver.Reset()
		}
		c.curStreamID = chunk.StreamID
	}
	c.mu.Unlock()

	c.receiver.AddChunk(chunk)

	if newStream {
		reader := c.receiver.Stream()
		format := chunk.Format

		c.mu.Lock()
		callbacks := make([]StreamStartFunc, len(c.onStreamStart))
		copy(callbacks, c.onStreamStart)
		c.resolveWaitersLocked(reader, format)
		c.mu.Unlock()

		for _, fn := range callbacks {
			fn(reader, format)
		}
	}
}

// handleConnLost runs the reconnect policy after a read failure.
func (c *Client) handleConnLost(conn *websocket.Conn, err error) {
	conn.Close()

	c.mu.Lock()
	if c.closing || c.conn != conn {
		// Explicit disconnect already handled the transition.
		c.mu.Unlock()
		return
	}
	c.conn = nil

	if !c.config.AutoReconnect {
		c.state = StateDisconnected
		c.rejectWaitersLocked(ErrNotConnected)
		c.mu.Unlock()
		publish(c.events, Event{Kind: EventError, Err: fmt.Errorf("connection lost: %w", err)})
		return
	}

	c.mu.Unlock()
	publish(c.events, Event{Kind: EventError, Err: fmt.Errorf("connection lost, reconnecting: %w", err)})
	c.scheduleReconnect()
}

// scheduleReconnect arms the backoff timer for the next attempt: attempt n
// fires after base * 2^(n-1), until the attempt budget is exhausted.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		return
	}

	c.attempts++
	if c.attempts > c.config.MaxReconnectAttempts {
		c.state = StateDisconnected
		c.rejectWaitersLocked(ErrReconnectFailed)
		publish(c.events, Event{Kind: EventError, Err: ErrReconnectFailed})
		return
	}

	c.state = StateReconnecting
	delay := c.reconnectDelay(c.attempts)
	log.Printf("Reconnect attempt %d/%d in %v", c.attempts, c.config.MaxReconnectAttempts, delay)

	c.reconnectTimer = time.AfterFunc(delay, c.tryReconnect)
}

// reconnectDelay returns the backoff before the given attempt: the base
// delay doubled for each prior attempt.
func (c *Client) reconnectDelay(attempt int) time.Duration {
	return c.config.ReconnectDelay * (1 << (attempt - 1))
}

// tryReconnect performs one reconnection attempt.
func (c *Client) tryReconnect() {
	c.mu.Lock()
	if c.closing || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	conn, err := c.dial()
	if err != nil {
		log.Printf("Reconnect failed: %v", err)
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	log.Printf("Reconnected to %s", c.config.ServerAddr)
	go c.readLoop(conn)
}

// resolveWaitersLocked hands the live stream to outstanding WaitForStream
// calls. Caller holds c.mu.
func (c *Client) resolveWaitersLocked(reader *stream.Reader, format audio.Format) {
	for _, w := range c.streamWaiters {
		w <- streamHandle{reader: reader, format: format}
	}
	c.streamWaiters = nil
}

// rejectWaitersLocked fails outstanding WaitForStream calls. Caller holds
// c.mu.
func (c *Client) rejectWaitersLocked(err error) {
	for _, w := range c.streamWaiters {
		w <- streamHandle{err: err}
	}
	c.streamWaiters = nil
}
