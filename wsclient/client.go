// Package wsclient provides an event-driven WebSocket client that notifies
// callers of connection state changes, received messages, and errors via
// registered handlers. It supports optional auto-reconnect and configurable
// timeouts.
package wsclient

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State represents the current state of the client connection.
type State int

const (
	// Disconnected means not connected and not attempting to connect.
	Disconnected State = iota
	// Connecting means a connection attempt is in progress.
	Connecting
	// Connected means the WebSocket handshake completed.
	Connected
	// Reconnecting means the connection was lost and a retry is pending.
	Reconnecting
	// Closed means the client was closed and will not reconnect.
	Closed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// StateEvent is emitted when the connection state changes.
type StateEvent struct {
	// State is the new connection state.
	State State
	// URL is the configured endpoint.
	URL string
	// Timestamp is when the state change occurred.
	Timestamp time.Time
	// Err is non-nil if the state change was caused by an error.
	Err error
}

// MessageEvent is emitted for each message read from the connection.
type MessageEvent struct {
	// Type is the websocket message type, TextMessage or BinaryMessage.
	Type int
	// Data is the message payload; copy it if it outlives the handler.
	Data []byte
	// Timestamp is when the message was received.
	Timestamp time.Time
}

// ErrorEvent is emitted when a read, write, or connect error occurs.
type ErrorEvent struct {
	// Err is the error that occurred.
	Err error
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

// StateHandler is called on connection state changes. Handlers run on the
// client's goroutines; keep them short.
type StateHandler func(event StateEvent)

// MessageHandler is called for each received message, in arrival order, on
// the read goroutine. A blocking handler stalls the read loop.
type MessageHandler func(event MessageEvent)

// ErrorHandler is called when an error occurs.
type ErrorHandler func(event ErrorEvent)

// Config holds configuration for the WebSocket client.
type Config struct {
	// URL is the endpoint to connect to, e.g. "ws://localhost:8080/".
	URL string
	// Header is sent with the upgrade request; may be nil.
	Header http.Header
	// TLSClientConfig is used for wss endpoints; nil selects the defaults.
	TLSClientConfig *tls.Config
	// AutoReconnect enables automatic reconnection when the connection is
	// lost.
	AutoReconnect bool
	// ReconnectInterval is the delay between reconnection attempts.
	ReconnectInterval time.Duration
	// HandshakeTimeout is the max duration for the dial and upgrade.
	HandshakeTimeout time.Duration
	// WriteTimeout is the max duration for a single write; 0 means none.
	WriteTimeout time.Duration
	// ReadTimeout is the max duration to wait for a message; 0 means none.
	ReadTimeout time.Duration
	// MaxMessageBytes caps the size of an inbound message; 0 means none.
	MaxMessageBytes int64
}

// DefaultConfig returns a Config with default values for the given URL.
// AutoReconnect is false; override fields as needed before passing to New.
//
// Parameters:
//   - url: The endpoint to connect to
//
// Returns:
//   - A Config with defaults: ReconnectInterval 5s, HandshakeTimeout 10s,
//     WriteTimeout 10s, ReadTimeout 0, MaxMessageBytes 16MiB
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		ReconnectInterval: 5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageBytes:   16 << 20,
	}
}

// Client is a WebSocket client that drives I/O and connection lifecycle via
// events. Register handlers with OnState, OnMessage, and OnError, then call
// Connect to start. It is safe for concurrent use.
type Client struct {
	config Config

	mu    sync.RWMutex
	ws    *websocket.Conn
	state State

	onState   StateHandler
	onMessage MessageHandler
	onError   ErrorHandler

	writeMu sync.Mutex

	stopChan      chan struct{}
	reconnectChan chan struct{}
	wg            sync.WaitGroup
	closed        bool
	reconnecting  bool
}

// New creates a new client with the given config. The client starts in
// Disconnected state; call Connect to establish a connection.
//
// Parameters:
//   - config: Connection and behavior settings, e.g. from DefaultConfig
//
// Returns:
//   - A new *Client; call Close when done to release resources
func New(config Config) *Client {
	return &Client{
		config:        config,
		state:         Disconnected,
		stopChan:      make(chan struct{}),
		reconnectChan: make(chan struct{}, 1),
	}
}

// OnState registers the handler for connection state changes. Only one
// handler is active; repeated calls replace it. Pass nil to clear.
//
// Parameters:
//   - handler: Function called on state changes
func (c *Client) OnState(handler StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = handler
}

// OnMessage registers the handler for incoming messages. Only one handler
// is active; repeated calls replace it. Pass nil to clear.
//
// Parameters:
//   - handler: Function called with each received message
func (c *Client) OnMessage(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

// OnError registers the handler for read, write, and connect errors. Only
// one handler is active; repeated calls replace it. Pass nil to clear.
//
// Parameters:
//   - handler: Function called when an error occurs
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect dials the configured URL and performs the WebSocket handshake.
// On success a read goroutine starts delivering messages to the registered
// handler.
//
// Returns:
//   - An error if the client is closed, already connected or connecting,
//     or the dial fails
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return fmt.Errorf("already connected or connecting")
	}
	c.mu.Unlock()

	return c.connect()
}

// Disconnect closes the current connection and moves to Disconnected. It
// does not close the client; Connect may be called again. Safe to call when
// already disconnected.
//
// Returns:
//   - The error from closing the connection, if any
func (c *Client) Disconnect() error {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	alreadyDown := c.state == Disconnected || c.state == Closed
	c.mu.Unlock()

	if alreadyDown || ws == nil {
		return nil
	}

	err := ws.Close()
	c.setState(Disconnected, nil)
	return err
}

// Close shuts down the client, closes the connection, and stops all
// goroutines. After Close the client must not be used further. Idempotent.
//
// Returns:
//   - nil
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = ws.Close()
	}

	close(c.stopChan)
	c.wg.Wait()

	c.setState(Closed, nil)

	return nil
}

// Send writes one message to the connection. When WriteTimeout is set, the
// write is limited to that duration. Safe to call from multiple goroutines.
//
// Parameters:
//   - messageType: websocket.TextMessage or websocket.BinaryMessage
//   - data: The payload to send; not modified
//
// Returns:
//   - An error if not connected or the write fails
func (c *Client) Send(messageType int, data []byte) error {
	c.mu.RLock()
	ws := c.ws
	state := c.state
	c.mu.RUnlock()

	if state != Connected || ws == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		_ = ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}

	err := ws.WriteMessage(messageType, data)
	if err != nil {
		c.emitError(err)
		c.triggerReconnect()
	}

	return err
}

// SendText writes one text message.
//
// Parameters:
//   - text: The payload to send
//
// Returns:
//   - An error if not connected or the write fails
func (c *Client) SendText(text string) error {
	return c.Send(websocket.TextMessage, []byte(text))
}

// GetState returns the current connection state.
func (c *Client) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected returns true if the client is in Connected state.
func (c *Client) IsConnected() bool {
	return c.GetState() == Connected
}

func (c *Client) connect() error {
	c.setState(Connecting, nil)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
		TLSClientConfig:  c.config.TLSClientConfig,
	}

	ws, resp, err := dialer.Dial(c.config.URL, c.config.Header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.setState(Disconnected, err)
		c.emitError(err)
		return err
	}

	if c.config.MaxMessageBytes > 0 {
		ws.SetReadLimit(c.config.MaxMessageBytes)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return fmt.Errorf("client is closed")
	}
	c.ws = ws
	firstConnect := !c.reconnecting
	c.mu.Unlock()

	c.setState(Connected, nil)

	c.wg.Add(1)
	go c.readLoop(ws)

	if c.config.AutoReconnect && firstConnect {
		c.wg.Add(1)
		go c.reconnectLoop()
	}

	return nil
}

// readLoop delivers messages for one connection until it fails or is
// replaced. Handlers run here, so message order is preserved.
func (c *Client) readLoop(ws *websocket.Conn) {
	defer c.wg.Done()

	for {
		if c.config.ReadTimeout > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if c.isCurrent(ws) && !c.isClosed() {
				c.emitError(err)
				c.setState(Disconnected, err)
				c.triggerReconnect()
			}
			return
		}

		c.emitMessage(messageType, data)
	}
}

// reconnectLoop retries the connection whenever a loss is signalled. One
// instance runs for the client's lifetime once AutoReconnect kicked in.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case <-c.reconnectChan:
		}

		c.mu.Lock()
		c.reconnecting = true
		if c.ws != nil {
			_ = c.ws.Close()
			c.ws = nil
		}
		c.mu.Unlock()

		c.setState(Reconnecting, nil)

		select {
		case <-c.stopChan:
			return
		case <-time.After(c.config.ReconnectInterval):
		}

		if c.isClosed() {
			return
		}

		if err := c.connect(); err != nil {
			c.triggerReconnect()
		}
	}
}

func (c *Client) triggerReconnect() {
	if !c.config.AutoReconnect || c.isClosed() {
		return
	}

	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

func (c *Client) isCurrent(ws *websocket.Conn) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ws == ws
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	c.state = state
	handler := c.onState
	c.mu.Unlock()

	if handler != nil {
		handler(StateEvent{
			State:     state,
			URL:       c.config.URL,
			Timestamp: time.Now(),
			Err:       err,
		})
	}
}

func (c *Client) emitMessage(messageType int, data []byte) {
	c.mu.RLock()
	handler := c.onMessage
	c.mu.RUnlock()

	if handler != nil {
		handler(MessageEvent{
			Type:      messageType,
			Data:      data,
			Timestamp: time.Now(),
		})
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		handler(ErrorEvent{
			Err:       err,
			Timestamp: time.Now(),
		})
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
