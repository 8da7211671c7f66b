// Package websocket is the reconnecting real-time transport. Every text frame
// it reads is handed to a Publisher, normally an *events.Bus; the transport
// itself knows nothing about event semantics.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"github.com/zfogg/sidechain/chat/pkg/config"
	"github.com/zfogg/sidechain/chat/pkg/logger"
	"github.com/zfogg/sidechain/chat/pkg/metrics"
)

// MessageType is the type field of an outbound frame
type MessageType string

const (
	MessageTypeHeartbeat MessageType = "heartbeat"
	MessageTypePong      MessageType = "pong"
)

// ErrNotConnected is returned by Send without a live connection
var ErrNotConnected = errors.New("not connected")

// Publisher receives raw inbound frames
type Publisher interface {
	PublishRaw(raw []byte) bool
}

// Frame is an outbound message
type Frame struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Config holds WebSocket client configuration
type Config struct {
	URL                  string
	ConnectTimeout       time.Duration
	HeartbeatInterval    time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
}

// DefaultConfig returns a development configuration
func DefaultConfig() Config {
	return Config{
		URL:                  "ws://localhost:8787/api/v1/ws",
		ConnectTimeout:       15 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		ReconnectBaseDelay:   2 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: -1, // unlimited
	}
}

// ConfigFromURL returns DefaultConfig pointed at raw. http and https URLs
// are mapped to ws and wss.
func ConfigFromURL(raw string) (Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid websocket url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return Config{}, fmt.Errorf("invalid websocket url %q: scheme must be ws or wss", raw)
	}
	if u.Host == "" {
		return Config{}, fmt.Errorf("invalid websocket url %q: missing host", raw)
	}

	cfg := DefaultConfig()
	cfg.URL = u.String()
	return cfg, nil
}

// ConfigFromSettings reads ws.url
func ConfigFromSettings() (Config, error) {
	return ConfigFromURL(config.GetString("ws.url"))
}

// ConnectionState represents the state of the WebSocket connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	MessagesReceived int64
	MessagesDropped  int64
	MessagesSent     int64
	ReconnectCount   int
	LastError        string
	ConnectedAt      time.Time
	DisconnectedAt   time.Time
}

// Client manages one logical connection, redialing with exponential backoff
// when it drops.
type Client struct {
	config Config
	bus    Publisher

	mu          sync.RWMutex
	conn        *websocket.Conn
	token       string
	onReconnect func()

	writeMu sync.Mutex
	state   atomic.Value // ConnectionState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsLock sync.RWMutex
	stats     ConnectionStats
}

// NewClient creates a client that publishes inbound frames to bus
func NewClient(cfg Config, bus Publisher) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config: cfg,
		bus:    bus,
		ctx:    ctx,
		cancel: cancel,
	}
	c.state.Store(StateDisconnected)
	return c
}

// SetAuthToken sets the JWT used on the next dial
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// OnReconnect registers fn to run after every successful redial. Events sent
// while disconnected are lost, so fn should resync state.
func (c *Client) OnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = fn
}

// Connect establishes the connection and starts the read loop
func (c *Client) Connect(token string) error {
	c.SetAuthToken(token)
	c.setState(StateConnecting)

	conn, err := c.dial()
	if err != nil {
		c.setState(StateError)
		c.recordError(err.Error())
		return err
	}
	c.attach(conn)

	c.wg.Add(1)
	go c.run(conn)

	logger.Debug("WebSocket connected", "url", c.config.URL)
	return nil
}

// Disconnect closes the connection and stops reconnecting
func (c *Client) Disconnect() error {
	c.cancel()

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.setState(StateDisconnected)
	c.recordDisconnected()

	logger.Debug("WebSocket disconnected")
	return nil
}

// IsConnected returns true if the connection is established
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state
func (c *Client) State() ConnectionState {
	return c.state.Load().(ConnectionState)
}

// Send writes one frame to the server
func (c *Client) Send(msgType MessageType, payload interface{}) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(Frame{Type: msgType, Payload: payload})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}

	c.recordMessageSent()
	return nil
}

// GetStats returns connection statistics
func (c *Client) GetStats() ConnectionStats {
	c.statsLock.RLock()
	defer c.statsLock.RUnlock()
	return c.stats
}

func (c *Client) dial() (*websocket.Conn, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	header := http.Header{}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		header.Set("Authorization", "Bearer "+token)
	}

	ctx := c.ctx
	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(c.ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	return conn, err
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected)
	c.recordConnected()
}

// run serves conn until it fails, then redials until Disconnect or the
// attempt limit.
func (c *Client) run(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		c.serve(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()

		if c.ctx.Err() != nil {
			return
		}

		c.setState(StateReconnecting)
		c.recordDisconnected()

		next, ok := c.reconnect()
		if !ok {
			return
		}
		conn = next

		c.mu.RLock()
		hook := c.onReconnect
		c.mu.RUnlock()
		if hook != nil {
			hook()
		}
	}
}

// serve runs the heartbeat and read loop for one connection
func (c *Client) serve(conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	if c.config.HeartbeatInterval > 0 {
		go c.heartbeatLoop(stop)
	}
	c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.recordError(err.Error())
				logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if c.bus.PublishRaw(data) {
			c.recordMessageReceived()
		} else {
			c.recordMessageDropped()
		}
	}
}

func (c *Client) heartbeatLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := c.Send(MessageTypeHeartbeat, nil); err != nil {
				logger.Debug("Failed to send heartbeat", "error", err)
			}
		}
	}
}

// reconnect redials with exponential backoff and jitter
func (c *Client) reconnect() (*websocket.Conn, bool) {
	delay := c.config.ReconnectBaseDelay
	for attempt := 0; ; attempt++ {
		if c.config.MaxReconnectAttempts >= 0 && attempt >= c.config.MaxReconnectAttempts {
			c.setState(StateError)
			logger.Error("Max reconnection attempts reached", "attempts", attempt)
			return nil, false
		}

		wait := delay
		if delay > 0 {
			wait += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		}
		logger.Debug("Reconnecting WebSocket", "attempt", attempt+1, "wait_ms", wait.Milliseconds())

		select {
		case <-c.ctx.Done():
			return nil, false
		case <-time.After(wait):
		}

		conn, err := c.dial()
		if err != nil {
			c.recordError(err.Error())
			delay = min(delay*2, c.config.ReconnectMaxDelay)
			continue
		}

		if c.ctx.Err() != nil {
			conn.Close()
			return nil, false
		}
		c.attach(conn)
		c.recordReconnect()
		logger.Info("WebSocket reconnected", "attempt", attempt+1)
		return conn, true
	}
}

func (c *Client) setState(state ConnectionState) {
	c.state.Store(state)
}

func (c *Client) recordMessageReceived() {
	c.statsLock.Lock()
	c.stats.MessagesReceived++
	c.statsLock.Unlock()
}

func (c *Client) recordMessageDropped() {
	c.statsLock.Lock()
	c.stats.MessagesDropped++
	c.statsLock.Unlock()
}

func (c *Client) recordMessageSent() {
	c.statsLock.Lock()
	c.stats.MessagesSent++
	c.statsLock.Unlock()
}

func (c *Client) recordError(errMsg string) {
	c.statsLock.Lock()
	c.stats.LastError = errMsg
	c.statsLock.Unlock()
}

func (c *Client) recordConnected() {
	c.statsLock.Lock()
	c.stats.ConnectedAt = time.Now()
	c.statsLock.Unlock()
}

func (c *Client) recordDisconnected() {
	c.statsLock.Lock()
	c.stats.DisconnectedAt = time.Now()
	c.statsLock.Unlock()
}

func (c *Client) recordReconnect() {
	c.statsLock.Lock()
	c.stats.ReconnectCount++
	c.statsLock.Unlock()
	metrics.RecordReconnect("websocket")
}
