// Package natsfeed delivers real-time events from a NATS subject, as an
// alternative to the websocket transport. Each user's events are published
// on <prefix>.<user id> as the same {type, payload} envelopes.
package natsfeed

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/zfogg/sidechain/chat/pkg/config"
	"github.com/zfogg/sidechain/chat/pkg/logger"
	"github.com/zfogg/sidechain/chat/pkg/metrics"
)

// Publisher receives raw inbound envelopes
type Publisher interface {
	PublishRaw(raw []byte) bool
}

// Config holds NATS connection settings
type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns local development settings
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "sidechain-chat",
		SubjectPrefix: "sidechain.messaging",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// ConfigFromSettings reads nats.url and nats.subject_prefix. ok is false
// when no NATS server is configured.
func ConfigFromSettings() (cfg Config, ok bool) {
	cfg = DefaultConfig()
	cfg.URL = config.GetString("nats.url")
	if prefix := config.GetString("nats.subject_prefix"); prefix != "" {
		cfg.SubjectPrefix = prefix
	}
	return cfg, cfg.URL != ""
}

// Subject returns the subject carrying userID's events
func (c Config) Subject(userID string) string {
	return strings.TrimSuffix(c.SubjectPrefix, ".") + "." + userID
}

// Feed is a live subscription
type Feed struct {
	bus     Publisher
	subject string

	mu          sync.Mutex
	conn        *nats.Conn
	sub         *nats.Subscription
	onReconnect func()
}

// NewFeed creates an unconnected feed for userID
func NewFeed(cfg Config, userID string, bus Publisher) *Feed {
	return &Feed{
		bus:     bus,
		subject: cfg.Subject(userID),
	}
}

// OnReconnect registers fn to run after the connection is restored.
// Messages published while disconnected are not redelivered.
func (f *Feed) OnReconnect(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onReconnect = fn
}

// Connect dials the server and subscribes to the feed's subject
func (f *Feed) Connect(cfg Config) error {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
			metrics.RecordReconnect("nats")
			f.mu.Lock()
			hook := f.onReconnect
			f.mu.Unlock()
			if hook != nil {
				hook()
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Debug("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}

	sub, err := nc.Subscribe(f.subject, f.handle)
	if err != nil {
		nc.Close()
		return fmt.Errorf("nats subscribe %s: %w", f.subject, err)
	}

	f.mu.Lock()
	f.conn = nc
	f.sub = sub
	f.mu.Unlock()

	logger.Debug("NATS feed subscribed", "url", nc.ConnectedUrl(), "subject", f.subject)
	return nil
}

// Subject returns the subscribed subject
func (f *Feed) Subject() string {
	return f.subject
}

// Close unsubscribes and closes the connection
func (f *Feed) Close() {
	f.mu.Lock()
	conn, sub := f.conn, f.sub
	f.conn, f.sub = nil, nil
	f.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			logger.Debug("NATS unsubscribe failed", "error", err)
		}
	}
	if conn != nil {
		conn.Close()
	}
}

// handle runs on the subscription's delivery goroutine, one message at a
// time, so envelopes reach the bus in subject order.
func (f *Feed) handle(msg *nats.Msg) {
	if !f.bus.PublishRaw(msg.Data) {
		logger.Debug("Dropped NATS message", "subject", msg.Subject)
	}
}
