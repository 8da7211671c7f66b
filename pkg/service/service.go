// Package service drives the messaging core for the sidechain-chat command:
// it builds the HTTP client, session, transport and renderer from
// configuration and prints results through pkg/output.
package service

import (
	"fmt"
	"sync"

	"github.com/zfogg/sidechain/chat/pkg/api"
	"github.com/zfogg/sidechain/chat/pkg/client"
	"github.com/zfogg/sidechain/chat/pkg/config"
	"github.com/zfogg/sidechain/chat/pkg/credentials"
	cerrors "github.com/zfogg/sidechain/chat/pkg/errors"
	"github.com/zfogg/sidechain/chat/pkg/events"
	"github.com/zfogg/sidechain/chat/pkg/logger"
	"github.com/zfogg/sidechain/chat/pkg/messaging"
	"github.com/zfogg/sidechain/chat/pkg/natsfeed"
	"github.com/zfogg/sidechain/chat/pkg/render"
	"github.com/zfogg/sidechain/chat/pkg/websocket"
)

// Transport feeds a bus with real-time events
type Transport interface {
	Connect(token string) error
	OnReconnect(fn func())
	Close()
}

// TransportFactory builds the transport for userID
type TransportFactory func(bus *events.Bus, userID string) (Transport, error)

// ChatService manages one user's messaging session
type ChatService struct {
	creds     *credentials.Credentials
	http      *client.Client
	session   *messaging.Session
	renderer  *render.Renderer
	bus       *events.Bus
	transport TransportFactory

	// printMu serializes output from event handlers and the input loop
	printMu sync.Mutex
}

// NewChatService loads credentials and configuration
func NewChatService() (*ChatService, error) {
	creds, err := credentials.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil || !creds.IsValid() {
		return nil, cerrors.UnauthorizedError(nil)
	}

	renderer, err := render.FromConfig()
	if err != nil {
		return nil, err
	}

	return New(creds, client.New(client.OptionsFromConfig()), renderer, DefaultTransport), nil
}

// New assembles a service from its parts
func New(creds *credentials.Credentials, httpClient *client.Client, renderer *render.Renderer, transport TransportFactory) *ChatService {
	httpClient.SetAuthToken(creds.AccessToken)

	session := messaging.NewSession(messaging.Options{
		SelfID:           creds.UserID,
		API:              api.NewClient(httpClient),
		PageSize:         config.GetInt("messaging.page_size"),
		MaxMessageLength: config.GetInt("messaging.max_message_length"),
		TypingIdle:       config.GetDuration("typing.idle_timeout"),
		TypingExpiry:     config.GetDuration("typing.expiry"),
	})

	bus := events.NewBus()
	session.Attach(bus)

	return &ChatService{
		creds:     creds,
		http:      httpClient,
		session:   session,
		renderer:  renderer,
		bus:       bus,
		transport: transport,
	}
}

// Session returns the underlying messaging session
func (s *ChatService) Session() *messaging.Session {
	return s.session
}

// Bus returns the event bus the session is attached to
func (s *ChatService) Bus() *events.Bus {
	return s.bus
}

// Close ends the session and forgets cached tokens
func (s *ChatService) Close() {
	s.session.Close()
	s.http.Reset()
}

// DefaultTransport uses NATS when nats.url is set and the websocket
// endpoint otherwise.
func DefaultTransport(bus *events.Bus, userID string) (Transport, error) {
	if cfg, ok := natsfeed.ConfigFromSettings(); ok {
		logger.Debug("Using NATS transport", "url", cfg.URL)
		return &natsTransport{feed: natsfeed.NewFeed(cfg, userID, bus), cfg: cfg}, nil
	}

	cfg, err := websocket.ConfigFromSettings()
	if err != nil {
		return nil, err
	}
	logger.Debug("Using websocket transport", "url", cfg.URL)
	return &wsTransport{client: websocket.NewClient(cfg, bus)}, nil
}

type wsTransport struct {
	client *websocket.Client
}

func (t *wsTransport) Connect(token string) error { return t.client.Connect(token) }
func (t *wsTransport) OnReconnect(fn func())      { t.client.OnReconnect(fn) }
func (t *wsTransport) Close()                     { _ = t.client.Disconnect() }

// The NATS connection is authenticated by the server deployment, not the
// user token.
type natsTransport struct {
	feed *natsfeed.Feed
	cfg  natsfeed.Config
}

func (t *natsTransport) Connect(string) error  { return t.feed.Connect(t.cfg) }
func (t *natsTransport) OnReconnect(fn func()) { t.feed.OnReconnect(fn) }
func (t *natsTransport) Close()                { t.feed.Close() }
