package natsfeed

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/zfogg/sidechain/chat/pkg/events"
)

func TestSubject(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "sidechain.messaging.u1", cfg.Subject("u1"))

	cfg.SubjectPrefix = "chat.users."
	assert.Equal(t, "chat.users.u1", cfg.Subject("u1"))

	feed := NewFeed(cfg, "u2", events.NewBus())
	assert.Equal(t, "chat.users.u2", feed.Subject())
}

func TestHandlePublishesToBus(t *testing.T) {
	bus := events.NewBus()
	var got []events.Event
	bus.Subscribe(func(ev events.Event) { got = append(got, ev) })

	feed := NewFeed(DefaultConfig(), "u1", bus)
	feed.handle(&nats.Msg{
		Subject: feed.Subject(),
		Data:    []byte(`{"type":"presence:update","payload":{"user_id":"u9","status":"online"}}`),
	})
	feed.handle(&nats.Msg{Subject: feed.Subject(), Data: []byte(`{"type":"bogus"}`)})

	assert.Equal(t, []events.Event{events.PresenceChanged{UserID: "u9", Status: events.StatusOnline}}, got)
}

func TestConnectFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "nats://127.0.0.1:1"

	feed := NewFeed(cfg, "u1", events.NewBus())
	err := feed.Connect(cfg)
	assert.Error(t, err)

	// Close on an unconnected feed is a no-op.
	feed.Close()
}
