// Package events defines the closed set of real-time messaging events, the
// envelope they travel in, and the Bus that dispatches them to subscribers.
package events

import (
	"github.com/zfogg/sidechain/chat/pkg/api"
)

// Kind is the wire name of an event type
type Kind string

// Event types delivered by the real-time transports
const (
	KindMessageNew     Kind = "message:new"
	KindMessageSent    Kind = "message:sent"
	KindMessageDeleted Kind = "message:deleted"
	KindTyping         Kind = "message:typing"
	KindPresenceState  Kind = "presence:state"
	KindPresenceUpdate Kind = "presence:update"
)

// Presence statuses carried by presence:update
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Event is one of MessageReceived, MessageDeleted, TypingChanged,
// PresenceSnapshot or PresenceChanged.
type Event interface {
	Kind() Kind
	sealed()
}

// MessageReceived is a new message in a conversation. Echo marks the
// message:sent variant the server sends back to the author's own sessions.
type MessageReceived struct {
	ConversationID string
	Message        api.Message
	// UnreadMessages is the server's unread count for the receiving user, when supplied.
	UnreadMessages *int
	Echo           bool
}

// MessageDeleted reports a removed message and the conversation's new last message.
type MessageDeleted struct {
	ConversationID string
	MessageID      string
	LastMessage    *api.Message
}

// TypingChanged reports a participant starting or stopping typing.
type TypingChanged struct {
	ConversationID string
	UserID         string
	IsTyping       bool
}

// PresenceSnapshot replaces the whole online set.
type PresenceSnapshot struct {
	UserIDs []string
}

// PresenceChanged updates one user's presence.
type PresenceChanged struct {
	UserID string
	Status string
}

func (e MessageReceived) Kind() Kind {
	if e.Echo {
		return KindMessageSent
	}
	return KindMessageNew
}

func (MessageDeleted) Kind() Kind   { return KindMessageDeleted }
func (TypingChanged) Kind() Kind    { return KindTyping }
func (PresenceSnapshot) Kind() Kind { return KindPresenceState }
func (PresenceChanged) Kind() Kind  { return KindPresenceUpdate }

func (MessageReceived) sealed()  {}
func (MessageDeleted) sealed()   {}
func (TypingChanged) sealed()    {}
func (PresenceSnapshot) sealed() {}
func (PresenceChanged) sealed()  {}

// Online reports whether the status means the user is connected
func (e PresenceChanged) Online() bool {
	return e.Status == StatusOnline
}
