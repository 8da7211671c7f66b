package events

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	json "github.com/json-iterator/go"
	"github.com/zfogg/sidechain/chat/pkg/api"
)

// ErrUnknownKind is returned by Decode for envelope types outside the closed set.
var ErrUnknownKind = errors.New("unknown event type")

// Timestamp accepts Unix milliseconds or RFC3339 strings
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ts.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}
	if str == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return err
	}
	ts.Time = t
	return nil
}

// MarshalJSON always emits RFC3339
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(ts.Time.Format(time.RFC3339Nano))), nil
}

// Envelope is the transport framing shared by the websocket and NATS feeds
type Envelope struct {
	Type      Kind            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ID        string          `json:"id,omitempty"`
	Timestamp Timestamp       `json:"timestamp"`
}

// payload accepts both snake_case and camelCase keys
type payload struct {
	ConversationID      string       `json:"conversation_id"`
	ConversationIDCamel string       `json:"conversationId"`
	Message             *api.Message `json:"message"`
	UnreadMessages      *int         `json:"unread_messages"`
	UnreadMessagesCamel *int         `json:"unreadMessages"`
	MessageID           string       `json:"message_id"`
	MessageIDCamel      string       `json:"messageId"`
	LastMessage         *api.Message `json:"last_message"`
	LastMessageCamel    *api.Message `json:"lastMessage"`
	UserID              string       `json:"user_id"`
	UserIDCamel         string       `json:"userId"`
	IsTyping            *bool        `json:"is_typing"`
	IsTypingCamel       *bool        `json:"isTyping"`
	UserIDs             []string     `json:"user_ids"`
	UserIDsCamel        []string     `json:"userIds"`
	Status              string       `json:"status"`
}

func pick(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Decode parses an envelope into its typed event
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return DecodeEnvelope(env)
}

// DecodeEnvelope converts an already parsed envelope into its typed event
func DecodeEnvelope(env Envelope) (Event, error) {
	switch env.Type {
	case KindMessageNew, KindMessageSent, KindMessageDeleted, KindTyping, KindPresenceState, KindPresenceUpdate:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}

	var p payload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	conversationID := pick(p.ConversationID, p.ConversationIDCamel)
	userID := pick(p.UserID, p.UserIDCamel)

	switch env.Type {
	case KindMessageNew, KindMessageSent:
		if p.Message == nil {
			return nil, fmt.Errorf("decode %s payload: missing message", env.Type)
		}
		msg := *p.Message
		if conversationID == "" {
			conversationID = msg.ConversationID
		}
		if msg.ConversationID == "" {
			msg.ConversationID = conversationID
		}
		if conversationID == "" {
			return nil, fmt.Errorf("decode %s payload: missing conversation id", env.Type)
		}
		unread := p.UnreadMessages
		if unread == nil {
			unread = p.UnreadMessagesCamel
		}
		return MessageReceived{
			ConversationID: conversationID,
			Message:        msg,
			UnreadMessages: unread,
			Echo:           env.Type == KindMessageSent,
		}, nil

	case KindMessageDeleted:
		messageID := pick(p.MessageID, p.MessageIDCamel)
		if conversationID == "" || messageID == "" {
			return nil, fmt.Errorf("decode %s payload: missing conversation or message id", env.Type)
		}
		last := p.LastMessage
		if last == nil {
			last = p.LastMessageCamel
		}
		return MessageDeleted{ConversationID: conversationID, MessageID: messageID, LastMessage: last}, nil

	case KindTyping:
		isTyping := p.IsTyping
		if isTyping == nil {
			isTyping = p.IsTypingCamel
		}
		if conversationID == "" || userID == "" || isTyping == nil {
			return nil, fmt.Errorf("decode %s payload: missing conversation, user or typing flag", env.Type)
		}
		return TypingChanged{ConversationID: conversationID, UserID: userID, IsTyping: *isTyping}, nil

	case KindPresenceState:
		ids := p.UserIDs
		if ids == nil {
			ids = p.UserIDsCamel
		}
		return PresenceSnapshot{UserIDs: ids}, nil

	default:
		if userID == "" {
			return nil, fmt.Errorf("decode %s payload: missing user id", env.Type)
		}
		return PresenceChanged{UserID: userID, Status: p.Status}, nil
	}
}

// Encode frames ev as an envelope in the snake_case wire format
func Encode(ev Event) ([]byte, error) {
	var body interface{}
	switch e := ev.(type) {
	case MessageReceived:
		body = struct {
			ConversationID string      `json:"conversation_id"`
			Message        api.Message `json:"message"`
			UnreadMessages *int        `json:"unread_messages,omitempty"`
		}{e.ConversationID, e.Message, e.UnreadMessages}
	case MessageDeleted:
		body = struct {
			ConversationID string       `json:"conversation_id"`
			MessageID      string       `json:"message_id"`
			LastMessage    *api.Message `json:"last_message,omitempty"`
		}{e.ConversationID, e.MessageID, e.LastMessage}
	case TypingChanged:
		body = struct {
			ConversationID string `json:"conversation_id"`
			UserID         string `json:"user_id"`
			IsTyping       bool   `json:"is_typing"`
		}{e.ConversationID, e.UserID, e.IsTyping}
	case PresenceSnapshot:
		body = struct {
			UserIDs []string `json:"user_ids"`
		}{e.UserIDs}
	case PresenceChanged:
		body = struct {
			UserID string `json:"user_id"`
			Status string `json:"status"`
		}{e.UserID, e.Status}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, ev)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:      ev.Kind(),
		Payload:   raw,
		Timestamp: Timestamp{Time: time.Now().UTC()},
	})
}
