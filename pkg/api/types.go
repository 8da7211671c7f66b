package api

import "time"

// UserSummary is the public profile embedded in messages and conversations
type UserSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Name returns the display name, falling back to the username
func (u UserSummary) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Message represents a direct message
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Content        string      `json:"content"`
	Sender         UserSummary `json:"sender"`
	CreatedAt      time.Time   `json:"created_at"`
	Edited         bool        `json:"edited,omitempty"`
}

// Conversation represents a direct message thread between participants
type Conversation struct {
	ID           string        `json:"id"`
	Participants []UserSummary `json:"participants"`
	LastMessage  *Message      `json:"last_message,omitempty"`
	UnreadCount  int           `json:"unread_count"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Other returns the first participant that is not selfID
func (c Conversation) Other(selfID string) (UserSummary, bool) {
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return UserSummary{}, false
}

// Pagination describes a page of a message list
type Pagination struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	HasNextPage bool `json:"has_next_page"`
}

// MessagePage is one page of a conversation's messages
type MessagePage struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// DeleteResult carries the conversation's new last message after a deletion
type DeleteResult struct {
	LastMessage *Message `json:"last_message,omitempty"`
}

// ErrorResponse is the error body returned by the API
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type conversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

type conversationResponse struct {
	Conversation Conversation `json:"conversation"`
}

type messageResponse struct {
	Message Message `json:"message"`
}

type startConversationRequest struct {
	ParticipantID string `json:"participant_id"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}
