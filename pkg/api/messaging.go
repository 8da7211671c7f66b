package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zfogg/sidechain/chat/pkg/client"
	"github.com/zfogg/sidechain/chat/pkg/logger"
	"github.com/zfogg/sidechain/chat/pkg/metrics"
)

const basePath = "/api/v1/conversations"

// Client calls the messaging endpoints of the Sidechain API.
type Client struct {
	http *client.Client
}

// NewClient returns an API client using c for transport
func NewClient(c *client.Client) *Client {
	return &Client{http: c}
}

func conversationPath(id string, parts ...string) string {
	p := basePath + "/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// do executes req and records its outcome under operation.
func (c *Client) do(ctx context.Context, operation, method, path string, req *resty.Request) error {
	start := time.Now()
	resp, err := req.SetContext(ctx).Execute(method, path)

	status := 0
	if resp != nil && err == nil {
		status = resp.StatusCode()
	}
	metrics.RecordAPIRequest(operation, status, time.Since(start))

	if err := CheckResponse(resp, err); err != nil {
		logger.Debug("API request failed", "operation", operation, "error", err)
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

// ListConversations retrieves the user's conversations
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	logger.Debug("Fetching conversations")

	var response conversationsResponse
	req := c.http.R().SetResult(&response)
	err := c.do(ctx, "list_conversations", resty.MethodGet, basePath, req)
	if err != nil {
		return nil, err
	}
	return response.Conversations, nil
}

// StartConversation opens (or returns the existing) conversation with a participant
func (c *Client) StartConversation(ctx context.Context, participantID string) (*Conversation, error) {
	logger.Debug("Starting conversation", "participant_id", participantID)

	var response conversationResponse
	req := c.http.R().
		SetBody(startConversationRequest{ParticipantID: participantID}).
		SetResult(&response)
	err := c.do(ctx, "start_conversation", resty.MethodPost, basePath, req)
	if err != nil {
		return nil, err
	}
	return &response.Conversation, nil
}

// ListMessages retrieves one page of a conversation's messages
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, limit int) (*MessagePage, error) {
	logger.Debug("Fetching messages", "conversation_id", conversationID, "page", page)

	var response MessagePage
	req := c.http.R().
		SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&response)
	err := c.do(ctx, "list_messages", resty.MethodGet, conversationPath(conversationID, "messages"), req)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// SendMessage posts a message to a conversation
func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (*Message, error) {
	logger.Debug("Sending message", "conversation_id", conversationID)

	var response messageResponse
	req := c.http.R().
		SetBody(sendMessageRequest{Content: content}).
		SetResult(&response)
	err := c.do(ctx, "send_message", resty.MethodPost, conversationPath(conversationID, "messages"), req)
	if err != nil {
		return nil, err
	}
	if response.Message.ConversationID == "" {
		response.Message.ConversationID = conversationID
	}
	return &response.Message, nil
}

// DeleteMessage deletes a message and returns the conversation's new last message
func (c *Client) DeleteMessage(ctx context.Context, conversationID, messageID string) (*DeleteResult, error) {
	logger.Debug("Deleting message", "conversation_id", conversationID, "message_id", messageID)

	var response DeleteResult
	req := c.http.R().SetResult(&response)
	err := c.do(ctx, "delete_message", resty.MethodDelete, conversationPath(conversationID, "messages", messageID), req)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// MarkRead marks every message in a conversation as read
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	logger.Debug("Marking conversation read", "conversation_id", conversationID)

	req := c.http.R()
	return c.do(ctx, "mark_read", resty.MethodPost, conversationPath(conversationID, "read"), req)
}

// SetTyping pushes the user's typing state for a conversation
func (c *Client) SetTyping(ctx context.Context, conversationID string, isTyping bool) error {
	req := c.http.R().SetBody(typingRequest{IsTyping: isTyping})
	return c.do(ctx, "set_typing", resty.MethodPost, conversationPath(conversationID, "typing"), req)
}
