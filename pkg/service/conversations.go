package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zfogg/sidechain/chat/pkg/api"
	"github.com/zfogg/sidechain/chat/pkg/logger"
	"github.com/zfogg/sidechain/chat/pkg/output"
	"github.com/zfogg/sidechain/chat/pkg/render"
)

const (
	timeLayout     = "2006-01-02 15:04"
	previewLength  = 40
	noConversation = "No conversations yet"
)

// Inbox lists conversations, most recent first
func (s *ChatService) Inbox(ctx context.Context) error {
	logger.Debug("Listing conversations")

	if err := s.session.LoadConversations(ctx); err != nil {
		return err
	}
	return s.printInbox()
}

// Start opens or creates the conversation with participantID
func (s *ChatService) Start(ctx context.Context, participantID string) error {
	conv, err := s.session.StartConversation(ctx, participantID)
	if err != nil {
		return err
	}
	output.PrintSuccess("Conversation %s with %s", conv.ID, s.peerName(*conv))
	return nil
}

// Thread prints the newest page of a conversation and marks it read. With
// markup, message text is shown as rendered markup.
func (s *ChatService) Thread(ctx context.Context, conversationID string, markup bool) error {
	if err := s.open(ctx, conversationID); err != nil {
		return err
	}

	msgs := s.session.Store().Messages()
	if len(msgs) == 0 {
		output.PrintInfo("No messages in this conversation")
		return nil
	}
	if output.GetOutputFormat() == output.FormatJSON {
		return output.Print("", msgs)
	}
	for _, m := range msgs {
		s.printMessage(m, markup)
	}
	return nil
}

// Send posts text to a conversation
func (s *ChatService) Send(ctx context.Context, conversationID, text string) error {
	msg, err := s.session.Send(ctx, conversationID, text)
	if err != nil {
		return err
	}
	output.PrintSuccess("Message %s sent", msg.ID)
	return nil
}

// Delete removes one of the user's messages
func (s *ChatService) Delete(ctx context.Context, conversationID, messageID string) error {
	err := s.session.Delete(ctx, api.Message{ID: messageID, ConversationID: conversationID})
	if err != nil {
		return err
	}
	output.PrintSuccess("Message %s deleted", messageID)
	return nil
}

// MarkRead clears a conversation's unread count
func (s *ChatService) MarkRead(ctx context.Context, conversationID string) error {
	if err := s.session.MarkRead(ctx, conversationID); err != nil {
		return err
	}
	output.PrintSuccess("Conversation %s marked read", conversationID)
	return nil
}

// open loads the list when needed, since a conversation can only be opened
// once it is known.
func (s *ChatService) open(ctx context.Context, conversationID string) error {
	if !s.session.Store().Has(conversationID) {
		if err := s.session.LoadConversations(ctx); err != nil {
			return err
		}
	}
	return s.session.Open(ctx, conversationID)
}

func (s *ChatService) printInbox() error {
	convs := s.session.Store().Conversations()
	if output.GetOutputFormat() == output.FormatJSON {
		return output.Print("", convs)
	}
	if len(convs) == 0 {
		output.PrintInfo(noConversation)
		return nil
	}

	rows := make([][]string, 0, len(convs))
	for _, c := range convs {
		unread := ""
		if c.UnreadCount > 0 {
			unread = strconv.Itoa(c.UnreadCount)
		}
		rows = append(rows, []string{c.ID, s.peerName(c), unread, preview(c.LastMessage), c.UpdatedAt.Local().Format(timeLayout)})
	}
	if err := output.PrintTable([]string{"ID", "WITH", "UNREAD", "LAST MESSAGE", "UPDATED"}, rows, convs); err != nil {
		return err
	}
	if total := s.session.TotalUnread(); total > 0 {
		output.PrintInfo("%d unread", total)
	}
	return nil
}

func (s *ChatService) printMessage(m api.Message, markup bool) {
	content := m.Content
	if markup {
		content = s.renderer.Render(m.Content, render.Options{PreserveLineBreaks: true})
	}
	author := m.Sender.Name()
	if m.Sender.ID == s.creds.UserID {
		author = "you"
	}
	edited := ""
	if m.Edited {
		edited = " (edited)"
	}
	output.Printf("[%s] %s %s: %s%s\n", m.CreatedAt.Local().Format(timeLayout), m.ID, author, content, edited)
}

func (s *ChatService) peerName(c api.Conversation) string {
	if other, ok := c.Other(s.creds.UserID); ok {
		return other.Name()
	}
	return "(nobody)"
}

func preview(m *api.Message) string {
	if m == nil {
		return ""
	}
	text := strings.Join(strings.Fields(m.Content), " ")
	if r := []rune(text); len(r) > previewLength {
		text = string(r[:previewLength-1]) + "…"
	}
	return fmt.Sprintf("%s: %s", m.Sender.Name(), text)
}
