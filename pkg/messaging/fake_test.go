package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zfogg/sidechain/chat/pkg/api"
)

type typingCall struct {
	conversationID string
	isTyping       bool
}

// fakeAPI records calls and serves canned responses. Hooks, when set, replace
// the default behavior of a method.
type fakeAPI struct {
	mu sync.Mutex

	conversations []api.Conversation
	pages         map[string][]api.MessagePage
	nextID        int

	listCalls   int
	sendCalls   int
	deleteCalls int
	readCalls   []string
	typingCalls []typingCall

	listErr     error
	messagesErr error
	sendErr     error
	deleteErr error

	// deleteGate, when set, blocks DeleteMessage until it is closed.
	deleteGate chan struct{}
	// messagesGate blocks ListMessages for a conversation until closed.
	messagesGate map[string]chan struct{}
	// messagesStarted is signalled when a gated ListMessages begins.
	messagesStarted chan string

	deleteResult *api.DeleteResult
}

func newFakeAPI(convs ...api.Conversation) *fakeAPI {
	return &fakeAPI{
		conversations: convs,
		pages:         make(map[string][]api.MessagePage),
		messagesGate:  make(map[string]chan struct{}),
	}
}

func (f *fakeAPI) ListConversations(ctx context.Context) ([]api.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]api.Conversation, len(f.conversations))
	copy(out, f.conversations)
	return out, nil
}

func (f *fakeAPI) StartConversation(ctx context.Context, participantID string) (*api.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv := api.Conversation{
		ID:           "conv-" + participantID,
		Participants: []api.UserSummary{{ID: participantID, Username: participantID}},
		UpdatedAt:    at(1),
	}
	f.conversations = append(f.conversations, conv)
	return &conv, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, conversationID string, page, limit int) (*api.MessagePage, error) {
	f.mu.Lock()
	gate := f.messagesGate[conversationID]
	started := f.messagesStarted
	f.mu.Unlock()

	if gate != nil {
		if started != nil {
			started <- conversationID
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	pages := f.pages[conversationID]
	if page-1 < len(pages) {
		p := pages[page-1]
		return &p, nil
	}
	return &api.MessagePage{Pagination: api.Pagination{Page: page, Limit: limit}}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, conversationID, content string) (*api.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	return &api.Message{
		ID:             fmt.Sprintf("sent-%d", f.nextID),
		ConversationID: conversationID,
		Content:        content,
		Sender:         api.UserSummary{ID: "me", Username: "me"},
		CreatedAt:      at(100 + f.nextID),
	}, nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, conversationID, messageID string) (*api.DeleteResult, error) {
	f.mu.Lock()
	f.deleteCalls++
	gate := f.deleteGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	if f.deleteResult != nil {
		return f.deleteResult, nil
	}
	return &api.DeleteResult{}, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls = append(f.readCalls, conversationID)
	return nil
}

func (f *fakeAPI) SetTyping(ctx context.Context, conversationID string, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingCalls = append(f.typingCalls, typingCall{conversationID, isTyping})
	return nil
}

func (f *fakeAPI) counts() (list, send, del int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.sendCalls, f.deleteCalls
}

func (f *fakeAPI) typing() []typingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]typingCall(nil), f.typingCalls...)
}

// statusError is an API failure carrying an HTTP status
type statusError int

func (e statusError) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusError) HTTPStatus() int { return int(e) }

var epoch = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// at returns a timestamp n seconds after a fixed epoch
func at(n int) time.Time {
	return epoch.Add(time.Duration(n) * time.Second)
}

func conv(id string, updated int, unread int) api.Conversation {
	return api.Conversation{
		ID:           id,
		Participants: []api.UserSummary{{ID: "peer-" + id, Username: "peer-" + id}},
		UnreadCount:  unread,
		UpdatedAt:    at(updated),
	}
}

func msg(id, conversationID, sender string, created int) api.Message {
	return api.Message{
		ID:             id,
		ConversationID: conversationID,
		Content:        "message " + id,
		Sender:         api.UserSummary{ID: sender, Username: sender},
		CreatedAt:      at(created),
	}
}
