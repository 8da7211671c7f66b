package messaging

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/zfogg/sidechain/chat/pkg/api"
	"github.com/zfogg/sidechain/chat/pkg/events"
)

// Store owns the session's conversations and the active conversation's
// loaded messages. Conversations are kept sorted by UpdatedAt descending and
// loaded messages by CreatedAt ascending with unique ids. Store does no I/O.
//
// Values returned by Store are copies; the Participants and LastMessage they
// reference must be treated as read-only.
type Store struct {
	clock clock.Clock

	mu            sync.RWMutex
	conversations []api.Conversation
	activeID      string
	messages      []api.Message
	page          api.Pagination
	deleting      map[string]struct{}
}

// NewStore creates an empty store; clk stamps local deletions.
func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		clock:    clk,
		deleting: make(map[string]struct{}),
	}
}

// Replace swaps in a freshly fetched conversation list. The active
// conversation is kept if it is still present.
func (s *Store) Replace(convs []api.Conversation) {
	next := make([]api.Conversation, len(convs))
	copy(next, convs)
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].UpdatedAt.After(next[j].UpdatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = next
	if s.activeID != "" && s.indexLocked(s.activeID) < 0 {
		s.clearActiveLocked()
	}
}

// Upsert inserts or refreshes a conversation and moves it to the front.
func (s *Store) Upsert(conv api.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(conv.ID)
	if idx < 0 {
		s.conversations = append(s.conversations, conv)
		idx = len(s.conversations) - 1
	} else {
		s.conversations[idx] = conv
	}
	s.touchLocked(idx, conv.UpdatedAt)
}

// Conversations returns the conversation list, most recent first
func (s *Store) Conversations() []api.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Conversation returns one conversation by id
func (s *Store) Conversation(id string) (api.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return api.Conversation{}, false
	}
	return s.conversations[idx], true
}

// Has reports whether id is in the conversation list
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(id) >= 0
}

// Activate makes id the active conversation, dropping the previous
// conversation's messages. It returns false if id is not loaded.
func (s *Store) Activate(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) < 0 {
		return false
	}
	if s.activeID != id {
		s.clearActiveLocked()
		s.activeID = id
	}
	return true
}

// ActiveView is the active conversation together with its loaded messages,
// as captured by Snapshot.
type ActiveView struct {
	ID       string
	messages []api.Message
	page     api.Pagination
}

// Snapshot captures the active conversation so it can be restored.
func (s *Store) Snapshot() ActiveView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := ActiveView{ID: s.activeID, page: s.page}
	v.messages = make([]api.Message, len(s.messages))
	copy(v.messages, s.messages)
	return v
}

// Restore puts v back as the active conversation, provided current is still
// active. A view whose conversation has since left the list clears the
// active conversation instead.
func (s *Store) Restore(current string, v ActiveView) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != current {
		return false
	}
	if v.ID == "" || s.indexLocked(v.ID) < 0 {
		s.clearActiveLocked()
		return true
	}
	s.activeID = v.ID
	s.messages = v.messages
	s.page = v.page
	return true
}

// Active returns the active conversation id, or "" when none
func (s *Store) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Messages returns the active conversation's loaded messages, oldest first
func (s *Store) Messages() []api.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ApplyPage merges a fetched page into the loaded messages. replace drops
// what was loaded before. The page is discarded, and false returned, when
// conversationID is no longer the active conversation.
func (s *Store) ApplyPage(conversationID string, page *api.MessagePage, replace bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != conversationID {
		return false
	}
	base := s.messages
	if replace {
		base = nil
	}
	s.messages = mergeMessages(base, page.Messages)
	s.page = page.Pagination
	return true
}

// NextPage returns the page to request for older messages of the active
// conversation, if the server reported more.
func (s *Store) NextPage() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == "" || !s.page.HasNextPage {
		return 0, false
	}
	return s.page.Page + 1, true
}

// MarkReadLocal zeroes the unread count of one conversation
func (s *Store) MarkReadLocal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(id); idx >= 0 {
		s.conversations[idx].UnreadCount = 0
	}
}

// ApplySent records a message the local user sent: id-guarded append when
// its conversation is active, then move to front with unread forced to 0.
func (s *Store) ApplySent(msg api.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID == msg.ConversationID {
		s.messages = mergeMessages(s.messages, []api.Message{msg})
	}

	idx := s.indexLocked(msg.ConversationID)
	if idx < 0 {
		return
	}
	conv := &s.conversations[idx]
	conv.UnreadCount = 0
	setLastMessage(conv, msg)
	s.touchLocked(idx, msg.CreatedAt)
}

// ApplyIncoming reconciles a message:new or message:sent event. It returns
// false when the conversation is not loaded; the caller must refetch the list.
func (s *Store) ApplyIncoming(ev events.MessageReceived, selfID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(ev.ConversationID)
	if idx < 0 {
		return false
	}
	active := s.activeID == ev.ConversationID
	conv := &s.conversations[idx]

	switch {
	case ev.Echo && ev.Message.Sender.ID == selfID:
		conv.UnreadCount = 0
	case active:
		conv.UnreadCount = 0
	case ev.UnreadMessages != nil:
		conv.UnreadCount = max(*ev.UnreadMessages, 0)
	default:
		// Best effort: drifts from the server under reordered delivery.
		conv.UnreadCount++
	}

	if active {
		s.messages = mergeMessages(s.messages, []api.Message{ev.Message})
	}

	setLastMessage(conv, ev.Message)
	s.touchLocked(idx, ev.Message.CreatedAt)
	return true
}

// ApplyDeletion reconciles a message:deleted event: the message leaves the
// loaded list if present and the conversation takes the supplied last message.
func (s *Store) ApplyDeletion(conversationID, messageID string, last *api.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(conversationID, messageID)
	if idx := s.indexLocked(conversationID); idx >= 0 {
		s.conversations[idx].LastMessage = cloneMessage(last)
	}
}

// ConfirmDeletion applies the server's answer to a local delete and bumps
// the conversation to the front.
func (s *Store) ConfirmDeletion(conversationID, messageID string, last *api.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(conversationID, messageID)
	if idx := s.indexLocked(conversationID); idx >= 0 {
		s.conversations[idx].LastMessage = cloneMessage(last)
		s.touchLocked(idx, s.clock.Now())
	}
}

// DropMessage removes a message the server no longer has. Without an
// authoritative replacement, the last message falls back to the newest
// loaded message when it pointed at the dropped one.
func (s *Store) DropMessage(conversationID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(conversationID, messageID)

	idx := s.indexLocked(conversationID)
	if idx < 0 {
		return
	}
	conv := &s.conversations[idx]
	if conv.LastMessage == nil || conv.LastMessage.ID != messageID {
		return
	}
	conv.LastMessage = nil
	if s.activeID == conversationID && len(s.messages) > 0 {
		conv.LastMessage = cloneMessage(&s.messages[len(s.messages)-1])
	}
}

// BeginDelete marks a message id as being deleted. It returns false if a
// deletion for the id is already in flight.
func (s *Store) BeginDelete(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deleting[messageID]; ok {
		return false
	}
	s.deleting[messageID] = struct{}{}
	return true
}

// EndDelete clears the in-flight mark set by BeginDelete
func (s *Store) EndDelete(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleting, messageID)
}

// TotalUnread sums unread counts across all conversations
func (s *Store) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, c := range s.conversations {
		total += c.UnreadCount
	}
	return total
}

// Reset forgets everything, as on logout
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = nil
	s.clearActiveLocked()
	s.deleting = make(map[string]struct{})
}

func (s *Store) clearActiveLocked() {
	s.activeID = ""
	s.messages = nil
	s.page = api.Pagination{}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// touchLocked moves conversations[idx] to the front. Its UpdatedAt becomes
// the latest of ts, its own and the current head's, so the list stays sorted.
func (s *Store) touchLocked(idx int, ts time.Time) {
	conv := s.conversations[idx]
	if conv.UpdatedAt.After(ts) {
		ts = conv.UpdatedAt
	}
	if idx > 0 && s.conversations[0].UpdatedAt.After(ts) {
		ts = s.conversations[0].UpdatedAt
	}
	conv.UpdatedAt = ts

	copy(s.conversations[1:idx+1], s.conversations[:idx])
	s.conversations[0] = conv
}

func (s *Store) removeLocked(conversationID, messageID string) {
	if s.activeID != conversationID {
		return
	}
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
			return
		}
	}
}

// setLastMessage keeps the newer of the current and incoming last message.
func setLastMessage(conv *api.Conversation, msg api.Message) {
	if conv.LastMessage != nil && conv.LastMessage.CreatedAt.After(msg.CreatedAt) {
		return
	}
	conv.LastMessage = cloneMessage(&msg)
}

func cloneMessage(m *api.Message) *api.Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// mergeMessages returns base plus every incoming message whose id is not
// already present, sorted by CreatedAt then id.
func mergeMessages(base, incoming []api.Message) []api.Message {
	seen := make(map[string]struct{}, len(base)+len(incoming))
	out := make([]api.Message, 0, len(base)+len(incoming))
	for _, m := range base {
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	for _, m := range incoming {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
