package typing

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/zfogg/sidechain/chat/pkg/logger"
	"github.com/zfogg/sidechain/chat/pkg/metrics"
)

// DefaultExpiry clears a remote typing indicator whose stop event never arrived.
const DefaultExpiry = 5 * time.Second

// ChangeFunc is notified with the users typing in a conversation after every change.
type ChangeFunc func(conversationID string, userIDs []string)

// Tracker holds which remote users are typing in each conversation. Every
// tracked user has a pending expiry timer; empty conversations are dropped.
type Tracker struct {
	selfID string
	expiry time.Duration
	sched  *Scheduler

	mu       sync.Mutex
	typing   map[string]map[string]struct{}
	onChange ChangeFunc
	closed   bool
}

// NewTracker creates a tracker that ignores events from selfID
func NewTracker(selfID string, clk clock.Clock, expiry time.Duration) *Tracker {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Tracker{
		selfID: selfID,
		expiry: expiry,
		sched:  NewScheduler(clk),
		typing: make(map[string]map[string]struct{}),
	}
}

// OnChange registers fn to be called, outside the tracker's lock, whenever a
// conversation's typing set changes.
func (t *Tracker) OnChange(fn ChangeFunc) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// OnRemote applies a typing event. It reports whether the typing set changed.
func (t *Tracker) OnRemote(conversationID, userID string, isTyping bool) bool {
	if userID == t.selfID {
		return false
	}

	key := Key{ConversationID: conversationID, UserID: userID}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	var changed bool
	if isTyping {
		changed = t.add(key)
		t.sched.Schedule(key, t.expiry, t.expire)
	} else {
		t.sched.Cancel(key)
		changed = t.remove(key)
	}
	users, notify := t.snapshotLocked(conversationID, changed)
	t.mu.Unlock()

	if notify != nil {
		notify(conversationID, users)
	}
	return changed
}

// Clear removes a user's indicator because a real message from them arrived.
func (t *Tracker) Clear(conversationID, userID string) bool {
	key := Key{ConversationID: conversationID, UserID: userID}

	t.mu.Lock()
	t.sched.Cancel(key)
	changed := t.remove(key)
	users, notify := t.snapshotLocked(conversationID, changed)
	t.mu.Unlock()

	if notify != nil {
		notify(conversationID, users)
	}
	return changed
}

func (t *Tracker) expire(ticket Ticket) {
	t.mu.Lock()
	if !t.sched.Claim(ticket) {
		t.mu.Unlock()
		return
	}
	changed := t.remove(ticket.Key)
	users, notify := t.snapshotLocked(ticket.Key.ConversationID, changed)
	t.mu.Unlock()

	if changed {
		metrics.Get().TypingExpiries.Inc()
		logger.Debug("Typing indicator expired", "conversation_id", ticket.Key.ConversationID, "user_id", ticket.Key.UserID)
	}
	if notify != nil {
		notify(ticket.Key.ConversationID, users)
	}
}

func (t *Tracker) add(key Key) bool {
	users, ok := t.typing[key.ConversationID]
	if !ok {
		users = make(map[string]struct{})
		t.typing[key.ConversationID] = users
	}
	if _, ok := users[key.UserID]; ok {
		return false
	}
	users[key.UserID] = struct{}{}
	return true
}

func (t *Tracker) remove(key Key) bool {
	users, ok := t.typing[key.ConversationID]
	if !ok {
		return false
	}
	if _, ok := users[key.UserID]; !ok {
		return false
	}
	delete(users, key.UserID)
	if len(users) == 0 {
		delete(t.typing, key.ConversationID)
	}
	return true
}

func (t *Tracker) snapshotLocked(conversationID string, changed bool) ([]string, ChangeFunc) {
	if !changed || t.onChange == nil {
		return nil, nil
	}
	return t.usersLocked(conversationID), t.onChange
}

func (t *Tracker) usersLocked(conversationID string) []string {
	users := t.typing[conversationID]
	if len(users) == 0 {
		return nil
	}
	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Users returns the users typing in a conversation, sorted
func (t *Tracker) Users(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usersLocked(conversationID)
}

// IsTyping reports whether userID is typing in conversationID
func (t *Tracker) IsTyping(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.typing[conversationID][userID]
	return ok
}

// Conversations returns the number of conversations with someone typing
func (t *Tracker) Conversations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.typing)
}

// Reset drops every indicator and cancels their timers
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for conversationID, users := range t.typing {
		for userID := range users {
			t.sched.Cancel(Key{ConversationID: conversationID, UserID: userID})
		}
	}
	t.typing = make(map[string]map[string]struct{})
}

// Close cancels every pending expiry. The tracker ignores timers afterwards.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sched.Stop()
	t.typing = make(map[string]map[string]struct{})
	t.closed = true
}
