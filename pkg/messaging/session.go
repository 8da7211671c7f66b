// Package messaging is the client-side conversation core: a Store holding
// conversations and the active conversation's messages, and a Session that
// drives it from user actions and real-time events.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/zfogg/sidechain/chat/pkg/api"
	cerrors "github.com/zfogg/sidechain/chat/pkg/errors"
	"github.com/zfogg/sidechain/chat/pkg/events"
	"github.com/zfogg/sidechain/chat/pkg/logger"
	"github.com/zfogg/sidechain/chat/pkg/metrics"
	"github.com/zfogg/sidechain/chat/pkg/presence"
	"github.com/zfogg/sidechain/chat/pkg/typing"
)

const (
	DefaultPageSize         = 50
	DefaultMaxMessageLength = 1000
	refetchTimeout          = 30 * time.Second
)

var (
	// ErrConversationNotLoaded means the conversation is not in the current
	// list; refresh the list before opening it.
	ErrConversationNotLoaded = errors.New("conversation not loaded")
	// ErrNoActiveConversation is returned by operations on the open conversation.
	ErrNoActiveConversation = errors.New("no active conversation")
)

// API is the subset of the REST client the session consumes
type API interface {
	ListConversations(ctx context.Context) ([]api.Conversation, error)
	StartConversation(ctx context.Context, participantID string) (*api.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, page, limit int) (*api.MessagePage, error)
	SendMessage(ctx context.Context, conversationID, content string) (*api.Message, error)
	DeleteMessage(ctx context.Context, conversationID, messageID string) (*api.DeleteResult, error)
	MarkRead(ctx context.Context, conversationID string) error
	SetTyping(ctx context.Context, conversationID string, isTyping bool) error
}

// Options configure a Session
type Options struct {
	SelfID           string
	API              API
	Clock            clock.Clock
	PageSize         int
	MaxMessageLength int
	TypingIdle       time.Duration
	TypingExpiry     time.Duration
}

// Session applies user actions and inbound events to a Store. Network calls
// run on the caller's goroutine and never under a lock; event handling never
// touches the network except for the coalesced background refetch of the
// conversation list.
type Session struct {
	opts     Options
	store    *Store
	typing   *typing.Tracker
	signal   *typing.Signal
	presence *presence.Tracker

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	closed      bool
	wg          sync.WaitGroup
	unsubscribe []func()

	refetching atomic.Bool
}

// NewSession creates a session for the user opts.SelfID
func NewSession(opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		opts:     opts,
		store:    NewStore(opts.Clock),
		typing:   typing.NewTracker(opts.SelfID, opts.Clock, opts.TypingExpiry),
		signal:   typing.NewSignal(opts.API, opts.Clock, opts.TypingIdle),
		presence: presence.NewTracker(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Store returns the session's conversation store
func (s *Session) Store() *Store { return s.store }

// Typists returns the tracker of remote users currently typing
func (s *Session) Typists() *typing.Tracker { return s.typing }

// Presence returns the presence tracker
func (s *Session) Presence() *presence.Tracker { return s.presence }

// SelfID returns the local user's id
func (s *Session) SelfID() string { return s.opts.SelfID }

// Attach subscribes the session to bus
func (s *Session) Attach(bus *events.Bus) {
	unsubscribe := bus.Subscribe(s.Handle)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		unsubscribe()
		return
	}
	s.unsubscribe = append(s.unsubscribe, unsubscribe)
}

// LoadConversations replaces the conversation list with the server's. On
// failure the current list is left untouched.
func (s *Session) LoadConversations(ctx context.Context) error {
	convs, err := s.opts.API.ListConversations(ctx)
	if err != nil {
		return classify(err)
	}
	s.store.Replace(convs)
	s.recordUnread()
	logger.Debug("Conversations loaded", "count", len(convs))
	return nil
}

// StartConversation opens or creates the conversation with participantID
// and moves it to the front of the list.
func (s *Session) StartConversation(ctx context.Context, participantID string) (*api.Conversation, error) {
	if strings.TrimSpace(participantID) == "" {
		return nil, cerrors.ValidationError("participant", "participant id is required")
	}
	conv, err := s.opts.API.StartConversation(ctx, participantID)
	if err != nil {
		return nil, classify(err)
	}
	s.store.Upsert(*conv)
	return conv, nil
}

// Open makes id the active conversation, loads its newest page and marks it
// read. A typing signal active in another conversation is stopped first.
// The page is discarded if a different conversation was opened meanwhile.
func (s *Session) Open(ctx context.Context, id string) error {
	if !s.store.Has(id) {
		return fmt.Errorf("%w: %s", ErrConversationNotLoaded, id)
	}

	if typingIn, ok := s.signal.Active(); ok && typingIn != id {
		s.signal.Leave(ctx, typingIn)
	}
	log := logger.With("conversation_id", id)
	previous := s.store.Snapshot()
	s.store.Activate(id)

	page, err := s.opts.API.ListMessages(ctx, id, 1, s.opts.PageSize)
	if err != nil {
		if s.store.Restore(id, previous) {
			log.Debug("Open failed, previous conversation restored", "restored", previous.ID, "error", err)
		}
		return classify(err)
	}
	if !s.store.ApplyPage(id, page, true) {
		metrics.Get().StaleFetchesDiscarded.Inc()
		log.Debug("Discarding stale message page", "active", s.store.Active())
		return nil
	}

	return s.MarkRead(ctx, id)
}

// LoadOlder fetches the next page of the active conversation and merges it.
// It returns the number of messages added.
func (s *Session) LoadOlder(ctx context.Context) (int, error) {
	id := s.store.Active()
	if id == "" {
		return 0, ErrNoActiveConversation
	}
	next, ok := s.store.NextPage()
	if !ok {
		return 0, nil
	}

	page, err := s.opts.API.ListMessages(ctx, id, next, s.opts.PageSize)
	if err != nil {
		return 0, classify(err)
	}

	before := len(s.store.Messages())
	if !s.store.ApplyPage(id, page, false) {
		metrics.Get().StaleFetchesDiscarded.Inc()
		return 0, nil
	}
	return len(s.store.Messages()) - before, nil
}

// MarkRead resets the unread counter of one conversation on the server and
// then locally.
func (s *Session) MarkRead(ctx context.Context, id string) error {
	if err := s.opts.API.MarkRead(ctx, id); err != nil {
		return classify(err)
	}
	s.store.MarkReadLocal(id)
	s.recordUnread()
	return nil
}

// Send validates and posts text to a conversation as typed. Invalid text is
// rejected without a network call; a failed send leaves the store untouched.
// Surrounding whitespace counts toward the length limit.
func (s *Session) Send(ctx context.Context, conversationID, text string) (*api.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, cerrors.ValidationError("content", "message cannot be empty")
	}
	if n := utf8.RuneCountInString(text); n > s.opts.MaxMessageLength {
		return nil, cerrors.ValidationError("content",
			fmt.Sprintf("message is %d characters, the limit is %d", n, s.opts.MaxMessageLength))
	}

	msg, err := s.opts.API.SendMessage(ctx, conversationID, text)
	if err != nil {
		return nil, classify(err)
	}

	s.store.ApplySent(*msg)
	s.signal.Stop(ctx)
	return msg, nil
}

// Delete removes one of the user's messages. A second Delete for the same
// message while the first is in flight returns nil without a network call.
// A message the server no longer has is dropped locally without error.
func (s *Session) Delete(ctx context.Context, msg api.Message) error {
	log := logger.With("conversation_id", msg.ConversationID, "message_id", msg.ID)
	if !s.store.BeginDelete(msg.ID) {
		log.Debug("Delete already in flight")
		return nil
	}
	defer s.store.EndDelete(msg.ID)

	res, err := s.opts.API.DeleteMessage(ctx, msg.ConversationID, msg.ID)
	if err != nil {
		if cerrors.IsNotFound(err) {
			log.Debug("Message already deleted")
			s.store.DropMessage(msg.ConversationID, msg.ID)
			return nil
		}
		return classify(err)
	}

	s.store.ConfirmDeletion(msg.ConversationID, msg.ID, res.LastMessage)
	return nil
}

// Typing records a keystroke in the active conversation. Push failures are
// logged and swallowed.
func (s *Session) Typing(ctx context.Context) {
	id := s.store.Active()
	if id == "" {
		return
	}
	_ = s.signal.Keystroke(ctx, id)
}

// StopTyping ends the local typing signal, as on blur
func (s *Session) StopTyping(ctx context.Context) {
	s.signal.Stop(ctx)
}

// TotalUnread sums unread counts across conversations
func (s *Session) TotalUnread() int {
	return s.store.TotalUnread()
}

// Resync reloads the conversation list and the active conversation's newest
// page, as after a transport reconnect when events may have been missed.
func (s *Session) Resync(ctx context.Context) error {
	if err := s.LoadConversations(ctx); err != nil {
		return err
	}
	id := s.store.Active()
	if id == "" {
		return nil
	}
	page, err := s.opts.API.ListMessages(ctx, id, 1, s.opts.PageSize)
	if err != nil {
		return classify(err)
	}
	s.store.ApplyPage(id, page, false)
	return nil
}

// Handle applies one real-time event. It never blocks on the network.
func (s *Session) Handle(ev events.Event) {
	switch e := ev.(type) {
	case events.MessageReceived:
		known := s.store.ApplyIncoming(e, s.opts.SelfID)
		s.typing.Clear(e.ConversationID, e.Message.Sender.ID)
		if !known {
			s.refetchConversations()
		}
		s.recordUnread()

	case events.MessageDeleted:
		s.store.ApplyDeletion(e.ConversationID, e.MessageID, e.LastMessage)

	case events.TypingChanged:
		s.typing.OnRemote(e.ConversationID, e.UserID, e.IsTyping)

	case events.PresenceSnapshot, events.PresenceChanged:
		s.presence.Handle(ev)
	}
}

// refetchConversations reloads the list in the background. Concurrent
// requests while one is running are coalesced into it.
func (s *Session) refetchConversations() {
	if !s.refetching.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.refetching.Store(false)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.Get().ConversationRefetches.Inc()
	go func() {
		defer s.wg.Done()
		defer s.refetching.Store(false)

		ctx, cancel := context.WithTimeout(s.ctx, refetchTimeout)
		defer cancel()
		if err := s.LoadConversations(ctx); err != nil {
			logger.Warn("Conversation refetch failed", "error", err)
		}
	}()
}

// Wait blocks until background refetches have finished
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close detaches from every bus, cancels background work and every timer.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	s.cancel()
	s.wg.Wait()

	s.signal.Close()
	s.typing.Close()
	s.presence.Reset()
}

func (s *Session) recordUnread() {
	metrics.Get().UnreadMessages.Set(float64(s.store.TotalUnread()))
}

func classify(err error) error {
	cliErr := cerrors.CategorizeError(err)
	if cliErr == nil {
		return nil
	}
	return cliErr
}
