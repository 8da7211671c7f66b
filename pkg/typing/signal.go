package typing

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/zfogg/sidechain/chat/pkg/logger"
)

// DefaultIdle stops the local typing signal after this long without a keystroke.
const DefaultIdle = 3 * time.Second

// stopTimeout bounds the stop push sent when the idle timer fires.
const stopTimeout = 10 * time.Second

var idleKey = Key{UserID: "self"}

// Pusher sends the local user's typing state to the server.
type Pusher interface {
	SetTyping(ctx context.Context, conversationID string, isTyping bool) error
}

// Signal is the local user's own typing state. A burst of keystrokes sends one
// start; the burst ends on Stop, on Leave, or after the idle timeout.
type Signal struct {
	pusher Pusher
	idle   time.Duration
	sched  *Scheduler

	mu             sync.Mutex
	active         bool
	conversationID string
}

// NewSignal creates an inactive signal
func NewSignal(p Pusher, clk clock.Clock, idle time.Duration) *Signal {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Signal{
		pusher: p,
		idle:   idle,
		sched:  NewScheduler(clk),
	}
}

// Keystroke records typing in conversationID. The first keystroke of a burst
// pushes a start; later ones only push back the idle timeout. Typing in a
// different conversation ends the previous burst first.
func (s *Signal) Keystroke(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if s.active && s.conversationID == conversationID {
		s.sched.Schedule(idleKey, s.idle, s.onIdle)
		s.mu.Unlock()
		return nil
	}

	previous := ""
	if s.active {
		previous = s.conversationID
	}
	s.active = true
	s.conversationID = conversationID
	s.sched.Schedule(idleKey, s.idle, s.onIdle)
	s.mu.Unlock()

	if previous != "" {
		s.pushStop(ctx, previous)
	}

	if err := s.pusher.SetTyping(ctx, conversationID, true); err != nil {
		logger.Warn("Failed to send typing start", "conversation_id", conversationID, "error", err)
		return err
	}
	return nil
}

// Stop ends the current burst, if any. Push failures are logged, not returned.
func (s *Signal) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	conversationID := s.conversationID
	s.clearLocked()
	s.mu.Unlock()

	s.pushStop(ctx, conversationID)
}

// Leave ends the burst only if it belongs to conversationID.
func (s *Signal) Leave(ctx context.Context, conversationID string) {
	s.mu.Lock()
	if !s.active || s.conversationID != conversationID {
		s.mu.Unlock()
		return
	}
	s.clearLocked()
	s.mu.Unlock()

	s.pushStop(ctx, conversationID)
}

// Active returns the conversation the user is typing in
func (s *Signal) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID, s.active
}

// Close cancels the idle timer without pushing a stop
func (s *Signal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sched.Stop()
	s.active = false
	s.conversationID = ""
}

func (s *Signal) clearLocked() {
	s.sched.Cancel(idleKey)
	s.active = false
	s.conversationID = ""
}

func (s *Signal) onIdle(ticket Ticket) {
	s.mu.Lock()
	if !s.sched.Claim(ticket) || !s.active {
		s.mu.Unlock()
		return
	}
	conversationID := s.conversationID
	s.active = false
	s.conversationID = ""
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.pushStop(ctx, conversationID)
}

func (s *Signal) pushStop(ctx context.Context, conversationID string) {
	if err := s.pusher.SetTyping(ctx, conversationID, false); err != nil {
		logger.Debug("Failed to send typing stop", "conversation_id", conversationID, "error", err)
	}
}
