// Package typing tracks who is typing in which conversation and drives the
// local user's own typing signal. Both sides run their timers on a Scheduler
// so tests can advance virtual time.
package typing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Key identifies one timer: a user in a conversation.
type Key struct {
	ConversationID string
	UserID         string
}

// Ticket identifies one scheduling of a key. A ticket is superseded by any
// later Schedule or Cancel for the same key.
type Ticket struct {
	Key Key
	gen uint64
}

type entry struct {
	timer *clock.Timer
	gen   uint64
}

// Scheduler runs keyed one-shot timers with cancel-on-supersede semantics.
type Scheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	timers  map[Key]entry
	gen     uint64
	stopped bool
}

// NewScheduler returns a scheduler driven by clk; nil means the wall clock.
func NewScheduler(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock:  clk,
		timers: make(map[Key]entry),
	}
}

// Clock returns the clock the scheduler runs on
func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

// Schedule arranges for fn to run after d, replacing any pending timer for
// key. fn runs on a clock goroutine and must call Claim with its ticket before
// acting: Claim fails if the ticket was superseded while fn was being started.
func (s *Scheduler) Schedule(key Key, d time.Duration, fn func(Ticket)) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[key]; ok {
		old.timer.Stop()
		delete(s.timers, key)
	}

	s.gen++
	ticket := Ticket{Key: key, gen: s.gen}
	if s.stopped {
		return ticket
	}

	timer := s.clock.AfterFunc(d, func() {
		if s.current(ticket) {
			fn(ticket)
		}
	})
	s.timers[key] = entry{timer: timer, gen: ticket.gen}
	return ticket
}

func (s *Scheduler) current(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[t.Key]
	return ok && e.gen == t.gen
}

// Claim consumes the ticket's timer. It reports false if the ticket was
// superseded or cancelled, in which case the caller must do nothing.
func (s *Scheduler) Claim(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[t.Key]
	if !ok || e.gen != t.gen {
		return false
	}
	delete(s.timers, t.Key)
	return true
}

// Cancel stops the pending timer for key. It reports whether one was pending.
func (s *Scheduler) Cancel(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.timers, key)
	return true
}

// Pending reports whether a timer is pending for key
func (s *Scheduler) Pending(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Len returns the number of pending timers
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer. Later calls to Schedule are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, key)
	}
	s.stopped = true
}
