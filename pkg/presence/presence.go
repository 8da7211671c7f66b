// Package presence tracks which users are online for the current session.
package presence

import (
	"sort"
	"sync"

	"github.com/zfogg/sidechain/chat/pkg/events"
)

// ChangeFunc is called after the online set changes
type ChangeFunc func(online []string)

// Tracker holds the set of online user ids. A snapshot replaces the set; an
// update adds the user when the status is "online" and removes it otherwise.
type Tracker struct {
	mu       sync.RWMutex
	online   map[string]struct{}
	onChange ChangeFunc
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{online: make(map[string]struct{})}
}

// OnChange registers fn to be called outside the tracker's lock
func (t *Tracker) OnChange(fn ChangeFunc) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Snapshot replaces the online set wholesale
func (t *Tracker) Snapshot(userIDs []string) {
	online := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			online[id] = struct{}{}
		}
	}

	t.mu.Lock()
	t.online = online
	ids, notify := t.notifyLocked(true)
	t.mu.Unlock()

	if notify != nil {
		notify(ids)
	}
}

// Update applies one user's status. It reports whether the set changed.
func (t *Tracker) Update(userID, status string) bool {
	if userID == "" {
		return false
	}

	t.mu.Lock()
	_, was := t.online[userID]
	changed := false
	if status == events.StatusOnline {
		if !was {
			t.online[userID] = struct{}{}
			changed = true
		}
	} else if was {
		delete(t.online, userID)
		changed = true
	}
	ids, notify := t.notifyLocked(changed)
	t.mu.Unlock()

	if notify != nil {
		notify(ids)
	}
	return changed
}

// Handle applies presence events and ignores everything else
func (t *Tracker) Handle(ev events.Event) {
	switch e := ev.(type) {
	case events.PresenceSnapshot:
		t.Snapshot(e.UserIDs)
	case events.PresenceChanged:
		t.Update(e.UserID, e.Status)
	}
}

// IsOnline reports whether userID is online
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// Online returns the online user ids, sorted
func (t *Tracker) Online() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sortedLocked()
}

// Count returns the number of online users
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.online)
}

// Reset empties the set, as on logout or transport teardown
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.online = make(map[string]struct{})
	t.mu.Unlock()
}

func (t *Tracker) notifyLocked(changed bool) ([]string, ChangeFunc) {
	if !changed || t.onChange == nil {
		return nil, nil
	}
	return t.sortedLocked(), t.onChange
}

func (t *Tracker) sortedLocked() []string {
	ids := make([]string, 0, len(t.online))
	for id := range t.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
