package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zfogg/sidechain/chat/pkg/events"
)

func TestSnapshotReplaces(t *testing.T) {
	tr := NewTracker()

	tr.Snapshot([]string{"u1", "u2"})
	tr.Snapshot([]string{"u3", "", "u2"})

	assert.Equal(t, []string{"u2", "u3"}, tr.Online())
	assert.False(t, tr.IsOnline("u1"))
	assert.Equal(t, 2, tr.Count())
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name    string
		initial []string
		userID  string
		status  string
		changed bool
		want    []string
	}{
		{"online adds", nil, "u1", "online", true, []string{"u1"}},
		{"online twice", []string{"u1"}, "u1", "online", false, []string{"u1"}},
		{"offline removes", []string{"u1", "u2"}, "u1", "offline", true, []string{"u2"}},
		{"unknown status removes", []string{"u1"}, "u1", "in_studio", true, []string{}},
		{"offline for absent user", []string{"u2"}, "u1", "offline", false, []string{"u2"}},
		{"empty id ignored", nil, "", "online", false, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			tr.Snapshot(tt.initial)

			assert.Equal(t, tt.changed, tr.Update(tt.userID, tt.status))
			assert.Equal(t, tt.want, tr.Online())
		})
	}
}

func TestHandleEvents(t *testing.T) {
	tr := NewTracker()

	tr.Handle(events.PresenceSnapshot{UserIDs: []string{"u1"}})
	tr.Handle(events.PresenceChanged{UserID: "u2", Status: events.StatusOnline})
	tr.Handle(events.TypingChanged{ConversationID: "c1", UserID: "u3", IsTyping: true})

	assert.Equal(t, []string{"u1", "u2"}, tr.Online())
}

func TestOnChange(t *testing.T) {
	tr := NewTracker()

	var calls [][]string
	tr.OnChange(func(online []string) { calls = append(calls, online) })

	tr.Update("u1", "online")
	tr.Update("u1", "online")
	tr.Update("u1", "offline")

	assert.Equal(t, [][]string{{"u1"}, {}}, calls)
}

func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.Snapshot([]string{"u1"})
	tr.Reset()
	assert.Empty(t, tr.Online())
}
