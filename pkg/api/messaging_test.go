package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/sidechain/chat/pkg/client"
	cerrors "github.com/zfogg/sidechain/chat/pkg/errors"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(client.New(client.Options{BaseURL: srv.URL, Timeout: 5 * time.Second}))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestListConversations(t *testing.T) {
	a := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/conversations", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"conversations":[
			{"id":"c1","participants":[{"id":"u1","username":"alice"},{"id":"u2","username":"bob","display_name":"Bob"}],
			 "last_message":{"id":"m1","conversation_id":"c1","content":"hi","sender":{"id":"u2","username":"bob"},"created_at":"2024-05-01T10:00:00Z"},
			 "unread_count":2,"updated_at":"2024-05-01T10:00:00Z"}]}`)
	})

	convs, err := a.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)

	c := convs[0]
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, 2, c.UnreadCount)
	require.NotNil(t, c.LastMessage)
	assert.Equal(t, "hi", c.LastMessage.Content)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), c.UpdatedAt.UTC())

	other, ok := c.Other("u1")
	require.True(t, ok)
	assert.Equal(t, "Bob", other.Name())
}

func TestStartConversation(t *testing.T) {
	a := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u9", body["participant_id"])
		writeJSON(w, http.StatusCreated, `{"conversation":{"id":"c9","participants":[{"id":"u9","username":"zed"}],"unread_count":0,"updated_at":"2024-05-01T10:00:00Z"}}`)
	})

	conv, err := a.StartConversation(context.Background(), "u9")
	require.NoError(t, err)
	assert.Equal(t, "c9", conv.ID)
}

func TestListMessages(t *testing.T) {
	a := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/conversations/c1/messages", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, `{"messages":[{"id":"m1","conversation_id":"c1","content":"a","sender":{"id":"u1","username":"alice"},"created_at":"2024-05-01T10:00:00Z"}],
			"pagination":{"page":2,"limit":50,"total":51,"has_next_page":false}}`)
	})

	page, err := a.ListMessages(context.Background(), "c1", 2, 50)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, 51, page.Pagination.Total)
	assert.False(t, page.Pagination.HasNextPage)
}

func TestSendMessage(t *testing.T) {
	a := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/conversations/c1/messages", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["content"])
		writeJSON(w, http.StatusCreated, `{"message":{"id":"m2","content":"hello","sender":{"id":"u1","username":"alice"},"created_at":"2024-05-01T10:01:00Z"}}`)
	})

	msg, err := a.SendMessage(context.Background(), "c1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "m2", msg.ID)
	assert.Equal(t, "c1", msg.ConversationID, "conversation id filled in when the server omits it")
}

func TestDeleteMessage(t *testing.T) {
	a := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/conversations/c1/messages/m2", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"last_message":{"id":"m1","conversation_id":"c1","content":"a","sender":{"id":"u1"},"created_at":"2024-05-01T10:00:00Z"}}`)
	})

	res, err := a.DeleteMessage(context.Background(), "c1", "m2")
	require.NoError(t, err)
	require.NotNil(t, res.LastMessage)
	assert.Equal(t, "m1", res.LastMessage.ID)
}

func TestDeleteMessageEmptyResult(t *testing.T) {
	a := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	res, err := a.DeleteMessage(context.Background(), "c1", "m1")
	require.NoError(t, err)
	assert.Nil(t, res.LastMessage)
}

func TestMarkReadAndTyping(t *testing.T) {
	var paths []string
	a := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/api/v1/conversations/c1/typing" {
			var body map[string]bool
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.True(t, body["is_typing"])
		}
		writeJSON(w, http.StatusOK, `{"success":true}`)
	})

	require.NoError(t, a.MarkRead(context.Background(), "c1"))
	require.NoError(t, a.SetTyping(context.Background(), "c1", true))
	assert.Equal(t, []string{"/api/v1/conversations/c1/read", "/api/v1/conversations/c1/typing"}, paths)
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      string
		forbidden bool
		notFound  bool
	}{
		{"structured", http.StatusForbidden, `{"code":"not_participant","message":"not a participant"}`, "not_participant", true, false},
		{"error field", http.StatusNotFound, `{"error":"message not found"}`, "request_failed", false, true},
		{"plain body", http.StatusBadGateway, `bad gateway`, "unknown_error", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := a.ListConversations(context.Background())
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.status, apiErr.HTTPStatus())
			assert.Equal(t, tt.forbidden, IsForbidden(err))
			assert.Equal(t, tt.notFound, IsNotFound(err))
			assert.Equal(t, tt.notFound, cerrors.IsNotFound(err))
		})
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	a := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `{"code":"unavailable","message":"try later"}`)
	})

	err := a.MarkRead(context.Background(), "c1")
	require.Error(t, err)
	assert.True(t, IsServerError(err))
	assert.True(t, cerrors.CategorizeError(err).IsTransient())
}

func TestUnreachableServer(t *testing.T) {
	a := NewClient(client.New(client.Options{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}))

	_, err := a.ListConversations(context.Background())
	require.Error(t, err)
	assert.True(t, cerrors.CategorizeError(err).IsTransient())
}
