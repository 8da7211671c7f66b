package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	mu      sync.Mutex
	headers []http.Header
}

func (r *recorded) add(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers = append(r.headers, h.Clone())
}

func (r *recorded) last() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headers[len(r.headers)-1]
}

func newTestServer(t *testing.T, rec *recorded, csrfFetches *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/csrf", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(csrfFetches, 1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			_, _ = w.Write([]byte(`{"csrf_token":"tok-1"}`))
			return
		}
		_, _ = w.Write([]byte(`{"csrfToken":"tok-2"}`))
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.Header)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.Header)
		w.WriteHeader(http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRequestHeaders(t *testing.T) {
	rec := &recorded{}
	var fetches int32
	srv := newTestServer(t, rec, &fetches)

	c := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	c.SetAuthToken("secret")

	_, err := c.R().Get("/echo")
	require.NoError(t, err)

	h := rec.last()
	assert.Equal(t, "Bearer secret", h.Get("Authorization"))
	assert.Equal(t, userAgent, h.Get("User-Agent"))
	assert.Len(t, h.Get("X-Request-ID"), 36)
	assert.Empty(t, h.Get(CSRFHeader), "no csrf without a configured path")
	assert.Nil(t, c.CSRF())
}

func TestRequestIDsAreUnique(t *testing.T) {
	rec := &recorded{}
	var fetches int32
	srv := newTestServer(t, rec, &fetches)
	c := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})

	_, err := c.R().Get("/echo")
	require.NoError(t, err)
	first := rec.last().Get("X-Request-ID")

	_, err = c.R().Get("/echo")
	require.NoError(t, err)
	assert.NotEqual(t, first, rec.last().Get("X-Request-ID"))
}

func TestResetClearsAuth(t *testing.T) {
	rec := &recorded{}
	var fetches int32
	srv := newTestServer(t, rec, &fetches)
	c := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})

	c.SetAuthToken("secret")
	c.Reset()

	_, err := c.R().Get("/echo")
	require.NoError(t, err)
	assert.Empty(t, rec.last().Get("Authorization"))
}

func TestCSRFAttachedToMutatingRequests(t *testing.T) {
	rec := &recorded{}
	var fetches int32
	srv := newTestServer(t, rec, &fetches)
	c := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second, CSRFPath: "/api/v1/csrf"})

	_, err := c.R().Get("/echo")
	require.NoError(t, err)
	assert.Empty(t, rec.last().Get(CSRFHeader))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fetches))

	_, err = c.R().SetBody(map[string]string{"a": "b"}).Post("/echo")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", rec.last().Get(CSRFHeader))

	_, err = c.R().Delete("/echo")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", rec.last().Get(CSRFHeader))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches), "token is cached")
}

func TestCSRFInvalidatedOnForbidden(t *testing.T) {
	rec := &recorded{}
	var fetches int32
	srv := newTestServer(t, rec, &fetches)
	c := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second, CSRFPath: "/api/v1/csrf"})

	resp, err := c.R().Post("/forbidden")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())

	_, err = c.R().Post("/echo")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", rec.last().Get(CSRFHeader))
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetches))
}

func TestCSRFConcurrentFetchesCoalesce(t *testing.T) {
	rec := &recorded{}
	var fetches int32
	srv := newTestServer(t, rec, &fetches)
	c := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second, CSRFPath: "/api/v1/csrf"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := c.CSRF().Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok-1", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestCSRFFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second, CSRFPath: "/csrf"})
	_, err := c.R().Post("/anything")
	assert.Error(t, err)
}
