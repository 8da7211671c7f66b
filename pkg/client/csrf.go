package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/zfogg/sidechain/chat/pkg/logger"
)

// CSRFHeader carries the token on mutating requests.
const CSRFHeader = "X-CSRF-Token"

type csrfResponse struct {
	Token     string `json:"csrf_token"`
	CSRFToken string `json:"csrfToken"`
}

// CSRFCache fetches the anti-forgery token once and reuses it until it is
// invalidated by a 403 or an explicit reset.
type CSRFCache struct {
	http *resty.Client
	path string

	fetchMu sync.Mutex
	mu      sync.RWMutex
	token   string
}

// NewCSRFCache returns a cache that fetches tokens from path.
func NewCSRFCache(http *resty.Client, path string) *CSRFCache {
	return &CSRFCache{http: http, path: path}
}

// Token returns the cached token, fetching it if necessary. Concurrent
// callers share a single fetch.
func (c *CSRFCache) Token(ctx context.Context) (string, error) {
	if token := c.cached(); token != "" {
		return token, nil
	}

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	if token := c.cached(); token != "" {
		return token, nil
	}

	var body csrfResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get(c.path)
	if err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("fetch csrf token: %s", resp.Status())
	}

	token := body.Token
	if token == "" {
		token = body.CSRFToken
	}
	if token == "" {
		return "", fmt.Errorf("fetch csrf token: empty token in response")
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	logger.Debug("CSRF token refreshed")
	return token, nil
}

// Invalidate drops the cached token; the next mutating request fetches a new one.
func (c *CSRFCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *CSRFCache) cached() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}
