package client

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/zfogg/sidechain/chat/pkg/config"
	"github.com/zfogg/sidechain/chat/pkg/logger"
)

const userAgent = "Sidechain-Chat/0.1.0"

// Options configure a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// CSRFPath enables the CSRF token cache when non-empty.
	CSRFPath string
}

// OptionsFromConfig reads client options from the loaded configuration.
func OptionsFromConfig() Options {
	return Options{
		BaseURL:  config.GetString("api.base_url"),
		Timeout:  time.Duration(config.GetInt("api.timeout")) * time.Second,
		CSRFPath: config.GetString("api.csrf_path"),
	}
}

// Client wraps a configured resty client. It is constructed once per process
// and handed to the API layer explicitly.
type Client struct {
	http *resty.Client
	csrf *CSRFCache

	mu    sync.RWMutex
	token string
}

// New creates a Client
func New(opts Options) *Client {
	c := &Client{}
	c.http = resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", userAgent).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	if opts.CSRFPath != "" {
		c.csrf = NewCSRFCache(c.http, opts.CSRFPath)
	}

	c.http.OnBeforeRequest(c.beforeRequest)
	c.http.OnAfterResponse(c.afterResponse)

	return c
}

// R starts a new request
func (c *Client) R() *resty.Request {
	return c.http.R()
}

// HTTP returns the underlying resty client
func (c *Client) HTTP() *resty.Client {
	return c.http
}

// CSRF returns the token cache, or nil when disabled
func (c *Client) CSRF() *CSRFCache {
	return c.csrf
}

// SetAuthToken sets the bearer token sent with every request
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Reset drops the auth token and any cached CSRF token (logout).
func (c *Client) Reset() {
	c.SetAuthToken("")
	if c.csrf != nil {
		c.csrf.Invalidate()
	}
}

func (c *Client) beforeRequest(_ *resty.Client, req *resty.Request) error {
	if req.Header.Get("X-Request-ID") == "" {
		req.SetHeader("X-Request-ID", uuid.NewString())
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}

	if c.csrf != nil && isMutating(req.Method) {
		csrfToken, err := c.csrf.Token(req.Context())
		if err != nil {
			return err
		}
		req.SetHeader(CSRFHeader, csrfToken)
	}

	logger.With("request_id", req.Header.Get("X-Request-ID")).Debug("HTTP Request", "method", req.Method, "url", req.URL)
	return nil
}

func (c *Client) afterResponse(_ *resty.Client, resp *resty.Response) error {
	logger.With("request_id", resp.Request.Header.Get("X-Request-ID")).Debug("HTTP Response", "status", resp.StatusCode(), "url", resp.Request.URL)

	if resp.StatusCode() == http.StatusForbidden && c.csrf != nil {
		c.csrf.Invalidate()
	}
	return nil
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
