package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultUserAgent is sent when Config.UserAgent is empty. The search API
// rejects requests without a User-Agent.
const DefaultUserAgent = "slsharvest/1.0 (+https://github.com/FranksOps/slsharvest)"

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	// Token is sent as a bearer credential on every request when non-empty.
	Token     string
	UserAgent string
	// Headers are added to every request, e.g. Accept or API version pins.
	Headers map[string]string
	// Provide a custom Transport, e.g. for uTLS fingerprinting
	Transport http.RoundTripper
}

// Client wraps a standard http.Client to provide configurable timeouts,
// redirect policies and per-request credential headers.
type Client struct {
	*http.Client
	auth *authTransport
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("httpclient: negative timeout %v", cfg.Timeout)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	auth := &authTransport{
		base:      base,
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		headers:   headers,
	}

	c := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: auth,
	}

	// Setup custom redirect policy
	if cfg.MaxRedirects >= 0 {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("httpclient: stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		}
	} else {
		// Don't follow any redirects if max < 0
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Client{Client: c, auth: auth}, nil
}

// Do executes an HTTP request. The provided context.Context should control
// the overarching request timeout/cancellation independent of the client timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: context cannot be nil")
	}

	resp, err := c.Client.Do(req.Clone(ctx))
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}

// DropCredential stops sending the bearer token. Used when the credential
// was rejected and the run continues unauthenticated.
func (c *Client) DropCredential() {
	c.auth.clearToken()
}

// Authenticated reports whether a bearer token is still being sent.
func (c *Client) Authenticated() bool {
	return c.auth.currentToken() != ""
}
