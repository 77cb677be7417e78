// Package search is a client for a GitHub-compatible code search API.
//
// It knows how to build filename/size queries, probe the number of result
// pages from the Link header, fetch and validate a page of hits, and check a
// credential against the identity endpoint. It does no pacing of its own
// beyond honoring an exhausted quota: callers hand it a Limiter.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/slsharvest/pkg/httpclient"
	"github.com/FranksOps/slsharvest/pkg/ratelimit"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint.
	DefaultBaseURL = "https://api.github.com"
	// DefaultPageSize is the largest page the code search endpoint serves.
	DefaultPageSize = 100
	// APIVersion pins the REST API version header.
	APIVersion = "2022-11-28"

	// resetBuffer is added to the reported quota reset time before resuming.
	resetBuffer = 15 * time.Second
	// maxBody caps how much of a response body is read into memory.
	maxBody = 32 << 20
)

var (
	// ErrMalformed marks a response body that is not a well-formed result page.
	ErrMalformed = errors.New("search: malformed response")
	// ErrStatus marks a non-success HTTP status.
	ErrStatus = errors.New("search: unexpected status")
	// ErrUnauthorized marks a credential rejected by the identity endpoint.
	ErrUnauthorized = errors.New("search: credential rejected")
)

// Query is one filename match restricted to a byte-size range.
type Query struct {
	Filename string
	MinSize  int64
	MaxSize  int64
}

// String renders the query in search syntax, e.g.
// "filename:serverless.yml size:0..19".
func (q Query) String() string {
	return fmt.Sprintf("filename:%s size:%d..%d", q.Filename, q.MinSize, q.MaxSize)
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	PageSize int
	HTTP     *httpclient.Client
	// Limiter is waited on before every request. Nil means no pacing.
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger
}

// Client talks to the search API.
type Client struct {
	base     *url.URL
	pageSize int
	http     *httpclient.Client
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

// NewClient validates opts and returns a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("search: invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("search: unsupported base url scheme %q", base.Scheme)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.HTTP == nil {
		c, err := httpclient.New(httpclient.Config{Headers: DefaultHeaders()})
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		opts.HTTP = c
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		base:     base,
		pageSize: opts.PageSize,
		http:     opts.HTTP,
		limiter:  opts.Limiter,
		logger:   opts.Logger,
	}, nil
}

// DefaultHeaders are the headers the REST API expects on every call.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": APIVersion,
	}
}

// PageSize reports the number of hits requested per page.
func (c *Client) PageSize() int {
	return c.pageSize
}

// DropCredential stops sending the bearer token on later requests.
func (c *Client) DropCredential() {
	c.http.DropCredential()
}

// Authenticated reports whether requests still carry a credential.
func (c *Client) Authenticated() bool {
	return c.http.Authenticated()
}

// Response is the raw outcome of one request.
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Page is a validated page of hits.
type Page struct {
	Response
	TotalCount int
	Incomplete bool
	// IDs holds one repository URL per hit, blanks removed.
	IDs []string
}

// Probe issues a headers-only request for the first page and returns the
// number of the last page, read from the Link header. A response without a
// Link header is exactly one page.
func (c *Client) Probe(ctx context.Context, q Query) (int, Response, error) {
	resp, header, err := c.do(ctx, http.MethodHead, c.searchURL(q, 1))
	if err != nil {
		return 0, resp, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, resp, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	return LastPage(header.Get("Link")), resp, nil
}

// FetchPage retrieves and validates one page of results. A body that is not
// a JSON object with an items array yields ErrMalformed; the raw body is
// still returned for diagnostics.
func (c *Client) FetchPage(ctx context.Context, q Query, page int) (Page, error) {
	resp, _, err := c.do(ctx, http.MethodGet, c.searchURL(q, page))
	p := Page{Response: resp}
	if err != nil {
		return p, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return p, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var body struct {
		TotalCount        int    `json:"total_count"`
		IncompleteResults bool   `json:"incomplete_results"`
		Items             *[]hit `json:"items"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if body.Items == nil {
		return p, fmt.Errorf("%w: missing items", ErrMalformed)
	}

	p.TotalCount = body.TotalCount
	p.Incomplete = body.IncompleteResults
	for _, h := range *body.Items {
		if id := h.repositoryURL(); id != "" {
			p.IDs = append(p.IDs, id)
		}
	}
	return p, nil
}

// VerifyCredential checks the client's credential against the identity
// endpoint and returns the authenticated login.
func (c *Client) VerifyCredential(ctx context.Context) (string, error) {
	u := *c.base
	u.Path += "/user"
	resp, _, err := c.do(ctx, http.MethodGet, u.String())
	if err != nil {
		return "", err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var user struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal(resp.Body, &user); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return user.Login, nil
}

func (c *Client) searchURL(q Query, page int) string {
	u := *c.base
	u.Path += "/search/code"
	v := url.Values{}
	v.Set("q", q.String())
	v.Set("per_page", strconv.Itoa(c.pageSize))
	v.Set("page", strconv.Itoa(page))
	u.RawQuery = v.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string) (Response, http.Header, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, nil, fmt.Errorf("search: rate limiter: %w", err)
		}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return Response{}, nil, fmt.Errorf("search: %w", err)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return Response{Duration: time.Since(start)}, nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	out := Response{StatusCode: resp.StatusCode, Body: body, Duration: time.Since(start)}
	c.observeQuota(resp.Header)
	if err != nil {
		return out, resp.Header, fmt.Errorf("search: failed to read body: %w", err)
	}
	return out, resp.Header, nil
}

// observeQuota pauses the limiter when the response says the quota is spent.
func (c *Client) observeQuota(h http.Header) {
	if c.limiter == nil {
		return
	}
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil || remaining > 0 {
		return
	}
	reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return
	}
	until := time.Unix(reset, 0).Add(resetBuffer)
	if until.Before(time.Now()) {
		return
	}
	c.logger.Warn("rate limit exhausted, pausing requests", "until", until.Format(time.RFC3339))
	c.limiter.PauseUntil(until)
}
