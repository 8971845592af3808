package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/secpoll/internal/event"
)

const (
	DefaultUserAgent = "innovare-siem-collector"
	DefaultPageLimit = 200

	maxBodyBytes  = 32 << 20
	maxErrorBytes = 512
)

var defaultEngineGroups = []string{"epp", "edr"}

// TokenSource is satisfied by *Authenticator.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Client fetches pages of security events for one tenant.
type Client struct {
	eventsURL    string
	auth         TokenSource
	httpClient   *http.Client
	userAgent    string
	pageLimit    int
	engineGroups []string
	minInterval  time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

func WithPageLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.pageLimit = limit
		}
	}
}

func WithEngineGroups(groups []string) Option {
	return func(c *Client) {
		if len(groups) > 0 {
			c.engineGroups = groups
		}
	}
}

// WithMinInterval sets the minimum spacing between two requests.
func WithMinInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.minInterval = interval
	}
}

// WithRateLimit paces requests to perMinute calls per minute.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute > 0 {
			c.minInterval = time.Minute / time.Duration(perMinute)
		}
	}
}

// NewClient creates a Client posting to eventsURL with tokens from auth.
func NewClient(eventsURL string, auth TokenSource, opts ...Option) *Client {
	c := &Client{
		eventsURL:    eventsURL,
		auth:         auth,
		httpClient:   http.DefaultClient,
		userAgent:    DefaultUserAgent,
		pageLimit:    DefaultPageLimit,
		engineGroups: defaultEngineGroups,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage requests the events persisted strictly after since. A non-empty
// cursor continues a previous listing; orgID narrows the query to one
// organisation when set.
func (c *Client) FetchPage(ctx context.Context, since, cursor, orgID string) (event.Page, error) {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return event.Page{}, err
	}

	form := url.Values{}
	form.Set("limit", strconv.Itoa(c.pageLimit))
	for _, g := range c.engineGroups {
		form.Add("engineGroup", g)
	}
	form.Set("persistenceTimestampStart", since)
	form.Set("order", "asc")
	form.Set("exclusiveStart", "true")
	if cursor != "" {
		form.Set("anchor", cursor)
	}
	if orgID != "" {
		form.Set("organizationId", orgID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.eventsURL, strings.NewReader(form.Encode()))
	if err != nil {
		return event.Page{}, fmt.Errorf("%w: build request: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	req.Header.Set("User-Agent", c.userAgent)

	status, body, err := c.doRequest(ctx, req)
	if err != nil {
		return event.Page{}, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return event.Page{}, ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		c.auth.Invalidate()
		return event.Page{}, &AuthError{Stage: "request", Err: newAPIError(status, body)}
	case status < 200 || status >= 300:
		return event.Page{}, fmt.Errorf("%w: %w", ErrRequestFailed, newAPIError(status, body))
	}

	var page event.Page
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		return event.Page{}, fmt.Errorf("%w: decode response: %v", ErrRequestFailed, err)
	}
	return page, nil
}

// Invalidate drops the cached token.
func (c *Client) Invalidate() { c.auth.Invalidate() }

func (c *Client) doRequest(ctx context.Context, req *http.Request) (int, []byte, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return 0, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	if c.minInterval <= 0 {
		return nil
	}
	c.mu.Lock()
	now := time.Now()
	next := c.lastRequest.Add(c.minInterval)
	if !next.After(now) {
		c.lastRequest = now
		c.mu.Unlock()
		return nil
	}
	c.lastRequest = next
	c.mu.Unlock()

	return sleepWithContext(ctx, time.Until(next))
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newAPIError(status int, body []byte) *APIError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBytes {
		msg = msg[:maxErrorBytes] + "..."
	}
	return &APIError{StatusCode: status, Body: msg}
}
