package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// DefaultScope is the read-only scope requested for event polling.
const DefaultScope = "connect.api.read"

// Authenticator obtains OAuth2 client-credentials tokens and caches the
// current one until Invalidate is called.
type Authenticator struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	userAgent    string
	httpClient   *http.Client

	mu    sync.Mutex
	token string
}

// NewAuthenticator creates an Authenticator for one set of credentials.
func NewAuthenticator(tokenURL, clientID, clientSecret string, opts ...AuthOption) *Authenticator {
	a := &Authenticator{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        DefaultScope,
		userAgent:    DefaultUserAgent,
		httpClient:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type AuthOption func(*Authenticator)

func WithScope(scope string) AuthOption {
	return func(a *Authenticator) {
		if strings.TrimSpace(scope) != "" {
			a.scope = scope
		}
	}
}

func WithAuthHTTPClient(client *http.Client) AuthOption {
	return func(a *Authenticator) {
		if client != nil {
			a.httpClient = client
		}
	}
}

func WithAuthUserAgent(userAgent string) AuthOption {
	return func(a *Authenticator) {
		if userAgent != "" {
			a.userAgent = userAgent
		}
	}
}

// Token returns the cached token, requesting a new one if there is none.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" {
		return a.token, nil
	}
	tok, err := a.requestToken(ctx)
	if err != nil {
		return "", err
	}
	a.token = tok
	return tok, nil
}

// Invalidate drops the cached token so the next Token call re-authenticates.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (a *Authenticator) requestToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", a.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request: %v", ErrRequestFailed, err)
	}
	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read token response: %v", ErrRequestFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return "", &AuthError{Stage: "token", Err: newAPIError(resp.StatusCode, body)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("%w: %w", ErrRequestFailed, newAPIError(resp.StatusCode, body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrRequestFailed, err)
	}
	if tr.AccessToken == "" {
		return "", &AuthError{Stage: "token", Err: fmt.Errorf("response has no access_token")}
	}
	return tr.AccessToken, nil
}
