// Package source talks to the security events API: it authenticates with
// OAuth2 client credentials and fetches ascending pages of events.
package source

import (
	"context"
	"net/http"

	"github.com/gyaneshwarpardhi/secpoll/internal/config"
	"github.com/gyaneshwarpardhi/secpoll/internal/event"
)

// Fetcher is the per-tenant view of the events API used by the engine.
type Fetcher interface {
	FetchPage(ctx context.Context, since, cursor, orgID string) (event.Page, error)
	// Invalidate forgets cached credentials so the next call re-authenticates.
	Invalidate()
}

// Factory builds a Fetcher for a tenant.
type Factory func(t config.Tenant) Fetcher

// NewFactory returns a Factory that builds HTTP clients sharing httpClient.
func NewFactory(settings config.SourceSettings, httpClient *http.Client) Factory {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: settings.Timeout}
	}
	return func(t config.Tenant) Fetcher {
		auth := NewAuthenticator(t.TokenURL, t.ClientID, t.Secret(),
			WithScope(settings.Scope),
			WithAuthHTTPClient(httpClient),
			WithAuthUserAgent(settings.UserAgent),
		)
		return NewClient(t.EventsURL, auth,
			WithHTTPClient(httpClient),
			WithUserAgent(settings.UserAgent),
			WithPageLimit(settings.PageLimit),
			WithEngineGroups(settings.EngineGroups),
			WithRateLimit(t.RateLimitPerMinute),
		)
	}
}
