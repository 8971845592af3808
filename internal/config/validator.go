package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gyaneshwarpardhi/secpoll/internal/state"
)

// Validate checks the tenant file for:
//   - A non-empty clients list
//   - Unique tenant names usable as file and key names
//   - Credentials, interval and rate limit on every tenant
//   - A parseable start_date when start_mode is fixed
func Validate(cfg *TenantConfig) error {
	if cfg == nil || len(cfg.Clients) == 0 {
		return &ConfigError{Op: "validate", Err: fmt.Errorf("config must contain a non-empty 'clients' list")}
	}
	names := make(map[string]int)
	var errs []string

	for i, t := range cfg.Clients {
		loc := fmt.Sprintf("clients[%d]", i)
		if t.Name == "" {
			errs = append(errs, fmt.Sprintf("%s: name is required", loc))
		} else {
			loc = fmt.Sprintf("client %s", t.Name)
			if !state.ValidTenant(t.Name) {
				errs = append(errs, fmt.Sprintf("%s: name may only contain letters, digits, '.', '_' and '-'", loc))
			}
			if prev, ok := names[t.Name]; ok {
				errs = append(errs, fmt.Sprintf("duplicate name %q (clients[%d] and clients[%d])", t.Name, prev, i))
			} else {
				names[t.Name] = i
			}
		}

		if t.ClientID == "" {
			errs = append(errs, fmt.Sprintf("%s: client_id is required", loc))
		}
		switch {
		case t.ClientSecretEnv != "" && t.Secret() == "":
			errs = append(errs, fmt.Sprintf("%s: environment variable %s is empty", loc, t.ClientSecretEnv))
		case t.ClientSecretEnv == "" && t.ClientSecret == "":
			errs = append(errs, fmt.Sprintf("%s: client_secret or client_secret_env is required", loc))
		}
		if t.Interval.Std() <= 0 {
			errs = append(errs, fmt.Sprintf("%s: interval must be positive", loc))
		}
		if t.RateLimitPerMinute <= 0 {
			errs = append(errs, fmt.Sprintf("%s: invalid rate_limit_per_minute %d", loc, t.RateLimitPerMinute))
		}
		if t.StartMode == StartFixed {
			if strings.TrimSpace(t.StartDate) == "" {
				errs = append(errs, fmt.Sprintf("%s: start_date is required when start_mode is fixed", loc))
			} else if _, err := t.FixedStart(); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", loc, err))
			}
		}
		for _, f := range []struct{ field, raw string }{{"token_url", t.TokenURL}, {"events_url", t.EventsURL}} {
			field, raw := f.field, f.raw
			if raw == "" {
				errs = append(errs, fmt.Sprintf("%s: %s is required", loc, field))
				continue
			}
			if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, fmt.Sprintf("%s: %s %q is not an absolute URL", loc, field, raw))
			}
		}
	}

	if len(errs) > 0 {
		return &ConfigError{Op: "validate", Err: fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))}
	}
	return nil
}
