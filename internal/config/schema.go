package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRateLimitPerMinute applies when a tenant omits rate_limit_per_minute.
const DefaultRateLimitPerMinute = 60

// TenantConfig is the top-level YAML structure of the tenant file.
type TenantConfig struct {
	Clients []Tenant `yaml:"clients"`
}

// Tenant describes one customer organisation polled by the collector.
type Tenant struct {
	Name               string    `yaml:"name"`
	ClientID           string    `yaml:"client_id"`
	ClientSecret       string    `yaml:"client_secret"`
	ClientSecretEnv    string    `yaml:"client_secret_env"`
	TokenURL           string    `yaml:"token_url"`
	EventsURL          string    `yaml:"events_url"`
	Interval           Duration  `yaml:"interval"`
	RateLimitPerMinute int       `yaml:"rate_limit_per_minute"`
	StartMode          StartMode `yaml:"start_mode"`
	StartDate          string    `yaml:"start_date"`
	OrganizationID     string    `yaml:"organization_id"`
	OutputLog          string    `yaml:"output_log"`
}

// Secret returns the client secret, reading it from the environment when the
// tenant references a variable instead of embedding the value.
func (t Tenant) Secret() string {
	if t.ClientSecretEnv != "" {
		return os.Getenv(t.ClientSecretEnv)
	}
	return t.ClientSecret
}

// CredentialFingerprint identifies the credentials and endpoints of a tenant.
// It changes whenever a reload must rebuild the tenant's API client.
func (t Tenant) CredentialFingerprint() string {
	h := sha256.New()
	for _, part := range []string{t.ClientID, t.Secret(), t.TokenURL, t.EventsURL, strconv.Itoa(t.RateLimitPerMinute)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FixedStart parses StartDate. It accepts RFC 3339 timestamps and plain
// dates, which are taken as midnight UTC.
func (t Tenant) FixedStart() (time.Time, error) {
	s := strings.TrimSpace(t.StartDate)
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), nil
	}
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("start_date %q is neither RFC 3339 nor YYYY-MM-DD", t.StartDate)
}

// StartMode selects where polling begins the first time a tenant is seen.
type StartMode string

const (
	StartFromState StartMode = "from_state"
	StartNow       StartMode = "now"
	StartFixed     StartMode = "fixed"
)

// ParseStartMode accepts the snake_case values and their CamelCase spellings.
func ParseStartMode(s string) (StartMode, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "", "fromstate":
		return StartFromState, nil
	case "now":
		return StartNow, nil
	case "fixed":
		return StartFixed, nil
	default:
		return "", fmt.Errorf("unknown start_mode %q (want from_state, now or fixed)", s)
	}
}

func (m *StartMode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	mode, err := ParseStartMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Duration decodes either an integer number of seconds or a Go duration string.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var secs int64
	if err := node.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("interval: %w", err)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("interval %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// applyDefaults fills optional tenant fields in place.
func (c *TenantConfig) applyDefaults(defaults Defaults) {
	for i := range c.Clients {
		t := &c.Clients[i]
		if t.RateLimitPerMinute == 0 {
			t.RateLimitPerMinute = DefaultRateLimitPerMinute
		}
		if t.StartMode == "" {
			t.StartMode = StartFromState
		}
		if t.TokenURL == "" {
			t.TokenURL = defaults.TokenURL
		}
		if t.EventsURL == "" {
			t.EventsURL = defaults.EventsURL
		}
		if t.OutputLog == "" && t.Name != "" {
			t.OutputLog = filepath.Join(defaults.EventsDir, t.Name+".log")
		}
	}
}

// Tenant returns the tenant with the given name.
func (c *TenantConfig) Tenant(name string) (Tenant, bool) {
	for _, t := range c.Clients {
		if t.Name == name {
			return t, true
		}
	}
	return Tenant{}, false
}

// Defaults are the process-level values tenants inherit.
type Defaults struct {
	TokenURL  string
	EventsURL string
	EventsDir string
}
