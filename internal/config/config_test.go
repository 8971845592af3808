package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/secpoll/internal/state"
)

var testDefaults = Defaults{
	TokenURL:  "https://auth.example.com/token",
	EventsURL: "https://api.example.com/events",
	EventsDir: "events",
}

const validYAML = `
clients:
  - name: acme
    client_id: id-acme
    client_secret: s3cret
    interval: 60
    organization_id: org-1
  - name: globex
    client_id: id-globex
    client_secret: s3cret
    interval: 5m
    rate_limit_per_minute: 10
    start_mode: Fixed
    start_date: "2024-01-15"
    output_log: /var/log/globex.log
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile_AppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yml", validYAML)

	cfg, err := LoadFile(path, testDefaults)
	require.NoError(t, err)
	require.Len(t, cfg.Clients, 2)

	acme := cfg.Clients[0]
	assert.Equal(t, 60*time.Second, acme.Interval.Std())
	assert.Equal(t, DefaultRateLimitPerMinute, acme.RateLimitPerMinute)
	assert.Equal(t, StartFromState, acme.StartMode)
	assert.Equal(t, testDefaults.TokenURL, acme.TokenURL)
	assert.Equal(t, testDefaults.EventsURL, acme.EventsURL)
	assert.Equal(t, filepath.Join("events", "acme.log"), acme.OutputLog)

	globex := cfg.Clients[1]
	assert.Equal(t, 5*time.Minute, globex.Interval.Std())
	assert.Equal(t, 10, globex.RateLimitPerMinute)
	assert.Equal(t, StartFixed, globex.StartMode)
	assert.Equal(t, "/var/log/globex.log", globex.OutputLog)

	start, err := globex.FixedStart()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), start)
}

func TestParseStartMode(t *testing.T) {
	tests := []struct {
		in      string
		want    StartMode
		wantErr bool
	}{
		{"", StartFromState, false},
		{"from_state", StartFromState, false},
		{"FromState", StartFromState, false},
		{"NOW", StartNow, false},
		{"fixed", StartFixed, false},
		{"later", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStartMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDuration_RejectsGarbage(t *testing.T) {
	var out struct {
		Interval Duration `yaml:"interval"`
	}
	assert.Error(t, yaml.Unmarshal([]byte("interval: soon"), &out))
}

func TestValidate(t *testing.T) {
	base := func() Tenant {
		return Tenant{
			Name:               "acme",
			ClientID:           "id",
			ClientSecret:       "secret",
			TokenURL:           testDefaults.TokenURL,
			EventsURL:          testDefaults.EventsURL,
			Interval:           Duration(time.Minute),
			RateLimitPerMinute: 60,
			StartMode:          StartFromState,
		}
	}

	tests := []struct {
		name    string
		mutate  func(cfg *TenantConfig)
		wantErr string
	}{
		{"valid", func(*TenantConfig) {}, ""},
		{"empty list", func(cfg *TenantConfig) { cfg.Clients = nil }, "non-empty 'clients'"},
		{"missing name", func(cfg *TenantConfig) { cfg.Clients[0].Name = "" }, "name is required"},
		{"unsafe name", func(cfg *TenantConfig) { cfg.Clients[0].Name = "../x" }, "name may only contain"},
		{"duplicate", func(cfg *TenantConfig) { cfg.Clients = append(cfg.Clients, cfg.Clients[0]) }, "duplicate name"},
		{"no client id", func(cfg *TenantConfig) { cfg.Clients[0].ClientID = "" }, "client_id is required"},
		{"no secret", func(cfg *TenantConfig) { cfg.Clients[0].ClientSecret = "" }, "client_secret or client_secret_env"},
		{"zero interval", func(cfg *TenantConfig) { cfg.Clients[0].Interval = 0 }, "interval must be positive"},
		{"bad rate limit", func(cfg *TenantConfig) { cfg.Clients[0].RateLimitPerMinute = -1 }, "rate_limit_per_minute"},
		{"fixed without date", func(cfg *TenantConfig) { cfg.Clients[0].StartMode = StartFixed }, "start_date is required"},
		{"fixed with bad date", func(cfg *TenantConfig) {
			cfg.Clients[0].StartMode = StartFixed
			cfg.Clients[0].StartDate = "15/01/2024"
		}, "neither RFC 3339"},
		{"relative url", func(cfg *TenantConfig) { cfg.Clients[0].EventsURL = "/events" }, "not an absolute URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &TenantConfig{Clients: []Tenant{base()}}
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cerr *ConfigError
			assert.True(t, errors.As(err, &cerr))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTenant_SecretFromEnv(t *testing.T) {
	t.Setenv("ACME_SECRET", "from-env")
	tenant := Tenant{ClientSecret: "inline", ClientSecretEnv: "ACME_SECRET"}
	assert.Equal(t, "from-env", tenant.Secret())

	fp1 := tenant.CredentialFingerprint()
	t.Setenv("ACME_SECRET", "rotated")
	assert.NotEqual(t, fp1, tenant.CredentialFingerprint())
}

func TestProvider_RefreshTracksFreshness(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", validYAML)
	p := NewProvider(path, testDefaults, nil)

	snap, err := p.Refresh()
	require.NoError(t, err)
	require.NotNil(t, snap.Config)
	assert.Equal(t, uint64(1), snap.Generation)

	snap, err = p.Refresh()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Generation, "unchanged file must not bump the generation")

	p.RequestReload()
	select {
	case <-p.Wake():
	default:
		t.Fatal("RequestReload should signal Wake")
	}
	snap, err = p.Refresh()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Generation)
}

func TestProvider_InvalidReloadKeepsLastGood(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", validYAML)
	p := NewProvider(path, testDefaults, nil)

	_, err := p.Refresh()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("clients: [{name: broken}]\n"), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	snap, err := p.Refresh()
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Len(t, snap.Config.Clients, 2)

	// the same broken file is reported once
	_, err = p.Refresh()
	assert.NoError(t, err)
}

func TestProvider_MissingFile(t *testing.T) {
	p := NewProvider(filepath.Join(t.TempDir(), "absent.yml"), testDefaults, nil)

	snap, err := p.Refresh()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadable)
	assert.Nil(t, snap.Config)
}

func TestProvider_OutputPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yml", validYAML)
	p := NewProvider(path, testDefaults, nil)

	assert.Equal(t, filepath.Join("events", "acme.log"), p.OutputPath("acme"))

	_, err := p.Refresh()
	require.NoError(t, err)
	assert.Equal(t, "/var/log/globex.log", p.OutputPath("globex"))
	assert.Equal(t, filepath.Join("events", "initech.log"), p.OutputPath("initech"))
}

func TestProvider_WatchRequestsReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", validYAML)
	p := NewProvider(path, testDefaults, nil)
	_, err := p.Refresh()
	require.NoError(t, err)

	stop, err := p.Watch()
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte(validYAML+"\n"), 0o644))

	select {
	case <-p.Wake():
	case <-time.After(5 * time.Second):
		t.Fatal("expected a reload request after writing the file")
	}
	snap, err := p.Refresh()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Generation)
}

func TestLoadSettings_DefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "secpoll.yaml", `
state:
  backend: redis
  redis_url: redis://cache:6379/1
scheduler:
  min_poll: 200ms
`)
	t.Setenv("COLLECTOR_CONFIG", "/etc/tenants.yml")
	t.Setenv("DEBUG", "1")
	t.Setenv("SECPOLL_HTTP_ADDR", ":9100")

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/tenants.yml", s.TenantsFile)
	assert.True(t, s.Logging.Debug)
	assert.Equal(t, ":9100", s.HTTP.Addr)
	assert.Equal(t, "redis", s.State.Backend)
	assert.Equal(t, "redis://cache:6379/1", s.State.RedisURL)
	assert.Equal(t, 200*time.Millisecond, s.Scheduler.MinPoll)
	assert.Equal(t, time.Second, s.Scheduler.MaxPoll)
	assert.Equal(t, 5*time.Second, s.Scheduler.ConfigRetry)
	assert.Equal(t, 200, s.Source.PageLimit)
	assert.Equal(t, []string{"epp", "edr"}, s.Source.EngineGroups)

	d := s.Defaults()
	assert.Equal(t, s.Source.EventsURL, d.EventsURL)
	assert.Equal(t, "events", d.EventsDir)
}

func TestLoadSettings_Invalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "secpoll.yaml", "state:\n  backend: sqlite\n")
	_, err := LoadSettings(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown state.backend")
}

func TestLoadSettings_ExplicitMissingFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_NamesMatchStorageKeys(t *testing.T) {
	for _, name := range []string{"acme", "acme-eu.2", "Globex_1", "../x", "a/b", " spaced", ".hidden"} {
		cfg := &TenantConfig{Clients: []Tenant{{
			Name:               name,
			ClientID:           "id",
			ClientSecret:       "secret",
			TokenURL:           "https://auth.example.com/token",
			EventsURL:          "https://api.example.com/events",
			Interval:           Duration(time.Minute),
			StartMode:          StartNow,
			RateLimitPerMinute: 60,
		}}}
		err := Validate(cfg)
		if state.ValidTenant(name) {
			assert.NoError(t, err, "name %q", name)
		} else {
			assert.ErrorContains(t, err, "name may only contain", "name %q", name)
		}
	}
}
