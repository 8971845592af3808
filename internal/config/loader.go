package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/secpoll/internal/metrics"
)

// ConfigError reports a tenant file that could not be read, parsed or
// validated. The last good configuration stays active.
type ConfigError struct {
	Op   string
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("config %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ErrUnreadable marks a tenant file that cannot be stat'ed at all.
var ErrUnreadable = errors.New("config source unreadable")

// Snapshot is the configuration in force together with its generation.
// Generation increases by one on every successful load.
type Snapshot struct {
	Config     *TenantConfig
	Generation uint64
	LoadedAt   time.Time
}

// freshness identifies one version of the file on disk.
type freshness struct {
	modTime int64
	size    int64
}

// Provider holds the last good tenant configuration and reloads it when the
// file changes. Freshness is checked by Refresh, which the scheduler calls
// once per iteration; Watch and RequestReload only flag a pending reload and
// wake the scheduler.
type Provider struct {
	path     string
	defaults Defaults
	logger   *slog.Logger

	mu      sync.RWMutex
	current Snapshot
	token   freshness
	failed  freshness

	pending atomic.Bool
	wake    chan struct{}
}

// NewProvider creates a Provider for path. Nothing is read until Refresh.
func NewProvider(path string, defaults Defaults, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		path:     path,
		defaults: defaults,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// Path returns the tenant file location.
func (p *Provider) Path() string { return p.path }

// Current returns the configuration in force. Config is nil before the first
// successful load.
func (p *Provider) Current() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Wake is signalled when a reload has been requested.
func (p *Provider) Wake() <-chan struct{} { return p.wake }

// RequestReload forces the next Refresh to re-read the file.
func (p *Provider) RequestReload() {
	p.pending.Store(true)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Refresh reloads the file when it changed since the last attempt or a reload
// was requested, and returns the configuration in force. A non-nil error is
// always a *ConfigError; the returned snapshot is then the last good one.
func (p *Provider) Refresh() (Snapshot, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return p.Current(), &ConfigError{Op: "stat", Path: p.path, Err: fmt.Errorf("%w: %v", ErrUnreadable, err)}
	}
	tok := freshness{modTime: info.ModTime().UnixNano(), size: info.Size()}
	forced := p.pending.Swap(false)

	p.mu.RLock()
	unchanged := p.current.Config != nil && tok == p.token
	alreadyFailed := tok == p.failed
	p.mu.RUnlock()
	if !forced && (unchanged || alreadyFailed) {
		return p.Current(), nil
	}

	cfg, err := LoadFile(p.path, p.defaults)
	if err != nil {
		metrics.ConfigReloads.WithLabelValues("error").Inc()
		p.mu.Lock()
		p.failed = tok
		p.mu.Unlock()
		return p.Current(), err
	}

	p.mu.Lock()
	p.current = Snapshot{
		Config:     cfg,
		Generation: p.current.Generation + 1,
		LoadedAt:   time.Now(),
	}
	p.token = tok
	p.failed = freshness{}
	snap := p.current
	p.mu.Unlock()

	metrics.ConfigReloads.WithLabelValues("ok").Inc()
	metrics.TenantsConfigured.Set(float64(len(cfg.Clients)))
	p.logger.Info("tenant config loaded", "path", p.path, "generation", snap.Generation, "tenants", len(cfg.Clients))
	return snap, nil
}

// OutputPath returns the log file of tenant under the configuration in force.
func (p *Provider) OutputPath(tenant string) string {
	if cfg := p.Current().Config; cfg != nil {
		if t, ok := cfg.Tenant(tenant); ok && t.OutputLog != "" {
			return t.OutputLog
		}
	}
	return filepath.Join(p.defaults.EventsDir, tenant+".log")
}

// Watch starts a background goroutine that requests a reload whenever the
// tenant file is written, created or renamed into place. The parent directory
// is watched so editors that replace the file are noticed too.
// Call the returned stop function to clean up.
func (p *Provider) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	dir := filepath.Dir(p.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", dir, err)
	}
	target := filepath.Clean(p.path)

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					p.RequestReload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				p.logger.Warn("config watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// LoadFile reads, defaults and validates a tenant file.
func LoadFile(path string, defaults Defaults) (*TenantConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Op: "read", Path: path, Err: err}
	}
	var cfg TenantConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Op: "parse", Path: path, Err: err}
	}
	cfg.applyDefaults(defaults)
	if err := Validate(&cfg); err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			cerr.Path = path
		}
		return nil, err
	}
	return &cfg, nil
}
