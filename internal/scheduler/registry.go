package scheduler

import (
	"time"

	"github.com/gyaneshwarpardhi/secpoll/internal/config"
	"github.com/gyaneshwarpardhi/secpoll/internal/engine"
	"github.com/gyaneshwarpardhi/secpoll/internal/source"
)

// Runtime is the scheduler-owned state of one tenant. It lives as long as the
// tenant stays in the configuration.
type Runtime struct {
	Tenant           config.Tenant
	Fetcher          source.Fetcher
	StartInitialized bool
	NextRunAt        time.Time
	RateLimitUntil   time.Time
	LastResult       *engine.CycleResult

	fingerprint string
}

// MergeReport lists what a configuration merge changed.
type MergeReport struct {
	Added   []string
	Removed []string
	Rebuilt []string
}

// Registry keeps tenant runtimes in configuration order.
type Registry struct {
	factory  source.Factory
	order    []string
	runtimes map[string]*Runtime
}

// NewRegistry creates an empty Registry that builds fetchers with factory.
func NewRegistry(factory source.Factory) *Registry {
	return &Registry{
		factory:  factory,
		runtimes: make(map[string]*Runtime),
	}
}

// Merge applies a freshly loaded configuration. New tenants start with a zero
// schedule and are due immediately. Tenants missing from cfg are evicted.
// Surviving tenants keep their schedule and start flag; their fetcher is
// rebuilt only when credentials or endpoints changed.
func (r *Registry) Merge(cfg *config.TenantConfig) MergeReport {
	var rep MergeReport
	next := make(map[string]*Runtime, len(cfg.Clients))
	order := make([]string, 0, len(cfg.Clients))

	for _, t := range cfg.Clients {
		fp := t.CredentialFingerprint()
		rt, ok := r.runtimes[t.Name]
		switch {
		case !ok:
			rt = &Runtime{Fetcher: r.factory(t), fingerprint: fp}
			rep.Added = append(rep.Added, t.Name)
		case rt.fingerprint != fp:
			rt.Fetcher = r.factory(t)
			rt.fingerprint = fp
			rep.Rebuilt = append(rep.Rebuilt, t.Name)
		}
		rt.Tenant = t
		next[t.Name] = rt
		order = append(order, t.Name)
	}
	for _, name := range r.order {
		if _, ok := next[name]; !ok {
			rep.Removed = append(rep.Removed, name)
		}
	}

	r.runtimes = next
	r.order = order
	return rep
}

// Get returns the runtime of a tenant.
func (r *Registry) Get(name string) (*Runtime, bool) {
	rt, ok := r.runtimes[name]
	return rt, ok
}

// Len returns the number of tenants.
func (r *Registry) Len() int { return len(r.order) }

// Due returns the first tenant in configuration order whose next run is not
// after now.
func (r *Registry) Due(now time.Time) *Runtime {
	for _, name := range r.order {
		rt := r.runtimes[name]
		if !rt.NextRunAt.After(now) {
			return rt
		}
	}
	return nil
}

// NextWake returns the earliest scheduled run, or false when there are no
// tenants.
func (r *Registry) NextWake() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, name := range r.order {
		at := r.runtimes[name].NextRunAt
		if !found || at.Before(earliest) {
			earliest, found = at, true
		}
	}
	return earliest, found
}

// Each calls fn for every runtime in configuration order.
func (r *Registry) Each(fn func(*Runtime)) {
	for _, name := range r.order {
		fn(r.runtimes[name])
	}
}
