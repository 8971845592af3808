package scheduler

import (
	"time"

	"github.com/gyaneshwarpardhi/secpoll/internal/engine"
	"github.com/gyaneshwarpardhi/secpoll/internal/state"
)

// Status is an immutable view of the scheduler published after every loop
// iteration.
type Status struct {
	Generation  uint64         `json:"config_generation"`
	ConfigError string         `json:"config_error,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Tenants     []TenantStatus `json:"tenants"`
}

// TenantStatus is one tenant's entry in a Status.
type TenantStatus struct {
	Name             string           `json:"name"`
	Interval         string           `json:"interval"`
	StartMode        string           `json:"start_mode"`
	StartInitialized bool             `json:"start_initialized"`
	NextRunAt        time.Time        `json:"next_run_at"`
	RateLimitUntil   *time.Time       `json:"rate_limit_until,omitempty"`
	Watermark        *state.Watermark `json:"watermark,omitempty"`
	LastCycle        *CycleSummary    `json:"last_cycle,omitempty"`
}

// CycleSummary is the published part of an engine.CycleResult.
type CycleSummary struct {
	ID        string    `json:"id"`
	Outcome   string    `json:"outcome"`
	Pages     int       `json:"pages"`
	Events    int       `json:"events"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Error     string    `json:"error,omitempty"`
}

func summarize(res *engine.CycleResult) *CycleSummary {
	if res == nil {
		return nil
	}
	s := &CycleSummary{
		ID:        res.CycleID,
		Outcome:   string(res.Outcome),
		Pages:     res.Pages,
		Events:    res.Events,
		StartedAt: res.StartedAt,
		Duration:  res.Duration.String(),
	}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}
	return s
}

func (r *Registry) status(now time.Time) []TenantStatus {
	out := make([]TenantStatus, 0, r.Len())
	r.Each(func(rt *Runtime) {
		ts := TenantStatus{
			Name:             rt.Tenant.Name,
			Interval:         rt.Tenant.Interval.Std().String(),
			StartMode:        string(rt.Tenant.StartMode),
			StartInitialized: rt.StartInitialized,
			NextRunAt:        rt.NextRunAt,
			LastCycle:        summarize(rt.LastResult),
		}
		if rt.RateLimitUntil.After(now) {
			until := rt.RateLimitUntil
			ts.RateLimitUntil = &until
		}
		if rt.LastResult != nil {
			wm := rt.LastResult.Watermark
			ts.Watermark = &wm
		}
		out = append(out, ts)
	})
	return out
}
