// Package engine drains the pages of one tenant cycle and advances the
// tenant's watermark exactly as far as events were delivered.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/secpoll/internal/config"
	"github.com/gyaneshwarpardhi/secpoll/internal/event"
	"github.com/gyaneshwarpardhi/secpoll/internal/metrics"
	"github.com/gyaneshwarpardhi/secpoll/internal/normalize"
	"github.com/gyaneshwarpardhi/secpoll/internal/sink"
	"github.com/gyaneshwarpardhi/secpoll/internal/source"
	"github.com/gyaneshwarpardhi/secpoll/internal/state"
)

// WatermarkLayout is the form the events API accepts for
// persistenceTimestampStart.
const WatermarkLayout = "2006-01-02T15:04:05.000000Z"

// sortField is the source-reported persistence time items are ordered by.
const sortField = "persistenceTimestamp"

// Outcome classifies how a cycle ended.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeAuthFailed  Outcome = "auth_failed"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeSinkFailed  Outcome = "sink_failed"
	OutcomeStateFailed Outcome = "state_failed"
)

// CycleRequest describes one tenant turn.
type CycleRequest struct {
	Tenant  config.Tenant
	Fetcher source.Fetcher
	// ResolveStart applies the tenant's start mode instead of resuming from
	// the persisted watermark. Set on the first cycle of a tenant runtime.
	ResolveStart bool
}

// CycleResult is the outcome of processing a single tenant cycle.
type CycleResult struct {
	CycleID   string          `json:"cycle_id"`
	Tenant    string          `json:"tenant"`
	Outcome   Outcome         `json:"outcome"`
	Pages     int             `json:"pages"`
	Events    int             `json:"events"`
	Watermark state.Watermark `json:"watermark"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Err       error           `json:"-"`
}

// Engine runs tenant cycles against a watermark store and a sink.
type Engine struct {
	store      state.Store
	sink       sink.Sink
	normalizer *normalize.Normalizer
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Engine)

// WithClock replaces time.Now, used for "now" start points.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine.
func New(store state.Store, sk sink.Sink, n *normalize.Normalizer, opts ...Option) *Engine {
	if n == nil {
		n = normalize.New()
	}
	e := &Engine{
		store:      store,
		sink:       sk,
		normalizer: n,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunCycle drains every currently available page for the tenant. Failures
// stop the cycle without retry; the watermark reached so far is persisted in
// every case except a failed initial load.
func (e *Engine) RunCycle(ctx context.Context, req CycleRequest) CycleResult {
	name := req.Tenant.Name
	res := CycleResult{
		CycleID:   uuid.NewString(),
		Tenant:    name,
		Outcome:   OutcomeOK,
		StartedAt: e.now(),
	}
	log := e.logger.With("tenant", name, "cycle_id", res.CycleID)
	defer func() {
		res.Duration = e.now().Sub(res.StartedAt)
		e.record(log, &res)
	}()

	wm, err := e.startPoint(ctx, req)
	if err != nil {
		res.Outcome = OutcomeStateFailed
		res.Err = err
		return res
	}
	res.Watermark = wm

	for {
		page, err := req.Fetcher.FetchPage(ctx, wm.LastTimestamp, wm.Cursor, req.Tenant.OrganizationID)
		if err != nil {
			res.Outcome, res.Err = classifyFetch(err)
			if res.Outcome == OutcomeAuthFailed {
				req.Fetcher.Invalidate()
			}
			break
		}
		if len(page.Items) == 0 {
			break
		}
		res.Pages++
		metrics.PagesFetched.WithLabelValues(name).Inc()

		items := sortByPersistence(page.Items)
		if err := e.sink.Append(ctx, name, e.normalizer.NormalizeAll(items)); err != nil {
			res.Outcome = OutcomeSinkFailed
			res.Err = fmt.Errorf("append page %d: %w", res.Pages, err)
			break
		}
		res.Events += len(items)
		wm.LastTimestamp = advance(wm.LastTimestamp, items)

		if page.Done() {
			break
		}
		wm.Cursor = page.NextCursor
	}

	res.Watermark = wm
	if err := e.store.Save(context.WithoutCancel(ctx), name, wm); err != nil {
		if res.Outcome == OutcomeOK {
			res.Outcome = OutcomeStateFailed
		}
		res.Err = errors.Join(res.Err, fmt.Errorf("save watermark: %w", err))
	}
	return res
}

// startPoint returns the watermark the cycle begins from.
func (e *Engine) startPoint(ctx context.Context, req CycleRequest) (state.Watermark, error) {
	t := req.Tenant
	if req.ResolveStart {
		switch t.StartMode {
		case config.StartNow:
			return state.Watermark{LastTimestamp: e.nowString()}, nil
		case config.StartFixed:
			start, err := t.FixedStart()
			if err != nil {
				return state.Watermark{}, err
			}
			return state.Watermark{LastTimestamp: start.UTC().Format(WatermarkLayout)}, nil
		}
	}

	wm, err := e.store.Load(ctx, t.Name)
	if err != nil {
		return state.Watermark{}, fmt.Errorf("load watermark: %w", err)
	}
	if req.ResolveStart {
		wm.Cursor = ""
	}
	if wm.LastTimestamp == "" {
		wm.LastTimestamp = e.nowString()
	}
	return wm, nil
}

func (e *Engine) nowString() string {
	return e.now().UTC().Format(WatermarkLayout)
}

func (e *Engine) record(log *slog.Logger, res *CycleResult) {
	metrics.CyclesTotal.WithLabelValues(res.Tenant, string(res.Outcome)).Inc()
	metrics.CycleDuration.WithLabelValues(res.Tenant).Observe(res.Duration.Seconds())
	metrics.EventsAppended.WithLabelValues(res.Tenant).Add(float64(res.Events))
	if ts, ok := normalize.ParseTimestamp(res.Watermark.LastTimestamp); ok {
		metrics.WatermarkTimestamp.WithLabelValues(res.Tenant).Set(float64(ts.UnixMilli()) / 1e3)
	}

	attrs := []any{
		"outcome", res.Outcome,
		"pages", res.Pages,
		"events", res.Events,
		"last_ts", res.Watermark.LastTimestamp,
		"duration", res.Duration,
	}
	switch res.Outcome {
	case OutcomeOK:
		log.Info("cycle complete", attrs...)
	case OutcomeRateLimited:
		metrics.RateLimited.WithLabelValues(res.Tenant).Inc()
		log.Warn("cycle rate limited", attrs...)
	default:
		log.Error("cycle failed", append(attrs, "err", res.Err)...)
	}
}

func classifyFetch(err error) (Outcome, error) {
	switch {
	case errors.Is(err, source.ErrRateLimited):
		return OutcomeRateLimited, err
	case errors.Is(err, source.ErrUnauthorized):
		return OutcomeAuthFailed, err
	default:
		return OutcomeFetchFailed, err
	}
}

// sortByPersistence orders items ascending by persistence time. Items without
// a parseable timestamp sort first and keep their relative order.
func sortByPersistence(items []event.Event) []event.Event {
	type keyed struct {
		ev event.Event
		ts time.Time
	}
	ks := make([]keyed, len(items))
	for i, ev := range items {
		ts, _ := normalize.ParseTimestamp(ev[sortField])
		ks[i] = keyed{ev: ev, ts: ts}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].ts.Before(ks[j].ts) })

	out := make([]event.Event, len(ks))
	for i, k := range ks {
		out[i] = k.ev
	}
	return out
}

// advance returns the watermark after items, moving only to strictly later
// instants. ISO strings are kept verbatim; epoch values, numeric or digit-only
// strings, are rendered in WatermarkLayout.
func advance(current string, items []event.Event) string {
	cur, haveCur := normalize.ParseTimestamp(current)
	for _, ev := range items {
		raw := ev[sortField]
		ts, ok := normalize.ParseTimestamp(raw)
		if !ok {
			continue
		}
		if haveCur && !ts.After(cur) {
			continue
		}
		cur, haveCur = ts, true
		if s, isString := raw.(string); isString && !normalize.IsEpochString(s) {
			current = s
		} else {
			current = ts.UTC().Format(WatermarkLayout)
		}
	}
	return current
}
