package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secpoll_cycles_total",
		Help: "Total number of tenant cycles, labelled by tenant and outcome.",
	}, []string{"tenant", "outcome"})

	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secpoll_pages_fetched_total",
		Help: "Total number of non-empty pages fetched from the event source.",
	}, []string{"tenant"})

	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secpoll_events_appended_total",
		Help: "Total number of normalized events appended to tenant logs.",
	}, []string{"tenant"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secpoll_rate_limited_total",
		Help: "Total number of cycles cut short by a rate-limit response.",
	}, []string{"tenant"})

	RateLimitSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secpoll_rate_limit_skips_total",
		Help: "Total number of scheduler turns skipped because the tenant was suspended.",
	}, []string{"tenant"})

	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "secpoll_cycle_duration_seconds",
		Help:    "Wall time of one tenant cycle.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"tenant"})

	WatermarkTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "secpoll_watermark_timestamp_seconds",
		Help: "Unix time of the persisted watermark per tenant.",
	}, []string{"tenant"})

	ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secpoll_config_reloads_total",
		Help: "Total number of tenant configuration reload attempts, labelled by result.",
	}, []string{"result"})

	TenantsConfigured = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "secpoll_tenants_configured",
		Help: "Number of tenants in the active configuration.",
	})

	MirrorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secpoll_mirror_publish_failures_total",
		Help: "Total number of events a mirror sink failed to publish.",
	}, []string{"sink"})
)
