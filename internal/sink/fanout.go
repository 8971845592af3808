package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gyaneshwarpardhi/secpoll/internal/event"
	"github.com/gyaneshwarpardhi/secpoll/internal/metrics"
)

// Mirror is a best-effort secondary destination.
type Mirror interface {
	Sink
	Name() string
}

// Fanout writes to a primary sink and copies every successful batch to its
// mirrors. Only the primary decides whether Append succeeded; mirror failures
// are logged and counted.
type Fanout struct {
	primary Sink
	mirrors []Mirror
	logger  *slog.Logger
}

// NewFanout combines primary with zero or more mirrors.
func NewFanout(primary Sink, logger *slog.Logger, mirrors ...Mirror) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{primary: primary, mirrors: mirrors, logger: logger}
}

// Ensure forwards to the primary when it supports it.
func (f *Fanout) Ensure(tenant string) error {
	if e, ok := f.primary.(Ensurer); ok {
		return e.Ensure(tenant)
	}
	return nil
}

func (f *Fanout) Append(ctx context.Context, tenant string, events []event.Event) error {
	if err := f.primary.Append(ctx, tenant, events); err != nil {
		return err
	}
	for _, m := range f.mirrors {
		if err := m.Append(ctx, tenant, events); err != nil {
			metrics.MirrorFailures.WithLabelValues(m.Name()).Add(float64(len(events)))
			f.logger.Warn("mirror publish failed", "sink", m.Name(), "tenant", tenant, "events", len(events), "err", err)
		}
	}
	return nil
}

func (f *Fanout) Close() error {
	errs := []error{f.primary.Close()}
	for _, m := range f.mirrors {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
