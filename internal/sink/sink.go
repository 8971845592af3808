// Package sink delivers normalized events to their per-tenant destinations.
package sink

import (
	"context"

	"github.com/gyaneshwarpardhi/secpoll/internal/event"
)

// Sink appends events for a tenant in the order given.
// Implementations are strictly additive and never rewrite prior output.
type Sink interface {
	Append(ctx context.Context, tenant string, events []event.Event) error
	Close() error
}

// Ensurer is implemented by sinks that can prepare a destination before the
// first event arrives.
type Ensurer interface {
	Ensure(tenant string) error
}
