// Package normalize turns raw source events into the canonical form written
// to the per-tenant logs: timestamps rendered in one fixed-offset UTC layout,
// category and risk codes replaced by display labels, and the whole record
// wrapped under a vendor-tagged envelope.
//
// Normalization never fails. Values it does not recognise pass through.
package normalize

import (
	"strings"

	"github.com/gyaneshwarpardhi/secpoll/internal/event"
)

// DefaultVendor is the envelope tag used when none is configured.
const DefaultVendor = "withsecure"

// vendorKey is the top-level key holding the vendor tag.
const vendorKey = "vendor"

// DefaultTimestampFields lists the dotted paths rewritten as timestamps.
var DefaultTimestampFields = []string{
	"serverTimestamp",
	"clientTimestamp",
	"persistenceTimestamp",
	"details.created",
	"details.initialEventTimestamp",
	"details.lastEventTimestamp",
}

// Normalizer holds the field tables. The zero value is not usable; use New.
type Normalizer struct {
	vendor          string
	timestampFields [][]string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithVendor overrides the envelope tag.
func WithVendor(tag string) Option {
	return func(n *Normalizer) {
		if strings.TrimSpace(tag) != "" {
			n.vendor = tag
		}
	}
}

// WithTimestampFields replaces the dotted timestamp paths.
func WithTimestampFields(paths []string) Option {
	return func(n *Normalizer) {
		if len(paths) > 0 {
			n.timestampFields = splitPaths(paths)
		}
	}
}

// New creates a Normalizer with the default tables.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		vendor:          DefaultVendor,
		timestampFields: splitPaths(DefaultTimestampFields),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Vendor returns the envelope tag.
func (n *Normalizer) Vendor() string { return n.vendor }

// Normalize returns the canonical form of raw. raw itself is not modified.
func (n *Normalizer) Normalize(raw event.Event) event.Event {
	ev := raw.Clone()
	if ev == nil {
		ev = event.Event{}
	}

	for _, path := range n.timestampFields {
		rewrite(ev, path, Timestamp)
	}
	if details := ev.Details(); details != nil {
		if v, ok := details["categories"]; ok {
			details["categories"] = Categories(v)
		}
		if v, ok := details["risk"]; ok {
			details["risk"] = Risk(v)
		}
	}

	delete(ev, vendorKey)
	return event.Event{
		vendorKey: n.vendor,
		n.vendor:  map[string]any(ev),
	}
}

// NormalizeAll normalizes events in order.
func (n *Normalizer) NormalizeAll(raws []event.Event) []event.Event {
	out := make([]event.Event, len(raws))
	for i, raw := range raws {
		out[i] = n.Normalize(raw)
	}
	return out
}

// rewrite applies fn to the value at path when every intermediate key is a map.
func rewrite(m map[string]any, path []string, fn func(any) any) {
	for i, key := range path {
		v, ok := m[key]
		if !ok {
			return
		}
		if i == len(path)-1 {
			m[key] = fn(v)
			return
		}
		next, ok := v.(map[string]any)
		if !ok {
			return
		}
		m = next
	}
}

func splitPaths(paths []string) [][]string {
	out := make([][]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, strings.Split(p, "."))
	}
	return out
}
