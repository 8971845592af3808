// Package state persists the per-tenant resume point of the collector.
package state

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Watermark is the durable resume point of one tenant.
// The JSON keys match the state files written by earlier collector releases.
type Watermark struct {
	LastTimestamp string `json:"last_ts,omitempty"`
	Cursor        string `json:"anchor,omitempty"`
}

// IsZero reports whether nothing has been persisted yet.
func (w Watermark) IsZero() bool {
	return w.LastTimestamp == "" && w.Cursor == ""
}

// Store loads and saves watermarks keyed by tenant name.
type Store interface {
	// Load returns the persisted watermark, or the zero Watermark if none exists.
	Load(ctx context.Context, tenant string) (Watermark, error)
	// Save durably overwrites the tenant's watermark.
	Save(ctx context.Context, tenant string, wm Watermark) error
	Close() error
}

// ErrInvalidTenant is returned for names that cannot be used as a storage key.
var ErrInvalidTenant = errors.New("state: invalid tenant name")

var tenantNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidTenant reports whether name is safe to use as a file name and a
// storage key.
func ValidTenant(name string) bool {
	return tenantNameRE.MatchString(name)
}

func checkTenant(tenant string) error {
	if !ValidTenant(tenant) {
		return fmt.Errorf("%w: %q", ErrInvalidTenant, tenant)
	}
	return nil
}
