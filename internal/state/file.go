package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps one JSON document per tenant under dir.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("state: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file holding tenant's watermark.
func (s *FileStore) Path(tenant string) string {
	return filepath.Join(s.dir, tenant+".json")
}

func (s *FileStore) Load(_ context.Context, tenant string) (Watermark, error) {
	if err := checkTenant(tenant); err != nil {
		return Watermark{}, err
	}
	payload, err := os.ReadFile(s.Path(tenant))
	if err != nil {
		if os.IsNotExist(err) {
			return Watermark{}, nil
		}
		return Watermark{}, fmt.Errorf("state: read %s: %w", tenant, err)
	}
	var wm Watermark
	if err := json.Unmarshal(payload, &wm); err != nil {
		return Watermark{}, fmt.Errorf("state: decode %s: %w", tenant, err)
	}
	return wm, nil
}

// Save writes to a temporary file, syncs it and renames it over the previous
// document, so a crash leaves either the old or the new watermark on disk.
func (s *FileStore) Save(_ context.Context, tenant string, wm Watermark) error {
	if err := checkTenant(tenant); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(wm, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", tenant, err)
	}

	tmp, err := os.CreateTemp(s.dir, tenant+".*.tmp")
	if err != nil {
		return fmt.Errorf("state: temp file for %s: %w", tenant, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(append(payload, '\n')); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("state: write %s: %w", tenant, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("state: sync %s: %w", tenant, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("state: close %s: %w", tenant, err)
	}
	if err := os.Rename(tmpName, s.Path(tenant)); err != nil {
		cleanup()
		return fmt.Errorf("state: replace %s: %w", tenant, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
