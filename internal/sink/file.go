package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gyaneshwarpardhi/secpoll/internal/event"
)

// PathFunc resolves the log file of a tenant.
type PathFunc func(tenant string) string

// File appends NDJSON lines to one log file per tenant. Each Append opens the
// file with O_APPEND, writes the whole batch and fsyncs before returning.
type File struct {
	mu     sync.Mutex
	path   PathFunc
	logger *slog.Logger
}

// NewFile creates a file sink resolving destinations through path.
func NewFile(path PathFunc, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	return &File{path: path, logger: logger}
}

// Ensure creates the tenant's log file if it does not exist yet.
func (f *File) Ensure(tenant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(tenant)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	file, err := f.open(path)
	if err != nil {
		return err
	}
	f.logger.Info("tenant log created", "tenant", tenant, "path", path)
	return file.Close()
}

func (f *File) Append(_ context.Context, tenant string, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("file sink: marshal: %w", err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(tenant)
	file, err := f.open(path)
	if err != nil {
		return err
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		file.Close()
		return fmt.Errorf("file sink: write %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("file sink: sync %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("file sink: close %s: %w", path, err)
	}

	f.logger.Debug("events appended", "tenant", tenant, "count", len(events), "path", path)
	return nil
}

func (f *File) Close() error { return nil }

func (f *File) open(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("file sink: mkdir %s: %w", dir, err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("file sink: open %s: %w", path, err)
	}
	return file, nil
}
