package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func storeImplementations(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, client := setupTestRedis(t)
	t.Cleanup(func() { client.Close() })

	return map[string]Store{
		"file":  fs,
		"redis": NewRedisStoreWithClient(client, ""),
	}
}

func TestStore_LoadMissingIsEmpty(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			wm, err := store.Load(context.Background(), "acme")
			require.NoError(t, err)
			assert.True(t, wm.IsZero())
		})
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(ctx, "acme", Watermark{LastTimestamp: "2024-01-01T00:00:00Z", Cursor: "abc"}))
			require.NoError(t, store.Save(ctx, "acme", Watermark{LastTimestamp: "2024-01-02T00:00:00Z"}))

			wm, err := store.Load(ctx, "acme")
			require.NoError(t, err)
			assert.Equal(t, Watermark{LastTimestamp: "2024-01-02T00:00:00Z"}, wm)

			other, err := store.Load(ctx, "globex")
			require.NoError(t, err)
			assert.True(t, other.IsZero())
		})
	}
}

func TestStore_RejectsUnsafeNames(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			for _, tenant := range []string{"", "../etc", "a/b", " spaced"} {
				_, err := store.Load(ctx, tenant)
				assert.ErrorIs(t, err, ErrInvalidTenant)
				assert.ErrorIs(t, store.Save(ctx, tenant, Watermark{}), ErrInvalidTenant)
			}
		})
	}
}

func TestFileStore_ReadsLegacyDocument(t *testing.T) {
	dir := t.TempDir()
	legacy := `{
  "last_ts": "2024-03-01T10:00:00.000000Z",
  "anchor": "eyJvZmZzZXQiOjIwMH0="
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "acme.json"), []byte(legacy), 0o644))

	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	wm, err := fs.Load(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T10:00:00.000000Z", wm.LastTimestamp)
	assert.Equal(t, "eyJvZmZzZXQiOjIwMH0=", wm.Cursor)
}

func TestFileStore_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "acme.json"), []byte("{"), 0o644))

	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	_, err = fs.Load(context.Background(), "acme")
	assert.Error(t, err)
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, fs.Save(context.Background(), "acme", Watermark{LastTimestamp: "x"}))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "acme.json", entries[0].Name())
}

func TestRedisStore_KeyLayout(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer client.Close()

	store := NewRedisStoreWithClient(client, "test:")
	require.NoError(t, store.Save(context.Background(), "acme", Watermark{LastTimestamp: "t1", Cursor: "c1"}))

	assert.Equal(t, "t1", mr.HGet("test:acme", "last_ts"))
	assert.Equal(t, "c1", mr.HGet("test:acme", "anchor"))
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore("not-a-valid-url", "")
	assert.Error(t, err)
}
