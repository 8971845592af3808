package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndStateShow(t *testing.T) {
	dir := t.TempDir()
	tenants := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(tenants, []byte(`
clients:
  - name: acme
    client_id: id
    client_secret: secret
    interval: 30
`), 0o644))
	stateDir := filepath.Join(dir, "state")
	require.NoError(t, os.MkdirAll(stateDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stateDir, "acme.json"),
		[]byte(`{"last_ts":"2024-02-01T00:00:00Z","anchor":"abc"}`), 0o644))
	settings := filepath.Join(dir, "secpoll.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("events_dir: "+filepath.Join(dir, "events")+"\nstate:\n  dir: "+stateDir+"\n"), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"validate", "--settings", settings, "--tenants", tenants})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "1 tenant(s) OK")
	assert.Contains(t, out.String(), "acme")
	assert.Contains(t, out.String(), filepath.Join(dir, "events", "acme.log"))

	out.Reset()
	rootCmd.SetArgs([]string{"state", "show", "acme", "initech", "--settings", settings})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `"last_ts": "2024-02-01T00:00:00Z"`)
	assert.Contains(t, out.String(), `"initech": null`)
}
