package relay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch-relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRelay_Config_LoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
upstream_url: http://upstream:8080
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, defaultListenAddr, cfg.ListenAddr)
	require.Equal(t, defaultMaxConcurrency, cfg.Sender.MaxConcurrency)
	require.Equal(t, uint64(defaultMaxRetries), cfg.Sender.MaxRetries)
}

func TestRelay_Config_LoadParsesBatchKnobs(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
listen_addr: ":9000"
upstream_url: http://upstream:8080
batch:
  max_items: 25
  max_bytes: 262144
  max_buffer_size: 1000
  max_keys: 50
  send_interval: 150ms
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddr)
	require.Equal(t, 25, cfg.Batch.MaxItems)
	require.Equal(t, 262144, cfg.Batch.MaxBytes)
	require.Equal(t, 1000, cfg.Batch.MaxBufferSize)
	require.Equal(t, 50, cfg.Batch.MaxKeys)
	require.Equal(t, 150*time.Millisecond, cfg.Batch.SendInterval)
}

func TestRelay_Config_LoadRejectsMissingOrInvalidUpstream(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := writeConfigFile(t, `listen_addr: ":9000"`)
	_, err = LoadConfig(path)
	require.Error(t, err)

	path = writeConfigFile(t, `upstream_url: "not a url"`)
	_, err = LoadConfig(path)
	require.Error(t, err)
}
