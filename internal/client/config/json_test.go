package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	path := writeTempJSON(t, dir, "agent.json", map[string]any{
		"worker_addr":      "worker:7000",
		"sync_interval":    "45s",
		"max_batch_size":   250,
		"patch_mode":       "batched",
		"discard_rejected": true,
		"s3_path_style":    false,
	})

	t.Run("loads from flags", func(t *testing.T) {
		os.Args = []string{"agent", "-config", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "worker:7000", cfg.WorkerAddr)
		assert.Equal(t, 45*time.Second, cfg.SyncInterval)
		assert.Equal(t, 250, cfg.MaxBatchSize)
		assert.Equal(t, PatchBatched, cfg.PatchMode)
		assert.True(t, cfg.DiscardRejected)
		assert.False(t, cfg.S3UsePathStyle)
		// absent keys keep their defaults
		assert.Equal(t, 10, cfg.MaxAttempts)
		assert.Equal(t, 5*time.Second, cfg.OnlineCheckInterval)
	})

	t.Run("no config flag leaves values alone", func(t *testing.T) {
		os.Args = []string{"agent"}

		cfg := &Config{WorkerAddr: "keep:1", SyncInterval: 42 * time.Second}
		parseJson(cfg)

		assert.Equal(t, "keep:1", cfg.WorkerAddr)
		assert.Equal(t, 42*time.Second, cfg.SyncInterval)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		os.Args = []string{"agent", "-c", bad}

		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
