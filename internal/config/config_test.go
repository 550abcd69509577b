package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Sender.Workers)
	assert.Equal(t, 3, cfg.Sender.SubmitAttempts)
	assert.Equal(t, time.Second, cfg.Sender.SubmitDelay)
	assert.Equal(t, 250, cfg.Reconcile.PageSize)
	assert.Equal(t, 15, cfg.Cluster.Attempts)
	assert.Equal(t, "camera-1", cfg.Sender.DefaultCamera)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Database.Enabled())
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
backend:
  url: http://backend:9000
  token: secret
sender:
  workers: 4
  submit_delay: 250ms
reconcile:
  page_size: 500
database:
  host: db
  name: fd
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("FD_SENDER_WORKERS", "7")
	t.Setenv("FD_BACKEND_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000", cfg.Backend.URL)
	assert.Equal(t, "from-env", cfg.Backend.Token)
	assert.Equal(t, 7, cfg.Sender.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Sender.SubmitDelay)
	assert.Equal(t, 500, cfg.Reconcile.PageSize)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, "postgres://:@db:5432/fd?sslmode=disable", cfg.Database.DSN())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}
