package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilewatch/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, CurrentConfigVersion, cfg.Version)
	assert.Equal(t, "ws://127.0.0.1:9000/ws", cfg.Controller.URL)
	assert.Equal(t, 2*time.Second, cfg.Controller.ReconnectDelay)
	assert.Equal(t, 300*time.Millisecond, cfg.Controller.ResyncDelay)
	assert.Equal(t, 256, cfg.Controller.QueueLimit)
	assert.Equal(t, 60, cfg.Telemetry.HistorySize)
	assert.Equal(t, 10*time.Second, cfg.Commands.AckTimeout)
	assert.Equal(t, 30*time.Second, cfg.Commands.Retention)
	assert.Equal(t, "auto", cfg.Output.Color)

	require.NoError(t, Validate(cfg))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "wss scheme accepted", mutate: func(c *Config) { c.Controller.URL = "wss://ctl:9443/ws" }},
		{name: "empty url", mutate: func(c *Config) { c.Controller.URL = "" }, wantErr: true},
		{name: "http scheme rejected", mutate: func(c *Config) { c.Controller.URL = "http://ctl:9000/ws" }, wantErr: true},
		{name: "hostless url rejected", mutate: func(c *Config) { c.Controller.URL = "ws://" }, wantErr: true},
		{name: "zero reconnect delay", mutate: func(c *Config) { c.Controller.ReconnectDelay = 0 }, wantErr: true},
		{name: "zero resync delay", mutate: func(c *Config) { c.Controller.ResyncDelay = 0 }, wantErr: true},
		{name: "zero history size", mutate: func(c *Config) { c.Telemetry.HistorySize = 0 }, wantErr: true},
		{name: "negative ack timeout", mutate: func(c *Config) { c.Commands.AckTimeout = -time.Second }, wantErr: true},
		{name: "zero ack timeout allowed", mutate: func(c *Config) { c.Commands.AckTimeout = 0 }},
		{name: "negative retention", mutate: func(c *Config) { c.Commands.Retention = -time.Second }, wantErr: true},
		{name: "bad color mode", mutate: func(c *Config) { c.Output.Color = "maybe" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadMergesPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(`
version: 1
controller:
  url: ws://lab:9000/ws
commands:
  ack_timeout: 5s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://lab:9000/ws", cfg.Controller.URL)
	assert.Equal(t, 5*time.Second, cfg.Commands.AckTimeout)
	// Unspecified fields keep the defaults.
	assert.Equal(t, 2*time.Second, cfg.Controller.ReconnectDelay)
	assert.Equal(t, 60, cfg.Telemetry.HistorySize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestLoadInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(`
controller:
  url: http://wrong:9000
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestFindPrefersExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	found, err := Find(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)

	_, err = Find(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit path that does not exist is an error")
}

func TestLoadOrDefaultWithoutAnyFile(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Controller.URL, cfg.Controller.URL)
}
