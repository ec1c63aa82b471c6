package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults fill missing keys", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, `
[sync]
strategy = "p2p"
timeout = "3s"

[p2p]
peer = "10.0.0.1:8333"
`))
		require.NoError(t, err)

		assert.Equal(t, "btc", cfg.Chain.Network)
		assert.Equal(t, StrategyP2P, cfg.Sync.Strategy)
		assert.Equal(t, 3*time.Second, cfg.Sync.Timeout.Duration)
		assert.Equal(t, 8, cfg.Sync.MaxRounds)
		assert.Equal(t, BackendFile, cfg.Cache.Backend)
		assert.Equal(t, 2*time.Hour, cfg.Scan.BirthdayMargin.Duration)
		assert.Equal(t, 7*time.Second, cfg.Scan.ProgressInterval.Duration)
	})

	t.Run("undecoded keys are rejected", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, `
[cache]
backend = "file"
dirr = "/tmp"
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "undecoded fields")
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, `
[sync]
timeout = "soon"
`))
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"ok", func(*Config) {}, ""},
		{"network", func(c *Config) { c.Chain.Network = "ltc" }, "chain.network"},
		{"strategy", func(c *Config) { c.Sync.Strategy = "rest" }, "sync.strategy"},
		{"timeout", func(c *Config) { c.Sync.Timeout.Duration = 0 }, "sync.timeout"},
		{"rounds", func(c *Config) { c.Sync.MaxRounds = 0 }, "sync.max_rounds"},
		{"backend", func(c *Config) { c.Cache.Backend = "s3" }, "cache.backend"},
		{"dir", func(c *Config) { c.Cache.Dir = "" }, "cache.dir"},
		{"mongo", func(c *Config) { c.Cache.Backend = BackendMongo; c.DB.URI = "" }, "db:"},
		{"margin", func(c *Config) { c.Scan.BirthdayMargin.Duration = -time.Second }, "birthday_margin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
