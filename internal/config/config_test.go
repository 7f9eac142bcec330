package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.ProgressDuration())
	assert.Equal(t, 150*time.Millisecond, cfg.UserScrollWindow())
	assert.Equal(t, 10*time.Second, cfg.MetricInterval())
	assert.Equal(t, 5*time.Second, cfg.TraceBatchTimeout())
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0.5, cfg.Progress.BumpFraction)
	assert.Len(t, cfg.AgentKeys(), len(cfg.Agents))
}

func TestLoad(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("TRADEAI_API_URL", "")
	t.Setenv("TRADEAI_STREAM_URL", "")
	t.Setenv("TRADEAI_USER_KEY", "")

	t.Run("empty path keeps defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tradeai.toml")
		data := `
backend = "remote"
api_url = "http://api.local"
stream_url = "ws://api.local/chat/stream"

[progress]
bump_fraction = 0.25

[[agents]]
key = "risk_agent"
name = "Risk"
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())
		assert.Equal(t, BackendRemote, cfg.Backend)
		assert.Equal(t, 0.25, cfg.Progress.BumpFraction)
		assert.Equal(t, 5000, cfg.Progress.DurationMs)
		assert.Equal(t, []string{"risk_agent"}, cfg.AgentKeys())
		assert.Equal(t, "Risk", cfg.AgentNames()["risk_agent"])
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("TRADEAI_USER_KEY", "0xabc")
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "0xabc", cfg.UserKey)
		assert.Equal(t, "ant-key", cfg.AnthropicKey)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown backend", func(c *Config) { c.Backend = "grok" }, false},
		{"remote without urls", func(c *Config) { c.Backend = BackendRemote }, false},
		{"zero fraction", func(c *Config) { c.Progress.BumpFraction = 0 }, false},
		{"fraction above one", func(c *Config) { c.Progress.BumpFraction = 1.5 }, false},
		{"loading target above 100", func(c *Config) { c.Progress.LoadingTarget = 101 }, false},
		{"zero duration", func(c *Config) { c.Progress.DurationMs = 0 }, false},
		{"negative metric interval", func(c *Config) { c.Telemetry.MetricIntervalMs = -1 }, false},
		{"telemetry disabled", func(c *Config) { c.Telemetry.Enabled = false }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
