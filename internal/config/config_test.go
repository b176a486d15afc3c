package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rankscope/rankscope/internal/serp"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "https://api.dataforseo.com/v3", cfg.API.BaseURL)
	require.Equal(t, "google", cfg.API.SerpType)
	require.Equal(t, 10, cfg.Live.Workers)
	require.Equal(t, 600, cfg.Live.RequestsPerMinute)
	require.Equal(t, 100, cfg.Standard.BatchSize)
	require.Equal(t, 300, cfg.Standard.SubmitDelayMs)
	require.Equal(t, 300*time.Millisecond, cfg.SubmitDelay())
	require.Equal(t, 12, cfg.Standard.FetchWorkers)
	require.Equal(t, string(serp.DeviceDesktop), cfg.Query.Device)
	require.Equal(t, 100, cfg.Query.Depth)
	require.True(t, cfg.Query.IncludeSubdomains)
	require.Equal(t, "rank_records", cfg.DB.Table)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
api:
  login: user
  password: secret
live:
  requests_per_minute: 120
standard:
  batch_size: 25
query:
  device: mobile
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "user", cfg.API.Login)
	require.Equal(t, 120, cfg.Live.RequestsPerMinute)
	require.Equal(t, 25, cfg.Standard.BatchSize)
	require.Equal(t, "mobile", cfg.Query.Device)
}

func TestValidate_Errors(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }},
		{"zero workers", func(c *Config) { c.Live.Workers = 0 }},
		{"zero rpm", func(c *Config) { c.Live.RequestsPerMinute = 0 }},
		{"zero batch size", func(c *Config) { c.Standard.BatchSize = 0 }},
		{"bad device", func(c *Config) { c.Query.Device = "tablet" }},
		{"zero depth", func(c *Config) { c.Query.Depth = 0 }},
		{"server without port", func(c *Config) { c.Server.Enabled = true; c.Server.Port = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
