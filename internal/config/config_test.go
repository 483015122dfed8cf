package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Enabled)
	assert.False(t, cfg.Clearable)
	assert.False(t, cfg.ClearOnDisabled)
	assert.False(t, cfg.ClearOnScanning)
	assert.False(t, cfg.ClearOnConnected)
	assert.True(t, cfg.ShowMobileData)
	assert.Equal(t, ActionOpenDialog, cfg.ActionOnTap)

	assert.False(t, cfg.Ping.Enabled)
	assert.Equal(t, "www.google.com", cfg.Ping.Target)
	assert.Equal(t, 3, cfg.Ping.Timeout)
	assert.Equal(t, 10, cfg.Ping.Interval)
	assert.Equal(t, 3, cfg.Ping.Retry)
	assert.True(t, cfg.Ping.OnMobile)
	assert.False(t, cfg.Ping.DisableWifiOnFail)
	assert.Zero(t, cfg.Ping.DisablePeriod)
	assert.Zero(t, cfg.Ping.MaxCycles)
	assert.Equal(t, 60, cfg.Ping.CycleWindow)

	require.NoError(t, cfg.Validate())
}

func TestValidate_FillsMissingSections(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, ActionOpenDialog, cfg.ActionOnTap)
	assert.NotNil(t, cfg.Ping)
	assert.Equal(t, SourceNmcli, cfg.Source.Kind)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown tap action", func(c *Config) { c.ActionOnTap = "explode" }},
		{"zero ping timeout", func(c *Config) { c.Ping.Timeout = 0 }},
		{"negative retry", func(c *Config) { c.Ping.Retry = -1 }},
		{"negative disable period", func(c *Config) { c.Ping.DisablePeriod = -5 }},
		{"negative cycle cap", func(c *Config) { c.Ping.MaxCycles = -1 }},
		{"bad ping target", func(c *Config) { c.Ping.Target = "not a host!" }},
		{"bad status listen", func(c *Config) { c.Status.Listen = "nowhere" }},
		{"unknown source", func(c *Config) { c.Source.Kind = "carrier-pigeon" }},
		{"scenario without file", func(c *Config) { c.Source.Kind = SourceScenario }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_AcceptsIPAndEmptyTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ping.Target = "192.168.0.1"
	assert.NoError(t, cfg.Validate())

	cfg.Ping.Target = ""
	assert.NoError(t, cfg.Validate())

	cfg.Status.Listen = DefaultStatusAddr()
	assert.NoError(t, cfg.Validate())
}

func TestPingWanted(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.PingWanted(false))

	cfg.Ping.Enabled = true
	assert.True(t, cfg.PingWanted(false))
	assert.True(t, cfg.PingWanted(true))

	cfg.Ping.OnMobile = false
	assert.False(t, cfg.PingWanted(true))
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()

	clone.Ping.Target = "changed"
	clone.Logging.Level = "debug"
	clone.Source.Kind = SourceScenario

	assert.Equal(t, "www.google.com", cfg.Ping.Target)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, SourceNmcli, cfg.Source.Kind)
	assert.Nil(t, (*Config)(nil).Clone())
}
