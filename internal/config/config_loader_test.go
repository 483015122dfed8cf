package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeJSONConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	data, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func newTestLoader(t *testing.T, cfg *Config) (*Loader, string) {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.json")
	if cfg != nil {
		writeJSONConfig(t, configPath, cfg)
	}
	loader, err := NewLoader(configPath, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = loader.Stop() })
	return loader, configPath
}

func TestNewLoader(t *testing.T) {
	loader, configPath := newTestLoader(t, DefaultConfig())
	assert.Equal(t, configPath, loader.Path())
	assert.NotNil(t, loader.watcher)
	assert.NotNil(t, loader.Viper())
}

func TestLoader_Load(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ping.Enabled = true
	cfg.Ping.Target = "1.1.1.1"
	cfg.ClearOnConnected = true

	loader, _ := newTestLoader(t, cfg)
	loaded, err := loader.Load()
	require.NoError(t, err)

	assert.True(t, loaded.Ping.Enabled)
	assert.Equal(t, "1.1.1.1", loaded.Ping.Target)
	assert.True(t, loaded.ClearOnConnected)
	assert.NotEmpty(t, loaded.DataDir, "Validate fills the data dir")
	assert.Same(t, loaded, loader.GetConfig())
}

func TestLoader_LoadCreatesDefaultFile(t *testing.T) {
	loader, configPath := newTestLoader(t, nil)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "www.google.com", cfg.Ping.Target)

	_, err = os.Stat(configPath)
	assert.NoError(t, err)
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
enabled: true
clear_on_scanning: true
action_on_tap: toggle_wifi
ping:
  enabled: true
  target: gateway.local
  retry: 2
source:
  kind: scenario
  scenario: /tmp/script.yaml
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.ClearOnScanning)
	assert.Equal(t, ActionToggleWifi, cfg.ActionOnTap)
	assert.Equal(t, "gateway.local", cfg.Ping.Target)
	assert.Equal(t, 2, cfg.Ping.Retry)
	assert.Equal(t, 10, cfg.Ping.Interval, "unset keys keep defaults")
	assert.Equal(t, SourceScenario, cfg.Source.Kind)
}

func TestLoadFromFile_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeJSONConfig(t, path, DefaultConfig())

	t.Setenv("WIFISTATE_PING_TARGET", "9.9.9.9")
	t.Setenv("WIFISTATE_DEBUG", "true")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "9.9.9.9", cfg.Ping.Target)
	assert.True(t, cfg.Debug)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ping.Timeout = 0
	path := filepath.Join(t.TempDir(), "config.json")
	writeJSONConfig(t, path, cfg)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoader_UpdateConfigAtomic(t *testing.T) {
	loader, configPath := newTestLoader(t, DefaultConfig())
	_, err := loader.Load()
	require.NoError(t, err)

	err = loader.UpdateConfigAtomic(func(cfg *Config) (*Config, error) {
		cfg.Ping.Enabled = true
		cfg.Ping.DisablePeriod = 5
		return cfg, nil
	})
	require.NoError(t, err)

	assert.True(t, loader.GetConfig().Ping.Enabled)

	fileData, err := os.ReadFile(configPath)
	require.NoError(t, err)
	var fileCfg Config
	require.NoError(t, json.Unmarshal(fileData, &fileCfg))
	assert.Equal(t, 5, fileCfg.Ping.DisablePeriod)

	_, err = os.Stat(configPath + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be cleaned up")
}

func TestLoader_UpdateConfigAtomic_DoesNotMutateCurrent(t *testing.T) {
	loader, _ := newTestLoader(t, DefaultConfig())
	before, err := loader.Load()
	require.NoError(t, err)

	err = loader.UpdateConfigAtomic(func(cfg *Config) (*Config, error) {
		cfg.Ping.Retry = 7
		return cfg, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, before.Ping.Retry)
	assert.Equal(t, 7, loader.GetConfig().Ping.Retry)
}

func TestLoader_UpdateConfigAtomic_Invalid(t *testing.T) {
	loader, _ := newTestLoader(t, DefaultConfig())
	_, err := loader.Load()
	require.NoError(t, err)

	err = loader.UpdateConfigAtomic(func(cfg *Config) (*Config, error) {
		cfg.ActionOnTap = "launch_rockets"
		return cfg, nil
	})
	require.Error(t, err)
	assert.Equal(t, ActionOpenDialog, loader.GetConfig().ActionOnTap)
}

func TestLoader_UpdateConfigAtomic_UpdateFunctionError(t *testing.T) {
	loader, _ := newTestLoader(t, DefaultConfig())
	_, err := loader.Load()
	require.NoError(t, err)

	err = loader.UpdateConfigAtomic(func(cfg *Config) (*Config, error) {
		return nil, assert.AnError
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update function failed")
}

func TestLoader_ConcurrentUpdates(t *testing.T) {
	loader, _ := newTestLoader(t, DefaultConfig())
	_, err := loader.Load()
	require.NoError(t, err)

	retries := []int{1, 2, 4, 5, 6}
	var wg sync.WaitGroup
	for _, r := range retries {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			assert.NoError(t, loader.UpdateConfigAtomic(func(cfg *Config) (*Config, error) {
				cfg.Ping.Retry = r
				return cfg, nil
			}))
		}(r)
	}
	wg.Wait()

	assert.Contains(t, retries, loader.GetConfig().Ping.Retry)
}

func TestLoader_FileWatching(t *testing.T) {
	loader, configPath := newTestLoader(t, DefaultConfig())
	_, err := loader.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 10)
	require.NoError(t, loader.StartWatching(func(cfg *Config) error {
		changed <- cfg
		return nil
	}))

	modified := DefaultConfig()
	modified.ClearOnDisabled = true
	writeJSONConfig(t, configPath, modified)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.ClearOnDisabled {
				assert.True(t, loader.GetConfig().ClearOnDisabled)
				return
			}
		case <-deadline:
			t.Fatal("configuration change was not observed")
		}
	}
}

func TestLoader_SkipNextReload(t *testing.T) {
	loader, _ := newTestLoader(t, DefaultConfig())
	_, err := loader.Load()
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	require.NoError(t, loader.StartWatching(func(*Config) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, loader.UpdateConfigAtomic(func(cfg *Config) (*Config, error) {
		cfg.Debug = true
		return cfg, nil
	}))
	time.Sleep(500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls, "programmatic updates are not reported back")
}

func TestLoader_StopIsIdempotent(t *testing.T) {
	loader, _ := newTestLoader(t, DefaultConfig())
	assert.NoError(t, loader.Stop())
	assert.NoError(t, loader.Stop())
}
