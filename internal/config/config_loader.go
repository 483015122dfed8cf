package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is the prefix of environment overrides, e.g. WIFISTATE_PING_TARGET.
const EnvPrefix = "WIFISTATE"

// NewViper returns a viper instance preloaded with every default key so that
// environment overrides and flag bindings resolve for nested fields.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return v
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("enabled", d.Enabled)
	v.SetDefault("clearable", d.Clearable)
	v.SetDefault("clear_on_disabled", d.ClearOnDisabled)
	v.SetDefault("clear_on_scanning", d.ClearOnScanning)
	v.SetDefault("clear_on_connected", d.ClearOnConnected)
	v.SetDefault("show_mobile_data", d.ShowMobileData)
	v.SetDefault("action_on_tap", d.ActionOnTap)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("enable_tray", d.EnableTray)
	v.SetDefault("data_dir", d.DataDir)

	v.SetDefault("ping.enabled", d.Ping.Enabled)
	v.SetDefault("ping.target", d.Ping.Target)
	v.SetDefault("ping.timeout", d.Ping.Timeout)
	v.SetDefault("ping.interval", d.Ping.Interval)
	v.SetDefault("ping.retry", d.Ping.Retry)
	v.SetDefault("ping.on_mobile", d.Ping.OnMobile)
	v.SetDefault("ping.disable_wifi_on_fail", d.Ping.DisableWifiOnFail)
	v.SetDefault("ping.disable_period", d.Ping.DisablePeriod)
	v.SetDefault("ping.max_cycles", d.Ping.MaxCycles)
	v.SetDefault("ping.cycle_window", d.Ping.CycleWindow)
	v.SetDefault("ping.cycle_cooldown", d.Ping.CycleCooldown)

	v.SetDefault("status.listen", d.Status.Listen)

	v.SetDefault("source.kind", d.Source.Kind)
	v.SetDefault("source.scenario", d.Source.Scenario)
	v.SetDefault("source.device", d.Source.Device)
	v.SetDefault("source.poll_interval", d.Source.PollInterval)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.enable_file", d.Logging.EnableFile)
	v.SetDefault("logging.enable_console", d.Logging.EnableConsole)
	v.SetDefault("logging.filename", d.Logging.Filename)
	v.SetDefault("logging.log_dir", d.Logging.LogDir)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.json_format", d.Logging.JSONFormat)
}

// LoadWithViper reads path (JSON or YAML by extension) through v and returns
// the validated configuration. An empty path yields defaults plus environment
// and flag overrides.
func LoadWithViper(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads path with a fresh viper instance.
func LoadFromFile(path string) (*Config, error) {
	return LoadWithViper(NewViper(), path)
}

// Loader manages configuration loading, watching, and atomic updates.
type Loader struct {
	mu             sync.Mutex
	configPath     string
	config         *Config
	v              *viper.Viper
	watcher        *fsnotify.Watcher
	skipNextReload bool
	onChange       func(*Config) error
	logger         *zap.Logger
	stopChan       chan struct{}
	stopOnce       sync.Once
}

// NewLoader creates a new configuration loader with file watching.
func NewLoader(configPath string, logger *zap.Logger) (*Loader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Loader{
		configPath: configPath,
		v:          NewViper(),
		watcher:    watcher,
		logger:     logger.Named("config"),
		stopChan:   make(chan struct{}),
	}, nil
}

// Viper exposes the underlying viper instance so callers can bind flags
// before Load.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Path returns the watched configuration file.
func (l *Loader) Path() string {
	return l.configPath
}

// Load loads the initial configuration, writing a default file first when
// none exists.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); errors.Is(err, os.ErrNotExist) {
			if err := writeConfigToFile(DefaultConfig(), l.configPath); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
			l.logger.Info("Created default configuration file",
				zap.String("path", l.configPath))
		}
	}

	cfg, err := LoadWithViper(l.v, l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l.config = cfg
	return cfg, nil
}

// StartWatching starts watching the configuration file for changes.
// The onChange callback is called when the configuration file changes.
func (l *Loader) StartWatching(onChange func(*Config) error) error {
	if l.configPath == "" {
		return nil
	}

	l.mu.Lock()
	l.onChange = onChange
	l.mu.Unlock()

	// Editors often replace the file, so the directory is watched.
	if err := l.watcher.Add(filepath.Dir(l.configPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go l.watchLoop()

	l.logger.Info("Started watching configuration file",
		zap.String("path", l.configPath))
	return nil
}

func (l *Loader) watchLoop() {
	target := filepath.Clean(l.configPath)
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				l.handleFileChange()
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("File watcher error", zap.Error(err))

		case <-l.stopChan:
			return
		}
	}
}

func (l *Loader) handleFileChange() {
	l.mu.Lock()
	if l.skipNextReload {
		l.logger.Debug("Skipping file reload (programmatic change)")
		l.skipNextReload = false
		l.mu.Unlock()
		return
	}

	cfg, err := LoadWithViper(l.v, l.configPath)
	if err != nil {
		l.mu.Unlock()
		l.logger.Error("Failed to reload configuration",
			zap.String("path", l.configPath),
			zap.Error(err))
		return
	}

	oldConfig := l.config
	l.config = cfg
	onChange := l.onChange
	l.mu.Unlock()

	if onChange != nil {
		if err := onChange(cfg); err != nil {
			l.logger.Error("Failed to apply configuration changes", zap.Error(err))
			l.mu.Lock()
			l.config = oldConfig
			l.mu.Unlock()
			return
		}
	}

	l.logger.Info("Configuration reloaded",
		zap.Bool("enabled", cfg.Enabled),
		zap.Bool("ping", cfg.Ping.Enabled))
}

// UpdateConfigAtomic applies updateFn to a copy of the current config,
// validates it and replaces the file through a temp file and rename. The
// resulting file event is not reported back to the onChange callback.
func (l *Loader) UpdateConfigAtomic(updateFn func(*Config) (*Config, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.config == nil {
		return errors.New("configuration not loaded")
	}

	newConfig, err := updateFn(l.config.Clone())
	if err != nil {
		return fmt.Errorf("update function failed: %w", err)
	}
	if err := newConfig.Validate(); err != nil {
		return err
	}

	if l.configPath != "" {
		tempPath := l.configPath + ".tmp"
		if err := writeConfigToFile(newConfig, tempPath); err != nil {
			return fmt.Errorf("failed to write temp config: %w", err)
		}

		l.skipNextReload = true
		if err := os.Rename(tempPath, l.configPath); err != nil {
			l.skipNextReload = false
			os.Remove(tempPath)
			return fmt.Errorf("failed to rename config file: %w", err)
		}
	}

	l.config = newConfig
	l.logger.Info("Configuration updated atomically",
		zap.String("path", l.configPath))
	return nil
}

// ShouldSkipReload reports and resets the programmatic-change flag.
func (l *Loader) ShouldSkipReload() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.skipNextReload {
		l.skipNextReload = false
		return true
	}
	return false
}

func writeConfigToFile(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// GetConfig returns the current configuration (thread-safe).
func (l *Loader) GetConfig() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config
}

// Stop stops the file watcher.
func (l *Loader) Stop() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stopChan)
		if cerr := l.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
			return
		}
		l.logger.Info("Stopped configuration file watcher")
	})
	return err
}
