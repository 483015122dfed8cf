package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

const (
	defaultDataDirName = ".wifistate"
	defaultStatusAddr  = "127.0.0.1:7787"
)

// Tap actions for the status indicator.
const (
	ActionOpenDialog   = "open_dialog"
	ActionToggleWifi   = "toggle_wifi"
	ActionWifiSettings = "wifi_settings"
	ActionReenableWifi = "reenable_wifi"
)

// Signal source kinds.
const (
	SourceNmcli    = "nmcli"
	SourceScenario = "scenario"
)

// Config is the full engine configuration. Every field is hot-reloadable
// except DataDir, Status.Listen and Source.
type Config struct {
	// Enabled turns the whole indicator on or off.
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// Clearable makes the indicator dismissable instead of ongoing.
	Clearable        bool `json:"clearable" mapstructure:"clearable"`
	ClearOnDisabled  bool `json:"clear_on_disabled" mapstructure:"clear_on_disabled"`
	ClearOnScanning  bool `json:"clear_on_scanning" mapstructure:"clear_on_scanning"`
	ClearOnConnected bool `json:"clear_on_connected" mapstructure:"clear_on_connected"`
	ShowMobileData   bool `json:"show_mobile_data" mapstructure:"show_mobile_data"`

	ActionOnTap string `json:"action_on_tap" mapstructure:"action_on_tap" validate:"oneof=open_dialog toggle_wifi wifi_settings reenable_wifi"`

	// Debug appends probe counters to the indicator body.
	Debug bool `json:"debug" mapstructure:"debug"`

	EnableTray bool   `json:"enable_tray" mapstructure:"enable_tray"`
	DataDir    string `json:"data_dir" mapstructure:"data_dir"`

	Ping    *PingConfig   `json:"ping" mapstructure:"ping" validate:"required"`
	Status  *StatusConfig `json:"status" mapstructure:"status" validate:"required"`
	Source  *SourceConfig `json:"source" mapstructure:"source" validate:"required"`
	Logging *LogConfig    `json:"logging" mapstructure:"logging" validate:"required"`
}

// PingConfig configures the reachability monitor. Timeout and Interval are in
// seconds; DisablePeriod, CycleWindow and CycleCooldown are in minutes.
type PingConfig struct {
	Enabled           bool   `json:"enabled" mapstructure:"enabled"`
	Target            string `json:"target" mapstructure:"target" validate:"omitempty,hostname_rfc1123|ip"`
	Timeout           int    `json:"timeout" mapstructure:"timeout" validate:"min=1,max=60"`
	Interval          int    `json:"interval" mapstructure:"interval" validate:"min=1,max=3600"`
	Retry             int    `json:"retry" mapstructure:"retry" validate:"min=0,max=20"`
	OnMobile          bool   `json:"on_mobile" mapstructure:"on_mobile"`
	DisableWifiOnFail bool   `json:"disable_wifi_on_fail" mapstructure:"disable_wifi_on_fail"`
	DisablePeriod     int    `json:"disable_period" mapstructure:"disable_period" validate:"min=0,max=1440"`
	// MaxCycles caps automatic radio cycles within CycleWindow; 0 means no
	// limit. Hitting the cap suspends automatic cycles for CycleCooldown.
	MaxCycles     int `json:"max_cycles" mapstructure:"max_cycles" validate:"min=0,max=100"`
	CycleWindow   int `json:"cycle_window" mapstructure:"cycle_window" validate:"min=1,max=1440"`
	CycleCooldown int `json:"cycle_cooldown" mapstructure:"cycle_cooldown" validate:"min=0,max=1440"`
}

// StatusConfig configures the local status server. An empty Listen disables it.
type StatusConfig struct {
	Listen string `json:"listen" mapstructure:"listen" validate:"omitempty,hostname_port"`
}

// SourceConfig selects where raw signals come from.
type SourceConfig struct {
	Kind string `json:"kind" mapstructure:"kind" validate:"oneof=nmcli scenario"`
	// Scenario is the YAML script replayed by the scenario source.
	Scenario string `json:"scenario,omitempty" mapstructure:"scenario" validate:"required_if=Kind scenario"`
	// Device restricts the nmcli source to one interface; empty picks the
	// first Wi-Fi device.
	Device string `json:"device,omitempty" mapstructure:"device"`
	// PollInterval is the nmcli polling period in seconds.
	PollInterval int `json:"poll_interval" mapstructure:"poll_interval" validate:"min=1,max=300"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level" validate:"oneof=trace debug info warn error"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable_file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable_console"`
	Filename      string `json:"filename" mapstructure:"filename"`
	LogDir        string `json:"log_dir,omitempty" mapstructure:"log_dir"`
	MaxSize       int    `json:"max_size" mapstructure:"max_size"`       // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max_backups"` // number of backup files
	MaxAge        int    `json:"max_age" mapstructure:"max_age"`         // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json_format"`
}

// DefaultLogConfig returns console-only info logging.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:         "info",
		EnableFile:    false,
		EnableConsole: true,
		Filename:      "wifistate.log",
		MaxSize:       10,
		MaxBackups:    5,
		MaxAge:        30,
		Compress:      true,
		JSONFormat:    false,
	}
}

// DefaultPingConfig returns the monitor defaults: disabled, probing
// www.google.com with a 3s timeout every 10s and 3 retries.
func DefaultPingConfig() *PingConfig {
	return &PingConfig{
		Enabled:           false,
		Target:            "www.google.com",
		Timeout:           3,
		Interval:          10,
		Retry:             3,
		OnMobile:          true,
		DisableWifiOnFail: false,
		DisablePeriod:     0,
		MaxCycles:         0,
		CycleWindow:       60,
		CycleCooldown:     60,
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		Clearable:        false,
		ClearOnDisabled:  false,
		ClearOnScanning:  false,
		ClearOnConnected: false,
		ShowMobileData:   true,
		ActionOnTap:      ActionOpenDialog,
		Debug:            false,
		EnableTray:       true,
		DataDir:          "", // resolved by Validate

		Ping:    DefaultPingConfig(),
		Status:  &StatusConfig{Listen: ""},
		Source:  &SourceConfig{Kind: SourceNmcli, PollInterval: int(DefaultPollInterval.Seconds())},
		Logging: DefaultLogConfig(),
	}
}

// DefaultDataDir returns ~/.wifistate, falling back to the working directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDataDirName
	}
	return filepath.Join(home, defaultDataDirName)
}

// DefaultStatusAddr is the loopback address suggested for the status server.
func DefaultStatusAddr() string {
	return defaultStatusAddr
}

var validate = validator.New()

// Validate fills missing sections with defaults and checks field constraints.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.ActionOnTap == "" {
		c.ActionOnTap = ActionOpenDialog
	}
	if c.Ping == nil {
		c.Ping = DefaultPingConfig()
	}
	if c.Ping.CycleWindow == 0 {
		c.Ping.CycleWindow = DefaultPingConfig().CycleWindow
	}
	if c.Status == nil {
		c.Status = &StatusConfig{}
	}
	if c.Source == nil {
		c.Source = &SourceConfig{Kind: SourceNmcli}
	}
	if c.Source.Kind == "" {
		c.Source.Kind = SourceNmcli
	}
	if c.Source.PollInterval <= 0 {
		c.Source.PollInterval = int(DefaultPollInterval.Seconds())
	}
	if c.Logging == nil {
		c.Logging = DefaultLogConfig()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// PingWanted reports whether the monitor should run for a link of the given
// kind.
func (c *Config) PingWanted(mobile bool) bool {
	if c.Ping == nil || !c.Ping.Enabled {
		return false
	}
	return !mobile || c.Ping.OnMobile
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.Ping != nil {
		p := *c.Ping
		out.Ping = &p
	}
	if c.Status != nil {
		s := *c.Status
		out.Status = &s
	}
	if c.Source != nil {
		s := *c.Source
		out.Source = &s
	}
	if c.Logging != nil {
		l := *c.Logging
		out.Logging = &l
	}
	return &out
}
