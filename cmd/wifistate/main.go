package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"wifistate-go/internal/config"
	"wifistate-go/internal/logs"
)

var (
	configPath string
	logLevel   string
	dataDir    string
)

func main() {
	_, _ = maxprocs.Set()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wifistate",
		Short:         "Wi-Fi and mobile data connectivity indicator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "configuration file (JSON or YAML)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for the pid file and logs")

	root.AddCommand(newRunCmd(), newRadioCmd(), newProbeCmd(), newConfigCmd())
	return root
}

func defaultConfigPath() string {
	return filepath.Join(config.DefaultDataDir(), "config.json")
}

var persistentFlagKeys = map[string]string{
	"log-level": "logging.level",
	"data-dir":  "data_dir",
}

// loadConfig creates a loader for the --config file. Flags named in keys
// that were set on the command line override file values and the
// environment.
func loadConfig(cmd *cobra.Command, keys map[string]string) (*config.Loader, *config.Config, error) {
	loader, err := config.NewLoader(configPath, zap.NewNop())
	if err != nil {
		return nil, nil, err
	}

	v := loader.Viper()
	flags := cmd.Flags()
	for _, set := range []map[string]string{persistentFlagKeys, keys} {
		for flag, key := range set {
			if !flags.Changed(flag) {
				continue
			}
			if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
				_ = loader.Stop()
				return nil, nil, fmt.Errorf("failed to bind --%s: %w", flag, err)
			}
		}
	}

	cfg, err := loader.Load()
	if err != nil {
		_ = loader.Stop()
		return nil, nil, err
	}
	return loader, cfg, nil
}

// setupCommand loads the configuration and logger for one-shot commands.
func setupCommand(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	loader, cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, nil, err
	}
	_ = loader.Stop()

	logger, err := logs.SetupLogger(cfg.Logging, cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup logger: %w", err)
	}
	return cfg, logger, nil
}
