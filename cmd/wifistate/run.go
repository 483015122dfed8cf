package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wifistate-go/internal/app"
	"wifistate-go/internal/logs"
	"wifistate-go/internal/processlock"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the connectivity indicator",
		RunE:  runEngine,
	}

	cmd.Flags().String("source", "", "signal source (nmcli, scenario)")
	cmd.Flags().String("scenario", "", "scenario file replayed by the scenario source")
	cmd.Flags().String("listen", "", "status server address, e.g. 127.0.0.1:8737")
	cmd.Flags().Bool("tray", true, "show the system tray indicator")
	return cmd
}

var runFlagKeys = map[string]string{
	"source":   "source.kind",
	"scenario": "source.scenario",
	"listen":   "status.listen",
	"tray":     "enable_tray",
}

func runEngine(cmd *cobra.Command, _ []string) error {
	loader, cfg, err := loadConfig(cmd, runFlagKeys)
	if err != nil {
		return err
	}

	logger, err := logs.SetupLogger(cfg.Logging, cfg.DataDir)
	if err != nil {
		_ = loader.Stop()
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Loaded configuration",
		zap.String("path", loader.Path()),
		zap.String("source", cfg.Source.Kind),
		zap.Bool("ping", cfg.Ping.Enabled),
		zap.String("status", cfg.Status.Listen))

	engine, err := app.New(cfg, loader, app.Options{}, logger)
	if err != nil {
		_ = loader.Stop()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := engine.Run(ctx); err != nil {
		if errors.Is(err, processlock.ErrAlreadyRunning) {
			return fmt.Errorf("wifistate is already running: %w", err)
		}
		return err
	}
	return nil
}
