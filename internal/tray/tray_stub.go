//go:build nogui || headless

package tray

import (
	"context"

	"go.uber.org/zap"

	"wifistate-go/internal/controller"
)

// Supported reports whether this build carries the system tray.
const Supported = false

// App logs the indicator on builds without a tray.
type App struct {
	*LogSink
	logger *zap.Logger
}

// New creates the headless indicator. actions are unused.
func New(_ Actions, logger *zap.Logger) *App {
	return &App{LogSink: NewLogSink(logger), logger: logger.Named("tray")}
}

// Run blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Tray disabled in this build, logging indicator changes")
	<-ctx.Done()
	return ctx.Err()
}

var _ controller.Sink = (*App)(nil)
