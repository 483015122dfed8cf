//go:build !nogui && !headless

package tray

import (
	"context"
	"sync"
	"time"

	"github.com/getlantern/systray"
	"go.uber.org/zap"

	"wifistate-go/internal/controller"
)

// Supported reports whether this build carries the system tray.
const Supported = true

// App is the system tray indicator. It implements controller.Sink; records
// shown before the tray is ready are applied once it is.
type App struct {
	logger  *zap.Logger
	actions Actions
	log     *LogSink

	mu      sync.Mutex
	ready   bool
	pending *controller.Record
	cleared bool

	statusItem *systray.MenuItem
	detailItem *systray.MenuItem
}

// New creates the tray application.
func New(actions Actions, logger *zap.Logger) *App {
	return &App{
		logger:  logger.Named("tray"),
		actions: actions,
		log:     NewLogSink(logger),
	}
}

// Run blocks in the tray event loop until ctx is done or Quit is chosen.
// It must be called from the main goroutine on macOS.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting system tray")

	go func() {
		<-ctx.Done()
		a.logger.Info("Context cancelled, quitting systray")
		systray.Quit()
	}()

	systray.Run(a.onReady, a.onExit)
	return ctx.Err()
}

// Show updates icon, tooltip and status lines.
func (a *App) Show(rec controller.Record) {
	a.log.Show(rec)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending, a.cleared = &rec, false
	if a.ready {
		a.apply()
	}
}

// Clear resets the tray to the idle icon. A tray icon cannot be hidden, so a
// cleared indicator shows the disabled image without a title.
func (a *App) Clear() {
	a.log.Clear()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending, a.cleared = nil, true
	if a.ready {
		a.apply()
	}
}

func (a *App) apply() {
	if a.pending == nil {
		systray.SetIcon(IconPNG(controller.IconDisabled))
		systray.SetTitle("")
		systray.SetTooltip(controller.AppName)
		a.statusItem.SetTitle(controller.AppName)
		a.detailItem.Hide()
		return
	}

	rec := *a.pending
	systray.SetIcon(IconPNG(rec.Icon))
	systray.SetTooltip(tooltip(rec))
	a.statusItem.SetTitle(rec.Title)
	if rec.Body != "" {
		a.detailItem.SetTitle(rec.Body)
		a.detailItem.Show()
	} else {
		a.detailItem.Hide()
	}
}

func (a *App) onReady() {
	systray.SetIcon(IconPNG(controller.IconDisabled))
	systray.SetTooltip(controller.AppName)

	a.statusItem = systray.AddMenuItem(controller.AppName, "Connection status")
	a.statusItem.Disable()
	a.detailItem = systray.AddMenuItem("", "Connection detail")
	a.detailItem.Disable()
	a.detailItem.Hide()
	systray.AddSeparator()

	tapItem := systray.AddMenuItem("Run tap action", "Run the configured tap action")
	toggleItem := systray.AddMenuItem("Toggle Wi-Fi", "Turn the Wi-Fi radio on or off")
	reenableItem := systray.AddMenuItem("Re-enable Wi-Fi", "Power-cycle the Wi-Fi radio")
	systray.AddSeparator()
	quitItem := systray.AddMenuItem("Quit", "Stop monitoring and quit")

	a.mu.Lock()
	a.ready = true
	if a.pending != nil || a.cleared {
		a.apply()
	}
	a.mu.Unlock()

	go func() {
		for {
			select {
			case <-tapItem.ClickedCh:
				call(a.actions.Tap)
			case <-toggleItem.ClickedCh:
				go call(a.actions.ToggleWifi)
			case <-reenableItem.ClickedCh:
				go call(a.actions.ReenableWifi)
			case <-quitItem.ClickedCh:
				a.logger.Info("Quit item clicked, shutting down")
				go a.quit()
				return
			}
		}
	}()

	a.logger.Info("System tray is ready")
}

// quit runs the Quit action and leaves the tray loop even if it hangs.
func (a *App) quit() {
	done := make(chan struct{})
	go func() {
		call(a.actions.Quit)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		a.logger.Warn("Graceful quit timed out")
	}
	systray.Quit()
}

func (a *App) onExit() {
	a.logger.Info("Tray application exiting")
	a.mu.Lock()
	a.ready = false
	a.mu.Unlock()
}
