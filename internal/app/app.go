// Package app assembles the engine: signal source, controller, reachability
// monitor, radio orchestrator, indicator, metrics and the status server.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"wifistate-go/internal/config"
	"wifistate-go/internal/controller"
	"wifistate-go/internal/events"
	"wifistate-go/internal/metrics"
	"wifistate-go/internal/platform"
	"wifistate-go/internal/processlock"
	"wifistate-go/internal/radio"
	"wifistate-go/internal/reachability"
	"wifistate-go/internal/server"
	"wifistate-go/internal/shutdown"
	"wifistate-go/internal/tray"
)

// Options override collaborators, mostly for tests. Zero values select the
// production implementation.
type Options struct {
	Clock clockwork.Clock
	// Prober replaces capability-based probe selection.
	Prober reachability.Prober
	// Registry receives the metrics; nil creates a private registry.
	Registry *prometheus.Registry
	// Sink replaces the tray or log indicator.
	Sink controller.Sink
	// Runner executes nmcli.
	Runner platform.Runner
	// SkipLock disables the single instance lock.
	SkipLock bool
}

// App is one running engine instance.
type App struct {
	logger *zap.Logger
	cfg    *config.Config
	loader *config.Loader
	clock  clockwork.Clock

	bus         *events.Bus
	collector   *metrics.Collector
	controller  *controller.Controller
	monitor     *reachability.Monitor
	radio       *radio.Orchestrator
	prober      reachability.Prober
	tray        *tray.App
	sink        controller.Sink
	server      *server.Server
	coordinator *shutdown.Coordinator
	lock        *processlock.ProcessLock

	sourceName string
	runSource  func(ctx context.Context) error

	startedAt time.Time
	cancel    context.CancelFunc
	cancelMu  sync.Mutex
}

// New builds an engine from cfg. loader may be nil when the configuration is
// not file backed.
func New(cfg *config.Config, loader *config.Loader, opts Options, logger *zap.Logger) (*App, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	a := &App{
		logger:      logger.Named("app"),
		cfg:         cfg,
		loader:      loader,
		clock:       clk,
		bus:         events.NewBus(),
		coordinator: shutdown.NewCoordinator(logger),
	}

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	a.collector = collector

	ctrl, err := a.buildSource(opts, logger)
	if err != nil {
		return nil, err
	}

	a.radio = radio.NewOrchestrator(ctrl, clk, logger)
	a.radio.SetObserver(&commandFanout{collector: collector, bus: a.bus})

	a.sink = opts.Sink
	if a.sink == nil {
		if cfg.EnableTray && tray.Supported {
			a.tray = tray.New(a.trayActions(), logger)
			a.sink = a.tray
		} else {
			a.sink = tray.NewLogSink(logger)
		}
	}

	a.controller = controller.New(cfg.Clone(), controller.Deps{
		Sink:  a.sink,
		Radio: a.radio,
		Bus:   a.bus,
		Clock: clk,
	}, logger)

	a.prober = opts.Prober
	if a.prober == nil {
		a.prober = reachability.SelectProber(logger, nil)
	}
	a.monitor = reachability.NewMonitor(a.prober, a.controller, clk, logger)
	a.monitor.SetObserver(collector)
	a.controller.SetMonitor(a.monitor)

	if cfg.Status.Listen != "" {
		a.server = server.New(cfg.Status.Listen, a.bus, a.Status, collector.Handler(), logger)
	}
	if !opts.SkipLock {
		a.lock = processlock.New(cfg.DataDir, logger)
	}
	return a, nil
}

// buildSource prepares the signal source and returns the radio controller
// that belongs to it.
func (a *App) buildSource(opts Options, logger *zap.Logger) (radio.Controller, error) {
	switch a.cfg.Source.Kind {
	case config.SourceScenario:
		sc, err := platform.LoadScenario(a.cfg.Source.Scenario)
		if err != nil {
			return nil, err
		}
		player := platform.NewPlayer(sc, a.clock, logger)
		a.sourceName = "scenario:" + sc.Name
		a.runSource = func(ctx context.Context) error {
			return player.Run(ctx, a.controller)
		}
		return player.Radio(), nil

	default:
		nm := platform.NewNmcli("", a.cfg.Source.Device, opts.Runner, logger)
		if opts.Runner == nil && !nm.Available() {
			logger.Warn("nmcli not found in PATH, radio state will read as unknown")
		}
		poller := platform.NewPoller(nm, time.Duration(a.cfg.Source.PollInterval)*time.Second, a.clock, logger)
		a.sourceName = config.SourceNmcli
		a.runSource = func(ctx context.Context) error {
			return poller.Run(ctx, a.controller.HandleSignal)
		}
		return nm, nil
	}
}

func (a *App) trayActions() tray.Actions {
	return tray.Actions{
		Tap: func() { a.controller.Tap() },
		ToggleWifi: func() {
			ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
			defer cancel()
			a.radio.Toggle(ctx)
		},
		ReenableWifi: func() {
			ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
			defer cancel()
			a.radio.ReenableAfter(ctx, 0)
		},
		Quit: a.Stop,
	}
}

// StatusAddr returns the bound status server address, or "" when the
// server is disabled.
func (a *App) StatusAddr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

// Bus exposes the event bus.
func (a *App) Bus() *events.Bus {
	return a.bus
}

// Run starts every component and blocks until ctx is done or Stop is called.
// Shutdown runs before Run returns.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancelMu.Lock()
	a.cancel = cancel
	a.cancelMu.Unlock()
	defer cancel()

	if a.lock != nil {
		if err := a.lock.Acquire(a.cfg.Status.Listen); err != nil {
			return err
		}
		a.coordinator.RegisterFunc("process-lock", shutdown.PhaseCleanup, func(context.Context) error {
			return a.lock.Release()
		})
	}

	a.startedAt = a.clock.Now()
	a.logger.Info("Starting engine",
		zap.String("source", a.sourceName),
		zap.String("prober", a.prober.Name()),
		zap.Bool("ping", a.cfg.Ping.Enabled))

	if a.server != nil {
		if err := a.server.Start(); err != nil {
			a.runShutdown()
			return fmt.Errorf("failed to start status server: %w", err)
		}
		a.coordinator.Register(&shutdown.Handler{
			Name:    "status-server",
			Phase:   shutdown.PhaseServer,
			Timeout: config.StatusShutdownTimeout,
			Fn:      a.server.Shutdown,
		})
	}

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	var metricsDone sync.WaitGroup
	metricsDone.Add(1)
	allEvents := a.bus.SubscribeAll()
	go func() {
		defer metricsDone.Done()
		a.collector.Consume(metricsCtx, allEvents)
	}()

	ctrlCtx, stopCtrl := context.WithCancel(context.Background())
	ctrlDone := make(chan struct{})
	go func() {
		defer close(ctrlDone)
		if err := a.controller.Run(ctrlCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("Controller stopped unexpectedly", zap.Error(err))
		}
	}()

	srcCtx, stopSrc := context.WithCancel(context.Background())
	srcDone := make(chan struct{})
	go func() {
		defer close(srcDone)
		if err := a.runSource(srcCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("Signal source stopped", zap.String("source", a.sourceName), zap.Error(err))
		}
	}()

	if a.loader != nil {
		if err := a.loader.StartWatching(a.applyConfig); err != nil {
			a.logger.Warn("Configuration changes will not be picked up", zap.Error(err))
		}
		a.coordinator.RegisterFunc("config-watcher", shutdown.PhaseSources, func(context.Context) error {
			return a.loader.Stop()
		})
	}

	a.coordinator.RegisterFunc("signal-source", shutdown.PhaseSources, func(ctx context.Context) error {
		stopSrc()
		return waitFor(ctx, srcDone)
	})
	a.coordinator.RegisterFunc("controller", shutdown.PhaseMonitor, func(ctx context.Context) error {
		stopCtrl()
		if err := waitFor(ctx, ctrlDone); err != nil {
			return err
		}
		a.monitor.Wait()
		return nil
	})
	a.coordinator.RegisterFunc("radio", shutdown.PhaseRadio, func(context.Context) error {
		a.radio.Cancel()
		return nil
	})
	a.coordinator.Register(&shutdown.Handler{
		Name:     "indicator",
		Phase:    shutdown.PhaseCleanup,
		Priority: 10,
		Fn: func(context.Context) error {
			a.sink.Clear()
			return nil
		},
	})
	a.coordinator.RegisterFunc("event-bus", shutdown.PhaseCleanup, func(context.Context) error {
		stopMetrics()
		a.bus.Close()
		metricsDone.Wait()
		return nil
	})
	a.coordinator.RegisterFunc("logger", shutdown.PhaseCleanup, func(context.Context) error {
		_ = a.logger.Sync()
		return nil
	})

	if a.tray != nil {
		if err := a.tray.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("Tray exited", zap.Error(err))
		}
		// Quitting the tray ends the engine.
		cancel()
	}
	<-ctx.Done()

	a.logger.Info("Stopping engine")
	return a.runShutdown()
}

func (a *App) runShutdown() error {
	if err := a.coordinator.Shutdown(context.Background()); err != nil {
		a.logger.Warn("Shutdown finished with errors", zap.Error(err))
		return err
	}
	return nil
}

// Stop asks a running engine to shut down.
func (a *App) Stop() {
	a.cancelMu.Lock()
	cancel := a.cancel
	a.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed once shutdown has finished.
func (a *App) Done() <-chan struct{} {
	return a.coordinator.Done()
}

func (a *App) applyConfig(cfg *config.Config) error {
	if cfg.Source.Kind != a.cfg.Source.Kind || cfg.Status.Listen != a.cfg.Status.Listen {
		a.logger.Warn("Source and status server changes need a restart",
			zap.String("source", cfg.Source.Kind),
			zap.String("listen", cfg.Status.Listen))
	}
	a.controller.UpdateConfig(cfg.Clone())
	return nil
}

func waitFor(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commandFanout records radio commands in metrics and on the bus.
type commandFanout struct {
	collector *metrics.Collector
	bus       *events.Bus
}

func (f *commandFanout) ObserveRadioCommand(command string, minutes int, res radio.Result) {
	f.collector.ObserveRadioCommand(command, minutes, res)
	f.bus.Publish(events.Event{
		Type: events.RadioCommand,
		Data: events.RadioCommandData{
			Command: command,
			OK:      res.OK,
			Reason:  res.Reason,
			Minutes: minutes,
		},
	})
}
