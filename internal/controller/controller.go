// Package controller integrates classification, reachability and radio
// control into the single status indicator. Every input is handled on one
// event loop goroutine in arrival order.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"wifistate-go/internal/config"
	"wifistate-go/internal/events"
	"wifistate-go/internal/netstate"
	"wifistate-go/internal/radio"
	"wifistate-go/internal/reachability"
)

// Monitor is the reachability monitor as seen by the controller.
type Monitor interface {
	Start(s reachability.Settings, fallback string) bool
	Stop()
	Running() bool
	IsCurrent(gen uint64) bool
	Snapshot() reachability.Status
}

// Radio is the radio orchestrator as seen by the controller.
type Radio interface {
	Toggle(ctx context.Context) radio.Result
	ReenableAfter(ctx context.Context, minutes int) radio.Result
	HandlePowerState(power netstate.RadioPower)
}

// Deps are the collaborators of a Controller. Bus and Clock are optional.
type Deps struct {
	Sink  Sink
	Radio Radio
	Bus   *events.Bus
	Clock clockwork.Clock
}

// View is a copy of the controller state for status reporting.
type View struct {
	Enabled   bool                    `json:"enabled"`
	Snapshot  *netstate.StateSnapshot `json:"snapshot,omitempty"`
	Reachable bool                    `json:"reachable"`
	Indicator *Record                 `json:"indicator,omitempty"`
	ScreenOn  bool                    `json:"screen_on"`
	Cycles    radio.GuardStats        `json:"cycles"`
}

// Controller drives the indicator. Fields below inbox are owned by the event
// loop.
type Controller struct {
	logger  *zap.Logger
	sink    Sink
	radio   Radio
	monitor Monitor
	guard   *radio.CycleGuard
	bus     *events.Bus
	clock   clockwork.Clock

	inbox chan func()
	done  chan struct{}

	viewMu sync.RWMutex
	view   View

	cfg        *config.Config
	snapshot   *netstate.StateSnapshot
	lastRaw    *netstate.RawSignal
	reachable  bool
	screenOn   bool
	shown      *Record
	clearTimer clockwork.Timer
	clearSeq   uint64
}

// New creates a controller. cfg must be validated.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Controller {
	clk := deps.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	c := &Controller{
		logger:    logger.Named("controller"),
		sink:      deps.Sink,
		radio:     deps.Radio,
		monitor:   noopMonitor{},
		guard:     radio.NewCycleGuard(guardLimits(cfg), clk, logger),
		bus:       deps.Bus,
		clock:     clk,
		inbox:     make(chan func(), config.EventChannelBufferSize),
		done:      make(chan struct{}),
		cfg:       cfg,
		reachable: true,
		screenOn:  true,
	}
	c.updateView()
	return c
}

// SetMonitor attaches the reachability monitor. It must be called before Run.
func (c *Controller) SetMonitor(m Monitor) {
	if m == nil {
		m = noopMonitor{}
	}
	c.monitor = m
}

// Run processes inputs until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("Controller started")
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.cancelClear()
			c.monitor.Stop()
			c.logger.Info("Controller stopped")
			return ctx.Err()
		case fn := <-c.inbox:
			fn()
			c.updateView()
		}
	}
}

// enqueue hands fn to the event loop. It returns false once the loop has
// exited.
func (c *Controller) enqueue(fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-c.done:
		return false
	}
}

// Flush blocks until every input queued before it has been handled.
func (c *Controller) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	if !c.enqueue(func() { close(ack) }) {
		return context.Canceled
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return context.Canceled
	}
}

// HandleSignal queues a raw platform observation.
func (c *Controller) HandleSignal(raw netstate.RawSignal) {
	c.enqueue(func() { c.handleSignal(raw) })
}

// HandleScreen queues a screen on/off notification.
func (c *Controller) HandleScreen(on bool) {
	c.enqueue(func() { c.handleScreen(on) })
}

// UpdateConfig queues a configuration change. The controller takes ownership
// of cfg.
func (c *Controller) UpdateConfig(cfg *config.Config) {
	c.enqueue(func() { c.handleConfig(cfg) })
}

// Disable queues an explicit stop of monitoring.
func (c *Controller) Disable() {
	c.enqueue(c.handleDisable)
}

// Tap queues the configured tap action.
func (c *Controller) Tap() {
	c.enqueue(c.handleTap)
}

// OnReachabilityChanged implements reachability.Handler.
func (c *Controller) OnReachabilityChanged(st reachability.Status) {
	c.enqueue(func() { c.handleReachability(st) })
}

// OnRoundFailed implements reachability.Handler.
func (c *Controller) OnRoundFailed(st reachability.Status) {
	c.enqueue(func() { c.handleRoundFailed(st) })
}

// View returns a copy of the current state.
func (c *Controller) View() View {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view
}

func (c *Controller) handleSignal(raw netstate.RawSignal) {
	c.lastRaw = &raw

	if c.radio != nil {
		c.radio.HandlePowerState(raw.RadioPower)
	}
	if !c.cfg.Enabled {
		return
	}

	next, changed := netstate.Classify(raw, c.snapshot, c.classifyOptions())
	if !changed {
		return
	}
	c.apply(next)
}

func (c *Controller) apply(next netstate.StateSnapshot) {
	old := netstate.StateDisabled
	if c.snapshot != nil {
		old = c.snapshot.State
	}
	c.snapshot = &next

	c.logger.Info("State changed",
		zap.String("old_state", old.String()),
		zap.String("new_state", next.State.String()),
		zap.String("detail", next.Detail),
		zap.String("network", next.NetworkName))
	c.publish(events.StateChanged, events.StateChangeData{
		OldState:    old.String(),
		NewState:    next.State.String(),
		Detail:      next.Detail,
		NetworkName: next.NetworkName,
	})

	c.refreshMonitor()
	c.show()

	if c.clearable(next) {
		c.scheduleClear()
	}
}

func (c *Controller) handleScreen(on bool) {
	if c.screenOn == on {
		return
	}
	c.screenOn = on
	c.logger.Debug("Screen state changed", zap.Bool("on", on))

	if !on {
		wasReachable := c.reachable
		c.stopMonitor()
		if !wasReachable && c.shown != nil {
			c.show()
		}
		return
	}
	if c.monitorWanted() && !c.monitor.Running() {
		c.startMonitor()
	}
}

func (c *Controller) handleReachability(st reachability.Status) {
	if !c.monitor.IsCurrent(st.Generation) {
		return
	}
	c.publish(events.ReachabilityChanged, reachabilityData(st))

	if c.snapshot == nil || !c.snapshot.State.IsConnected() {
		return
	}
	if st.Reachable == c.reachable {
		return
	}
	c.reachable = st.Reachable

	c.logger.Info("Reachability changed",
		zap.String("target", st.Target),
		zap.Bool("reachable", st.Reachable))
	c.show()
}

func (c *Controller) handleRoundFailed(st reachability.Status) {
	if !c.monitor.IsCurrent(st.Generation) {
		return
	}
	c.publish(events.RoundFailed, reachabilityData(st))

	if !c.cfg.Ping.DisableWifiOnFail || c.radio == nil {
		return
	}
	if c.snapshot == nil || !c.snapshot.State.IsWifiConnected() {
		return
	}

	if !c.guard.Allow("unreachable") {
		c.publish(events.CycleBlocked, reachabilityData(st))
		return
	}

	minutes := c.cfg.Ping.DisablePeriod
	c.logger.Warn("Target unreachable, cycling Wi-Fi radio",
		zap.String("target", st.Target),
		zap.Int("consecutive_failures", st.Counters.ConsecutiveRoundFailures),
		zap.Int("minutes", minutes))

	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()
	c.radio.ReenableAfter(ctx, minutes)
}

func (c *Controller) handleConfig(cfg *config.Config) {
	c.cfg = cfg
	c.guard.SetLimits(guardLimits(cfg))
	c.publish(events.ConfigReloaded, nil)
	c.logger.Info("Configuration applied",
		zap.Bool("enabled", cfg.Enabled),
		zap.Bool("ping", cfg.Ping.Enabled))

	if !cfg.Enabled {
		c.handleDisable()
		return
	}

	// Forget the snapshot so the last observation is shown again under the
	// new settings.
	c.snapshot = nil
	if c.lastRaw != nil {
		next, changed := netstate.Classify(*c.lastRaw, nil, c.classifyOptions())
		if changed {
			c.apply(next)
			return
		}
	}
	c.refreshMonitor()
}

func (c *Controller) handleDisable() {
	c.logger.Info("Monitoring disabled")
	c.snapshot = nil
	c.stopMonitor()
	c.cancelClear()
	c.clearIndicator()
}

func (c *Controller) handleTap() {
	action := c.cfg.ActionOnTap
	c.logger.Debug("Tap", zap.String("action", action))

	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	switch action {
	case config.ActionToggleWifi:
		if c.radio != nil {
			c.radio.Toggle(ctx)
		}
	case config.ActionReenableWifi:
		if c.radio != nil {
			c.radio.ReenableAfter(ctx, 0)
		}
	default:
		c.publish(events.ShellRequest, events.ShellRequestData{Action: action})
	}
}

func (c *Controller) handleClearTimer(seq uint64) {
	if seq != c.clearSeq {
		return
	}
	c.clearTimer = nil

	// The state may have moved on since the clear was scheduled.
	if c.snapshot == nil || !c.clearable(*c.snapshot) {
		c.logger.Debug("Delayed clear skipped")
		return
	}
	c.clearIndicator()
}

func (c *Controller) classifyOptions() netstate.Options {
	return netstate.Options{
		ShowMobileData:  c.cfg.ShowMobileData,
		ClearOnScanning: c.cfg.ClearOnScanning,
	}
}

func (c *Controller) clearable(s netstate.StateSnapshot) bool {
	switch {
	case c.cfg.ClearOnDisabled && s.State == netstate.StateDisabled:
		return true
	case c.cfg.ClearOnScanning && s.State.IsScanning():
		return true
	case c.cfg.ClearOnConnected && s.State.IsConnected():
		return true
	}
	return false
}

func (c *Controller) scheduleClear() {
	c.cancelClear()
	seq := c.clearSeq
	c.clearTimer = c.clock.AfterFunc(config.ClearDelay, func() {
		c.enqueue(func() { c.handleClearTimer(seq) })
	})
}

func (c *Controller) cancelClear() {
	if c.clearTimer != nil {
		c.clearTimer.Stop()
		c.clearTimer = nil
	}
	c.clearSeq++
}

func (c *Controller) show() {
	if c.snapshot == nil || c.sink == nil {
		return
	}

	pingCounts := ""
	if c.cfg.Debug && c.monitor.Running() {
		st := c.monitor.Snapshot()
		pingCounts = formatPingCounts(st.Counters.TotalOK, st.Counters.TotalPings)
	}

	rec := buildRecord(*c.snapshot, c.reachable, c.cfg.Clearable, pingCounts)
	c.sink.Show(rec)
	c.shown = &rec

	c.publish(events.NotificationShown, events.NotificationData{
		Icon:    string(rec.Icon),
		Title:   rec.Title,
		Body:    rec.Body,
		Ongoing: rec.Ongoing,
	})
}

func (c *Controller) clearIndicator() {
	if c.shown == nil {
		return
	}
	if c.sink != nil {
		c.sink.Clear()
	}
	c.shown = nil
	c.publish(events.NotificationCleared, nil)
}

// monitorWanted reports whether the current snapshot calls for probing.
func (c *Controller) monitorWanted() bool {
	if c.snapshot == nil || !c.screenOn {
		return false
	}
	switch c.snapshot.State {
	case netstate.StateConnected:
		return c.cfg.PingWanted(false)
	case netstate.StateMobileConnected:
		return c.cfg.PingWanted(true)
	}
	return false
}

func (c *Controller) refreshMonitor() {
	if c.monitorWanted() {
		c.startMonitor()
		return
	}
	c.stopMonitor()
}

func (c *Controller) startMonitor() {
	fallback := ""
	if c.snapshot != nil && c.snapshot.State.IsWifiConnected() && c.snapshot.Wifi != nil {
		fallback = c.snapshot.Wifi.Gateway
	}

	p := c.cfg.Ping
	settings := reachability.Settings{
		Target:   p.Target,
		Timeout:  time.Duration(p.Timeout) * time.Second,
		Interval: time.Duration(p.Interval) * time.Second,
		Retry:    p.Retry,
	}

	c.reachable = true
	if c.monitor.Start(settings, fallback) {
		st := c.monitor.Snapshot()
		c.publish(events.MonitorStarted, reachabilityData(st))
	}
}

func (c *Controller) stopMonitor() {
	c.reachable = true
	if !c.monitor.Running() {
		return
	}
	c.monitor.Stop()
	c.publish(events.MonitorStopped, reachabilityData(c.monitor.Snapshot()))
}

func (c *Controller) publish(t events.EventType, data interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{Type: t, Data: data})
}

func (c *Controller) updateView() {
	v := View{
		Enabled:   c.cfg.Enabled,
		Reachable: c.reachable,
		ScreenOn:  c.screenOn,
		Cycles:    c.guard.Stats(),
	}
	if c.snapshot != nil {
		s := *c.snapshot
		v.Snapshot = &s
	}
	if c.shown != nil {
		r := *c.shown
		v.Indicator = &r
	}

	c.viewMu.Lock()
	c.view = v
	c.viewMu.Unlock()
}

func reachabilityData(st reachability.Status) events.ReachabilityData {
	return events.ReachabilityData{
		Target:              st.Target,
		Reachable:           st.Reachable,
		TotalPings:          st.Counters.TotalPings,
		TotalOK:             st.Counters.TotalOK,
		TotalNG:             st.Counters.TotalNG,
		ConsecutiveFailures: st.Counters.ConsecutiveRoundFailures,
	}
}

func guardLimits(cfg *config.Config) radio.GuardLimits {
	return radio.GuardLimits{
		MaxCycles: cfg.Ping.MaxCycles,
		Window:    time.Duration(cfg.Ping.CycleWindow) * time.Minute,
		Cooldown:  time.Duration(cfg.Ping.CycleCooldown) * time.Minute,
	}
}

type noopMonitor struct{}

func (noopMonitor) Start(reachability.Settings, string) bool { return false }
func (noopMonitor) Stop()                                    {}
func (noopMonitor) Running() bool                            { return false }
func (noopMonitor) IsCurrent(uint64) bool                    { return false }
func (noopMonitor) Snapshot() reachability.Status            { return reachability.Status{} }
