// Package radio issues Wi-Fi radio power commands, including the delayed
// disable-wait-enable cycle.
package radio

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"wifistate-go/internal/config"
	"wifistate-go/internal/netstate"
)

// Controller is the platform radio-control collaborator.
type Controller interface {
	// PowerState queries the current radio power state.
	PowerState(ctx context.Context) (netstate.RadioPower, error)
	// SetEnabled asks the platform to switch the radio on or off. A non-nil
	// error means the platform rejected the request.
	SetEnabled(ctx context.Context, enabled bool) error
}

// Command names used in results, logs and events.
const (
	CommandEnable   = "enable"
	CommandDisable  = "disable"
	CommandReenable = "reenable"
	CommandToggle   = "toggle"
)

// Failure reasons.
const (
	ReasonRejected    = "rejected"
	ReasonQueryFailed = "power state query failed"
	ReasonCancelled   = "cancelled"
)

// Result is the feedback of a radio command.
type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Phase is the state of a delayed re-enable cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingDisableConfirm
	PhaseTimerPending
	PhaseReenabling
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingDisableConfirm:
		return "awaiting_disable_confirm"
	case PhaseTimerPending:
		return "timer_pending"
	case PhaseReenabling:
		return "reenabling"
	default:
		return "unknown"
	}
}

// Status describes the pending re-enable cycle, if any.
type Status struct {
	Phase      string    `json:"phase"`
	Minutes    int       `json:"minutes,omitempty"`
	ReenableAt time.Time `json:"reenable_at,omitempty"`
}

// CommandObserver is told the outcome of every command issued to the
// controller.
type CommandObserver interface {
	ObserveRadioCommand(command string, minutes int, res Result)
}

// Orchestrator serializes radio commands. At most one re-enable cycle is
// pending; every command cancels it before doing anything else.
type Orchestrator struct {
	ctrl     Controller
	clock    clockwork.Clock
	logger   *zap.Logger
	observer CommandObserver

	// cmdMu is held for the whole of a command, so a later command never
	// interleaves with an earlier one. mu guards the cycle state only and
	// may be taken while cmdMu is held, never the other way round.
	cmdMu sync.Mutex

	mu         sync.Mutex
	phase      Phase
	token      uint64
	minutes    int
	timer      clockwork.Timer
	reenableAt time.Time
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(ctrl Controller, clk clockwork.Clock, logger *zap.Logger) *Orchestrator {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Orchestrator{
		ctrl:   ctrl,
		clock:  clk,
		logger: logger.Named("radio"),
	}
}

// SetObserver installs a command observer. It must be called before the
// first command.
func (o *Orchestrator) SetObserver(obs CommandObserver) {
	o.observer = obs
}

// Enable switches the radio on.
func (o *Orchestrator) Enable(ctx context.Context) Result {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	o.replacePending()
	return o.set(ctx, CommandEnable, 0, true)
}

// Disable switches the radio off.
func (o *Orchestrator) Disable(ctx context.Context) Result {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	o.replacePending()
	return o.set(ctx, CommandDisable, 0, false)
}

// Toggle disables an enabled radio and enables any other.
func (o *Orchestrator) Toggle(ctx context.Context) Result {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	o.replacePending()

	power, err := o.ctrl.PowerState(ctx)
	if err != nil {
		o.logger.Warn("Failed to query radio power state", zap.Error(err))
		return o.report(CommandToggle, 0, Result{Reason: ReasonQueryFailed})
	}
	on := power == netstate.PowerEnabled || power == netstate.PowerEnabling
	return o.set(ctx, CommandToggle, 0, !on)
}

// ReenableAfter disables the radio and enables it again minutes after the
// platform confirms it is off. An already disabled radio is enabled at once.
func (o *Orchestrator) ReenableAfter(ctx context.Context, minutes int) Result {
	if minutes < 0 {
		minutes = 0
	}

	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	tok := o.replacePending()

	power, err := o.ctrl.PowerState(ctx)
	if err != nil {
		o.logger.Warn("Failed to query radio power state", zap.Error(err))
		return o.report(CommandReenable, minutes, Result{Reason: ReasonQueryFailed})
	}
	if power == netstate.PowerDisabled {
		o.logger.Info("Radio already disabled, enabling now")
		return o.set(ctx, CommandReenable, minutes, true)
	}

	// Arm the observer before disabling so a fast confirmation is not missed.
	o.mu.Lock()
	if o.token != tok {
		o.mu.Unlock()
		o.logger.Info("Re-enable cancelled before the radio was disabled")
		return o.report(CommandReenable, minutes, Result{Reason: ReasonCancelled})
	}
	o.phase = PhaseAwaitingDisableConfirm
	o.minutes = minutes
	o.mu.Unlock()

	res := o.set(ctx, CommandReenable, minutes, false)
	if !res.OK {
		o.mu.Lock()
		if o.token == tok {
			o.phase = PhaseIdle
		}
		o.mu.Unlock()
		return res
	}

	o.logger.Info("Radio disable requested, re-enable scheduled after confirmation",
		zap.Int("minutes", minutes))
	return res
}

// HandlePowerState feeds an observed radio power state. The first Disabled
// observation after a ReenableAfter starts the re-enable timer. It does not
// wait for a command in progress.
func (o *Orchestrator) HandlePowerState(power netstate.RadioPower) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != PhaseAwaitingDisableConfirm || power != netstate.PowerDisabled {
		return
	}

	delay := time.Duration(o.minutes) * time.Minute
	tok := o.token
	o.phase = PhaseTimerPending
	o.reenableAt = o.clock.Now().Add(delay)
	o.timer = o.clock.AfterFunc(delay, func() { o.fire(tok) })

	o.logger.Info("Radio disable confirmed, re-enable timer started",
		zap.Duration("delay", delay))
}

// Phase returns the current cycle phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Status describes the pending cycle.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{Phase: o.phase.String()}
	if o.phase != PhaseIdle {
		st.Minutes = o.minutes
	}
	if o.phase == PhaseTimerPending || o.phase == PhaseReenabling {
		st.ReenableAt = o.reenableAt
	}
	return st
}

// Cancel drops any pending cycle without issuing a command. It does not wait
// for a command in progress.
func (o *Orchestrator) Cancel() {
	o.replacePending()
}

// fire issues the delayed enable. The cycle stays in PhaseReenabling until
// the controller has answered.
func (o *Orchestrator) fire(tok uint64) {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	o.mu.Lock()
	if o.token != tok || o.phase != PhaseTimerPending {
		o.mu.Unlock()
		return
	}
	o.phase = PhaseReenabling
	o.timer = nil
	minutes := o.minutes
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()
	o.set(ctx, CommandReenable, minutes, true)

	o.mu.Lock()
	if o.token == tok {
		o.phase = PhaseIdle
		o.reenableAt = time.Time{}
	}
	o.mu.Unlock()
}

// replacePending cancels the observer and timer and returns the token of the
// new command.
func (o *Orchestrator) replacePending() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if o.phase != PhaseIdle {
		o.logger.Debug("Cancelling pending re-enable", zap.String("phase", o.phase.String()))
	}
	o.phase = PhaseIdle
	o.reenableAt = time.Time{}
	o.token++
	return o.token
}

func (o *Orchestrator) set(ctx context.Context, command string, minutes int, enabled bool) Result {
	if err := o.ctrl.SetEnabled(ctx, enabled); err != nil {
		o.logger.Warn("Radio command rejected",
			zap.String("command", command),
			zap.Bool("enabled", enabled),
			zap.Error(err))
		return o.report(command, minutes, Result{Reason: ReasonRejected})
	}

	o.logger.Info("Radio command accepted",
		zap.String("command", command),
		zap.Bool("enabled", enabled))
	return o.report(command, minutes, Result{OK: true})
}

func (o *Orchestrator) report(command string, minutes int, res Result) Result {
	if o.observer != nil {
		o.observer.ObserveRadioCommand(command, minutes, res)
	}
	return res
}
