package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wifistate-go/internal/config"
	"wifistate-go/internal/platform"
	"wifistate-go/internal/radio"
)

func newRadioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "radio",
		Short: "Switch the Wi-Fi radio through NetworkManager",
	}

	cmd.AddCommand(
		radioCommand("enable", "Turn the Wi-Fi radio on", func(ctx context.Context, o *radio.Orchestrator) radio.Result {
			return o.Enable(ctx)
		}),
		radioCommand("disable", "Turn the Wi-Fi radio off", func(ctx context.Context, o *radio.Orchestrator) radio.Result {
			return o.Disable(ctx)
		}),
		radioCommand("toggle", "Turn the Wi-Fi radio off if it is on, on otherwise", func(ctx context.Context, o *radio.Orchestrator) radio.Result {
			return o.Toggle(ctx)
		}),
		newReenableCmd(),
	)
	return cmd
}

func radioCommand(use, short string, fn func(context.Context, *radio.Orchestrator) radio.Result) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setupCommand(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			nm, err := newNmcli(cfg.Source.Device, logger)
			if err != nil {
				return err
			}
			o := radio.NewOrchestrator(nm, clockwork.NewRealClock(), logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), config.CommandTimeout)
			defer cancel()
			return resultError(cmd.OutOrStdout(), use, fn(ctx, o))
		},
	}
}

func newReenableCmd() *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "reenable",
		Short: "Turn the Wi-Fi radio off and on again after a delay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setupCommand(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			nm, err := newNmcli(cfg.Source.Device, logger)
			if err != nil {
				return err
			}
			return reenable(ctx, cmd.OutOrStdout(), nm, clockwork.NewRealClock(), minutes, time.Second, logger)
		},
	}
	cmd.Flags().IntVar(&minutes, "after", 0, "minutes to keep the radio off")
	return cmd
}

func newNmcli(device string, logger *zap.Logger) (*platform.Nmcli, error) {
	nm := platform.NewNmcli("", device, nil, logger)
	if !nm.Available() {
		return nil, fmt.Errorf("nmcli not found in PATH")
	}
	return nm, nil
}

// lastCommand remembers the outcome of the most recent radio command.
type lastCommand struct {
	mu  sync.Mutex
	res radio.Result
}

func (l *lastCommand) ObserveRadioCommand(_ string, _ int, res radio.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.res = res
}

func (l *lastCommand) result() radio.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.res
}

// reenable runs a full disable-wait-enable cycle and returns once the
// controller has answered the final enable.
func reenable(ctx context.Context, out io.Writer, ctrl radio.Controller, clk clockwork.Clock, minutes int, poll time.Duration, logger *zap.Logger) error {
	last := &lastCommand{}
	o := radio.NewOrchestrator(ctrl, clk, logger)
	o.SetObserver(last)

	cmdCtx, cancel := context.WithTimeout(ctx, config.CommandTimeout)
	res := o.ReenableAfter(cmdCtx, minutes)
	cancel()
	if !res.OK {
		return fmt.Errorf("reenable failed: %s", res.Reason)
	}
	if err := waitForCycle(ctx, o, ctrl, poll, logger); err != nil {
		return err
	}
	return resultError(out, "reenable", last.result())
}

// waitForCycle polls the radio so the orchestrator sees the disable
// confirmation, then blocks until the re-enable has been answered.
func waitForCycle(ctx context.Context, o *radio.Orchestrator, ctrl radio.Controller, poll time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for o.Phase() != radio.PhaseIdle {
		if o.Phase() == radio.PhaseAwaitingDisableConfirm {
			pctx, cancel := context.WithTimeout(ctx, config.CommandTimeout)
			power, err := ctrl.PowerState(pctx)
			cancel()
			if err != nil {
				logger.Debug("Failed to poll radio power", zap.Error(err))
			} else {
				o.HandlePowerState(power)
			}
		}

		select {
		case <-ctx.Done():
			o.Cancel()
			return fmt.Errorf("re-enable cancelled, radio left disabled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func resultError(out io.Writer, command string, res radio.Result) error {
	if !res.OK {
		return fmt.Errorf("%s failed: %s", command, res.Reason)
	}
	fmt.Fprintf(out, "%s: ok\n", command)
	return nil
}
