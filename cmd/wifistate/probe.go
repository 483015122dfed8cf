package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wifistate-go/internal/reachability"
)

func newProbeCmd() *cobra.Command {
	var (
		timeout int
		retry   int
		tcpPort int
	)
	cmd := &cobra.Command{
		Use:   "probe [host]",
		Short: "Run one reachability round against host or the configured target",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setupCommand(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			target := cfg.Ping.Target
			if len(args) == 1 {
				target = args[0]
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.Ping.Timeout
			}
			if !cmd.Flags().Changed("retry") {
				retry = cfg.Ping.Retry
			}

			var prober reachability.Prober
			if tcpPort > 0 {
				prober = reachability.NewTCPProber(tcpPort)
			} else {
				prober = reachability.SelectProber(logger, nil)
			}

			start := time.Now()
			round := reachability.ProbeOnce(cmd.Context(), prober, target, time.Duration(timeout)*time.Second, retry)
			logger.Debug("Probe round finished",
				zap.String("target", target),
				zap.Duration("elapsed", time.Since(start)))

			fmt.Printf("%s via %s: %d/%d attempts succeeded\n", target, prober.Name(), round.Successes, round.Attempts)
			if !round.OK() {
				return fmt.Errorf("%s is unreachable", target)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&timeout, "timeout", 3, "seconds to wait for each attempt")
	cmd.Flags().IntVar(&retry, "retry", 3, "extra attempts after a failure")
	cmd.Flags().IntVar(&tcpPort, "tcp", 0, "probe with a TCP connect to this port instead of ICMP")
	return cmd
}
