// Package reachability verifies that a target host actually answers once the
// link reports itself connected.
package reachability

import (
	"context"
	"net"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Prober performs a single reachability check. Resolution and I/O failures
// are reported as unreachable, never as errors.
type Prober interface {
	Probe(ctx context.Context, host string, timeout time.Duration) bool
	// Name identifies the strategy in logs and status output.
	Name() string
}

// CommandRunner runs an external command and reports its exit error.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// ICMPProber shells out to the system ping binary.
type ICMPProber struct {
	path string
	run  CommandRunner
}

// NewICMPProber returns a prober calling the ping binary at path.
func NewICMPProber(path string, run CommandRunner) *ICMPProber {
	if run == nil {
		run = runCommand
	}
	return &ICMPProber{path: path, run: run}
}

func (p *ICMPProber) Name() string { return "icmp" }

// Probe sends one echo request and waits at most timeout for the reply.
func (p *ICMPProber) Probe(ctx context.Context, host string, timeout time.Duration) bool {
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	// -w bounds the whole invocation, including name resolution.
	return p.run(ctx, p.path, "-c", "1", "-w", strconv.Itoa(secs), host) == nil
}

// TCPProber treats a completed TCP handshake as reachable.
type TCPProber struct {
	port string
}

// NewTCPProber returns a prober dialing port on targets without an explicit
// port.
func NewTCPProber(port int) *TCPProber {
	return &TCPProber{port: strconv.Itoa(port)}
}

func (p *TCPProber) Name() string { return "tcp" }

// Probe dials host (host or host:port) within timeout.
func (p *TCPProber) Probe(ctx context.Context, host string, timeout time.Duration) bool {
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, p.port)
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, host string, timeout time.Duration) bool

func (f ProberFunc) Probe(ctx context.Context, host string, timeout time.Duration) bool {
	return f(ctx, host, timeout)
}

func (f ProberFunc) Name() string { return "func" }

// DefaultTCPPort is dialed by the TCP fallback strategy.
const DefaultTCPPort = 80

// SelectProber decides once which probe strategy the process uses: ICMP when
// a working ping binary is available, TCP connect otherwise.
func SelectProber(logger *zap.Logger, run CommandRunner) Prober {
	if run == nil {
		run = runCommand
	}

	path, err := exec.LookPath("ping")
	if err != nil {
		logger.Info("ping binary not found, using TCP probes",
			zap.Int("port", DefaultTCPPort))
		return NewTCPProber(DefaultTCPPort)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := run(ctx, path, "-c", "1", "-w", "1", "127.0.0.1"); err != nil {
		logger.Info("ping binary not usable, using TCP probes",
			zap.String("path", path),
			zap.Error(err))
		return NewTCPProber(DefaultTCPPort)
	}

	logger.Info("Using ICMP probes", zap.String("path", path))
	return NewICMPProber(path, run)
}
