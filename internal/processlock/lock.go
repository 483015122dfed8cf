// Package processlock keeps a single engine instance per data directory.
package processlock

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

const defaultPIDFile = "wifistate.pid"

// ErrAlreadyRunning is returned when a live process holds the lock.
var ErrAlreadyRunning = errors.New("another wifistate instance is already running")

// ProcessLock is a PID file in the data directory.
type ProcessLock struct {
	pidFile string
	logger  *zap.Logger
	held    bool
}

// New creates a lock for dataDir. Nothing is written until Acquire.
func New(dataDir string, logger *zap.Logger) *ProcessLock {
	return &ProcessLock{
		pidFile: filepath.Join(dataDir, defaultPIDFile),
		logger:  logger.Named("processlock"),
	}
}

// Path returns the PID file location.
func (p *ProcessLock) Path() string {
	return p.pidFile
}

// Acquire takes the lock. When statusAddr is non-empty the status server
// port must also be free. Stale PID files from dead processes are removed.
func (p *ProcessLock) Acquire(statusAddr string) error {
	if statusAddr != "" {
		if err := checkPort(statusAddr); err != nil {
			return fmt.Errorf("port check failed: %w", err)
		}
	}

	if _, err := os.Stat(p.pidFile); err == nil {
		pid, err := p.readPID()
		switch {
		case err != nil:
			p.logger.Warn("Unreadable PID file, removing stale lock",
				zap.String("pid_file", p.pidFile),
				zap.Error(err))
			_ = os.Remove(p.pidFile)
		case pid == os.Getpid():
			p.held = true
			return nil
		case isProcessRunning(pid):
			return fmt.Errorf("%w (PID: %d)", ErrAlreadyRunning, pid)
		default:
			p.logger.Warn("Removing stale PID file from dead process",
				zap.Int("pid", pid),
				zap.String("pid_file", p.pidFile))
			_ = os.Remove(p.pidFile)
		}
	}

	if err := os.MkdirAll(filepath.Dir(p.pidFile), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := p.writePID(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	p.held = true

	p.logger.Info("Process lock acquired",
		zap.Int("pid", os.Getpid()),
		zap.String("pid_file", p.pidFile))
	return nil
}

// Release removes the PID file if this process holds it.
func (p *ProcessLock) Release() error {
	if !p.held {
		return nil
	}
	p.held = false

	if err := os.Remove(p.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	p.logger.Info("Process lock released", zap.String("pid_file", p.pidFile))
	return nil
}

func checkPort(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if port == "0" {
		return nil
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return fmt.Errorf("port %s is already in use by another process", addr)
	}
	return ln.Close()
}

func (p *ProcessLock) readPID() (int, error) {
	data, err := os.ReadFile(p.pidFile)
	if err != nil {
		return 0, err
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in file: %q", pidStr)
	}
	return pid, nil
}

func (p *ProcessLock) writePID() error {
	return os.WriteFile(p.pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix; signal 0 probes existence.
	return process.Signal(syscall.Signal(0)) == nil
}
