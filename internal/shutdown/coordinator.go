// Package shutdown runs registered cleanup handlers in ordered phases, each
// under its own timeout.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"wifistate-go/internal/config"
)

// Phase orders shutdown work. Lower phases run first.
type Phase int

const (
	// PhaseSources stops signal sources so no new input arrives.
	PhaseSources Phase = iota
	// PhaseMonitor stops the controller loop and the reachability monitor.
	PhaseMonitor
	// PhaseRadio cancels pending radio timers.
	PhaseRadio
	// PhaseServer closes the status server and its streams.
	PhaseServer
	// PhaseCleanup clears the indicator, flushes logs and releases locks.
	PhaseCleanup
)

var phaseOrder = []Phase{PhaseSources, PhaseMonitor, PhaseRadio, PhaseServer, PhaseCleanup}

func (p Phase) String() string {
	switch p {
	case PhaseSources:
		return "Sources"
	case PhaseMonitor:
		return "Monitor"
	case PhaseRadio:
		return "Radio"
	case PhaseServer:
		return "Server"
	case PhaseCleanup:
		return "Cleanup"
	default:
		return "Unknown"
	}
}

// ShutdownFunc performs one piece of shutdown work within ctx.
type ShutdownFunc func(ctx context.Context) error

// Handler is a registered unit of shutdown work.
type Handler struct {
	Name     string
	Phase    Phase
	Priority int // higher runs first within a phase
	Fn       ShutdownFunc
	Timeout  time.Duration // 0 = coordinator default
}

// Progress reports the outcome of one handler.
type Progress struct {
	Phase     Phase
	Handler   string
	Completed bool
	Error     error
	Duration  time.Duration
}

// Coordinator runs handlers phase by phase. Shutdown executes once.
type Coordinator struct {
	mu       sync.RWMutex
	handlers map[Phase][]*Handler
	logger   *zap.Logger

	shutdownOnce   sync.Once
	shutdownDone   chan struct{}
	shutdownErr    error
	isShuttingDown atomic.Bool

	defaultTimeout time.Duration
	totalTimeout   time.Duration

	progressCh chan Progress
}

// NewCoordinator creates a coordinator with the default timeouts.
func NewCoordinator(logger *zap.Logger) *Coordinator {
	return &Coordinator{
		handlers:       make(map[Phase][]*Handler),
		logger:         logger.Named("shutdown"),
		shutdownDone:   make(chan struct{}),
		defaultTimeout: config.ShutdownHandlerTimeout,
		totalTimeout:   config.ShutdownTimeout,
		progressCh:     make(chan Progress, 100),
	}
}

// Register adds h.
func (c *Coordinator) Register(h *Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h.Timeout == 0 {
		h.Timeout = c.defaultTimeout
	}

	handlers := append(c.handlers[h.Phase], h)
	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].Priority > handlers[j].Priority
	})
	c.handlers[h.Phase] = handlers

	c.logger.Debug("Registered shutdown handler",
		zap.String("name", h.Name),
		zap.String("phase", h.Phase.String()),
		zap.Int("priority", h.Priority))
}

// RegisterFunc registers fn with default priority and timeout.
func (c *Coordinator) RegisterFunc(name string, phase Phase, fn ShutdownFunc) {
	c.Register(&Handler{Name: name, Phase: phase, Fn: fn})
}

// Unregister removes the first handler called name.
func (c *Coordinator) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for phase, handlers := range c.handlers {
		for i, h := range handlers {
			if h.Name == name {
				c.handlers[phase] = append(handlers[:i], handlers[i+1:]...)
				return
			}
		}
	}
}

// IsShuttingDown reports whether Shutdown has been called.
func (c *Coordinator) IsShuttingDown() bool {
	return c.isShuttingDown.Load()
}

// Done is closed once shutdown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.shutdownDone
}

// Progress delivers one entry per executed handler. It is closed when
// shutdown finishes.
func (c *Coordinator) Progress() <-chan Progress {
	return c.progressCh
}

// Shutdown runs every phase in order. Later calls return the first result.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.isShuttingDown.Store(true)
		c.shutdownErr = c.executeShutdown(ctx)
		close(c.shutdownDone)
		close(c.progressCh)
	})
	return c.shutdownErr
}

func (c *Coordinator) executeShutdown(ctx context.Context) error {
	c.logger.Info("Starting coordinated shutdown")
	start := time.Now()

	c.mu.RLock()
	total := c.totalTimeout
	c.mu.RUnlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, total)
	defer cancel()

	var errs []error
	for _, phase := range phaseOrder {
		if err := c.executePhase(shutdownCtx, phase); err != nil {
			errs = append(errs, fmt.Errorf("phase %s: %w", phase, err))
		}
		if shutdownCtx.Err() != nil {
			c.logger.Warn("Shutdown timeout reached, skipping remaining phases",
				zap.Duration("elapsed", time.Since(start)))
			errs = append(errs, fmt.Errorf("shutdown timeout: %w", shutdownCtx.Err()))
			break
		}
	}

	if len(errs) > 0 {
		c.logger.Warn("Shutdown completed with errors",
			zap.Duration("duration", time.Since(start)),
			zap.Int("error_count", len(errs)))
		return errors.Join(errs...)
	}

	c.logger.Info("Shutdown completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func (c *Coordinator) executePhase(ctx context.Context, phase Phase) error {
	c.mu.RLock()
	handlers := append([]*Handler(nil), c.handlers[phase]...)
	c.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	c.logger.Debug("Executing shutdown phase",
		zap.String("phase", phase.String()),
		zap.Int("handler_count", len(handlers)))

	var errs []error
	for _, h := range handlers {
		if err := c.executeHandler(ctx, h); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) executeHandler(ctx context.Context, h *Handler) error {
	start := time.Now()

	handlerCtx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.Fn(handlerCtx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-handlerCtx.Done():
		err = fmt.Errorf("handler timeout after %v", h.Timeout)
	}
	duration := time.Since(start)

	select {
	case c.progressCh <- Progress{
		Phase:     h.Phase,
		Handler:   h.Name,
		Completed: err == nil,
		Error:     err,
		Duration:  duration,
	}:
	default:
	}

	if err != nil {
		c.logger.Warn("Shutdown handler failed",
			zap.String("name", h.Name),
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}

	c.logger.Debug("Shutdown handler completed",
		zap.String("name", h.Name),
		zap.Duration("duration", duration))
	return nil
}

// SetTotalTimeout bounds the whole shutdown sequence.
func (c *Coordinator) SetTotalTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalTimeout = d
}

// SetDefaultTimeout sets the timeout of handlers registered without one.
func (c *Coordinator) SetDefaultTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultTimeout = d
}

// GetHandlerCount returns the number of registered handlers.
func (c *Coordinator) GetHandlerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, handlers := range c.handlers {
		count += len(handlers)
	}
	return count
}

// GetPhaseHandlers returns the handler names of phase in execution order.
func (c *Coordinator) GetPhaseHandlers(phase Phase) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	for _, h := range c.handlers[phase] {
		names = append(names, h.Name)
	}
	return names
}
