package reachability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Settings configures one monitor lifetime.
type Settings struct {
	Target   string
	Timeout  time.Duration
	Interval time.Duration
	Retry    int
}

// Counters accumulate over one monitor lifetime and reset on every Start.
type Counters struct {
	TotalPings               uint64 `json:"total_pings"`
	TotalOK                  uint64 `json:"total_ok"`
	TotalNG                  uint64 `json:"total_ng"`
	ConsecutiveRoundFailures int    `json:"consecutive_round_failures"`
}

// Status is a copy of the monitor state at the time of an event.
type Status struct {
	Generation uint64   `json:"generation"`
	Running    bool     `json:"running"`
	Target     string   `json:"target"`
	Reachable  bool     `json:"reachable"`
	Counters   Counters `json:"counters"`
}

// Handler receives monitor events. Calls come from the probe goroutine and
// must not block for long.
type Handler interface {
	// OnReachabilityChanged is called each time the instantaneous
	// reachability flag flips.
	OnReachabilityChanged(st Status)
	// OnRoundFailed is called when every attempt of a round failed.
	OnRoundFailed(st Status)
}

// ProbeObserver sees every individual probe attempt.
type ProbeObserver interface {
	ObserveProbe(ok bool, elapsed time.Duration)
}

// Monitor probes a target host in the background. Each Start supersedes the
// previous loop; a superseded loop never emits.
type Monitor struct {
	prober   Prober
	handler  Handler
	observer ProbeObserver
	clock    clockwork.Clock
	logger   *zap.Logger

	generation atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	status Status

	wg sync.WaitGroup
}

// NewMonitor creates an idle monitor.
func NewMonitor(prober Prober, handler Handler, clk clockwork.Clock, logger *zap.Logger) *Monitor {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Monitor{
		prober:  prober,
		handler: handler,
		clock:   clk,
		logger:  logger.Named("reachability"),
	}
}

// SetObserver installs an observer for individual probe attempts. It must be
// called before the first Start.
func (m *Monitor) SetObserver(o ProbeObserver) {
	m.observer = o
}

// Start begins monitoring settings.Target, or fallback when the configured
// target is empty. With no usable target the monitor is stopped and Start
// returns false.
func (m *Monitor) Start(s Settings, fallback string) bool {
	target := s.Target
	if target == "" {
		target = fallback
	}
	if target == "" {
		m.logger.Debug("No probe target available, monitor stays stopped")
		m.Stop()
		return false
	}
	s.Target = target

	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	gen := m.generation.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.status = Status{
		Generation: gen,
		Running:    true,
		Target:     target,
		Reachable:  true,
	}
	m.mu.Unlock()

	m.logger.Info("Reachability monitor started",
		zap.String("target", target),
		zap.Duration("timeout", s.Timeout),
		zap.Duration("interval", s.Interval),
		zap.Int("retry", s.Retry),
		zap.String("prober", m.prober.Name()),
		zap.Uint64("generation", gen))

	m.wg.Add(1)
	go m.loop(ctx, gen, s)
	return true
}

// Stop supersedes the running loop. It does not wait for an in-flight probe
// to return; use Wait for that.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return
	}
	m.generation.Add(1)
	m.cancel()
	m.cancel = nil
	m.status.Running = false

	m.logger.Info("Reachability monitor stopped", zap.String("target", m.status.Target))
}

// Wait blocks until every loop started so far has exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Running reports whether a loop is current.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Running
}

// IsCurrent reports whether an event carrying generation gen comes from the
// loop that is currently running.
func (m *Monitor) IsCurrent(gen uint64) bool {
	return m.generation.Load() == gen
}

// Snapshot returns the current status.
func (m *Monitor) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) loop(ctx context.Context, gen uint64, s Settings) {
	defer m.wg.Done()

	for m.IsCurrent(gen) {
		round := runRound(ctx, m.prober, s.Target, s.Timeout, s.Retry, func(ok bool, elapsed time.Duration) bool {
			return m.recordAttempt(gen, ok, elapsed)
		})
		if !m.IsCurrent(gen) {
			return
		}

		if round.OK() {
			m.mu.Lock()
			m.status.Counters.ConsecutiveRoundFailures = 0
			m.mu.Unlock()
		} else if round.Attempts > 0 {
			m.roundFailed(gen)
		}

		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(s.Interval):
		}
	}
}

// recordAttempt updates counters and reports a flip of the reachability flag.
// It returns false once gen is stale.
func (m *Monitor) recordAttempt(gen uint64, ok bool, elapsed time.Duration) bool {
	if m.observer != nil {
		m.observer.ObserveProbe(ok, elapsed)
	}

	m.mu.Lock()
	if !m.IsCurrent(gen) {
		m.mu.Unlock()
		return false
	}
	c := &m.status.Counters
	c.TotalPings++
	if ok {
		c.TotalOK++
	} else {
		c.TotalNG++
	}
	flipped := m.status.Reachable != ok
	m.status.Reachable = ok
	st := m.status
	m.mu.Unlock()

	if flipped {
		m.logger.Debug("Reachability changed",
			zap.String("target", st.Target),
			zap.Bool("reachable", ok),
			zap.Uint64("total_pings", st.Counters.TotalPings))
		if m.handler != nil {
			m.handler.OnReachabilityChanged(st)
		}
	}
	return true
}

func (m *Monitor) roundFailed(gen uint64) {
	m.mu.Lock()
	if !m.IsCurrent(gen) {
		m.mu.Unlock()
		return
	}
	m.status.Counters.ConsecutiveRoundFailures++
	st := m.status
	m.mu.Unlock()

	m.logger.Warn("Probe round failed",
		zap.String("target", st.Target),
		zap.Int("consecutive_failures", st.Counters.ConsecutiveRoundFailures))
	if m.handler != nil {
		m.handler.OnRoundFailed(st)
	}
}
