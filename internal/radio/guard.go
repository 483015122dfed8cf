package radio

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// GuardLimits configures cycle loop detection. MaxCycles 0 disables the guard.
type GuardLimits struct {
	MaxCycles int
	Window    time.Duration
	Cooldown  time.Duration
}

// GuardStats describes recent automatic cycles.
type GuardStats struct {
	Recent            int           `json:"recent"`
	Total             int64         `json:"total"`
	Blocked           bool          `json:"blocked"`
	CooldownRemaining time.Duration `json:"cooldown_remaining,omitempty"`
}

// CycleGuard stops automatic radio cycles from looping when the network stays
// unreachable after every re-enable.
type CycleGuard struct {
	mu     sync.Mutex
	limits GuardLimits
	clock  clockwork.Clock
	logger *zap.Logger

	cycles    []time.Time
	total     int64
	blocked   bool
	blockedAt time.Time
}

// NewCycleGuard creates a guard with the given limits.
func NewCycleGuard(limits GuardLimits, clk clockwork.Clock, logger *zap.Logger) *CycleGuard {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &CycleGuard{
		limits: limits,
		clock:  clk,
		logger: logger.Named("cycle-guard"),
	}
}

// SetLimits replaces the limits. Recorded cycles are kept.
func (g *CycleGuard) SetLimits(limits GuardLimits) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits = limits
	if limits.MaxCycles == 0 {
		g.blocked = false
	}
}

// Allow records an automatic cycle and reports whether it may proceed.
func (g *CycleGuard) Allow(reason string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if g.limits.MaxCycles == 0 {
		g.total++
		return true
	}

	if g.blocked {
		end := g.blockedAt.Add(g.limits.Cooldown)
		if now.Before(end) {
			g.logger.Warn("Radio cycle blocked, cooling down after repeated cycles",
				zap.Duration("remaining_cooldown", end.Sub(now)))
			return false
		}
		g.blocked = false
		g.cycles = nil
		g.logger.Info("Cooldown expired, radio cycles allowed again")
	}

	g.prune(now)
	g.cycles = append(g.cycles, now)
	g.total++

	if len(g.cycles) > g.limits.MaxCycles {
		g.blocked = true
		g.blockedAt = now
		g.logger.Error("Radio cycle loop detected",
			zap.Int("cycles", len(g.cycles)),
			zap.Duration("window", g.limits.Window),
			zap.Duration("cooldown", g.limits.Cooldown))
		return false
	}

	g.logger.Debug("Radio cycle recorded",
		zap.String("reason", reason),
		zap.Int("recent", len(g.cycles)),
		zap.Int("max", g.limits.MaxCycles))
	return true
}

// Stats returns the current counters.
func (g *CycleGuard) Stats() GuardStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	st := GuardStats{Total: g.total, Blocked: g.blocked}
	cutoff := now.Add(-g.limits.Window)
	for _, t := range g.cycles {
		if t.After(cutoff) {
			st.Recent++
		}
	}
	if g.blocked {
		if remaining := g.blockedAt.Add(g.limits.Cooldown).Sub(now); remaining > 0 {
			st.CooldownRemaining = remaining
		}
	}
	return st
}

// Reset forgets recorded cycles and any cooldown.
func (g *CycleGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cycles = nil
	g.blocked = false
	g.blockedAt = time.Time{}
}

func (g *CycleGuard) prune(now time.Time) {
	cutoff := now.Add(-g.limits.Window)
	kept := g.cycles[:0]
	for _, t := range g.cycles {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.cycles = kept
}
