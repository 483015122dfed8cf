package radio

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newGuard(max int) (*CycleGuard, clockwork.FakeClock) {
	clk := clockwork.NewFakeClockAt(time.Unix(0, 0))
	g := NewCycleGuard(GuardLimits{
		MaxCycles: max,
		Window:    30 * time.Minute,
		Cooldown:  time.Hour,
	}, clk, zap.NewNop())
	return g, clk
}

func TestGuardUnlimited(t *testing.T) {
	g, _ := newGuard(0)
	for i := 0; i < 10; i++ {
		assert.True(t, g.Allow("unreachable"))
	}
	st := g.Stats()
	assert.EqualValues(t, 10, st.Total)
	assert.False(t, st.Blocked)
}

func TestGuardAllowsUpToLimit(t *testing.T) {
	g, _ := newGuard(3)
	assert.True(t, g.Allow("unreachable"))
	assert.True(t, g.Allow("unreachable"))
	assert.True(t, g.Allow("unreachable"))
	assert.Equal(t, 3, g.Stats().Recent)
}

func TestGuardDetectsLoop(t *testing.T) {
	g, clk := newGuard(3)

	for i := 0; i < 3; i++ {
		assert.True(t, g.Allow("unreachable"))
	}
	assert.False(t, g.Allow("unreachable"), "fourth cycle inside the window is blocked")

	st := g.Stats()
	assert.True(t, st.Blocked)
	assert.Equal(t, 4, st.Recent)
	assert.Equal(t, time.Hour, st.CooldownRemaining)

	clk.Advance(30 * time.Minute)
	assert.False(t, g.Allow("unreachable"), "still cooling down")

	clk.Advance(31 * time.Minute)
	assert.True(t, g.Allow("unreachable"))
	assert.False(t, g.Stats().Blocked)
	assert.EqualValues(t, 5, g.Stats().Total, "blocked attempts during cooldown are not counted")
}

func TestGuardForgetsOldCycles(t *testing.T) {
	g, clk := newGuard(2)
	assert.True(t, g.Allow("unreachable"))
	assert.True(t, g.Allow("unreachable"))

	clk.Advance(31 * time.Minute)
	assert.Equal(t, 0, g.Stats().Recent)
	assert.True(t, g.Allow("unreachable"))
	assert.True(t, g.Allow("unreachable"))
}

func TestGuardSetLimitsAndReset(t *testing.T) {
	g, _ := newGuard(1)
	assert.True(t, g.Allow("unreachable"))
	assert.False(t, g.Allow("unreachable"))

	g.SetLimits(GuardLimits{MaxCycles: 0, Window: time.Minute})
	assert.True(t, g.Allow("unreachable"))

	g.SetLimits(GuardLimits{MaxCycles: 1, Window: time.Hour, Cooldown: time.Hour})
	g.Reset()
	assert.True(t, g.Allow("unreachable"))
	assert.Equal(t, 1, g.Stats().Recent)
}
