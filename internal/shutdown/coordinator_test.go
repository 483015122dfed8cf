package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewCoordinator(t *testing.T) {
	c := NewCoordinator(zap.NewNop())

	if c.GetHandlerCount() != 0 {
		t.Errorf("Expected 0 handlers, got %d", c.GetHandlerCount())
	}
	if c.IsShuttingDown() {
		t.Error("Expected IsShuttingDown to be false initially")
	}
}

func TestRegisterHandler(t *testing.T) {
	c := NewCoordinator(zap.NewNop())

	c.RegisterFunc("poller", PhaseSources, func(ctx context.Context) error { return nil })

	if c.GetHandlerCount() != 1 {
		t.Errorf("Expected 1 handler, got %d", c.GetHandlerCount())
	}
	handlers := c.GetPhaseHandlers(PhaseSources)
	if len(handlers) != 1 || handlers[0] != "poller" {
		t.Errorf("Expected poller, got %v", handlers)
	}
}

func TestRegisterOrdersByPriority(t *testing.T) {
	c := NewCoordinator(zap.NewNop())
	noop := func(ctx context.Context) error { return nil }

	c.Register(&Handler{Name: "low", Phase: PhaseMonitor, Priority: 1, Fn: noop})
	c.Register(&Handler{Name: "high", Phase: PhaseMonitor, Priority: 10, Fn: noop})
	c.Register(&Handler{Name: "mid", Phase: PhaseMonitor, Priority: 5, Fn: noop})
	c.Register(&Handler{Name: "mid-2", Phase: PhaseMonitor, Priority: 5, Fn: noop})

	got := c.GetPhaseHandlers(PhaseMonitor)
	want := []string{"high", "mid", "mid-2", "low"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestUnregisterHandler(t *testing.T) {
	c := NewCoordinator(zap.NewNop())

	c.RegisterFunc("poller", PhaseSources, func(ctx context.Context) error { return nil })
	c.Unregister("poller")
	c.Unregister("missing")

	if c.GetHandlerCount() != 0 {
		t.Errorf("Expected 0 handlers after unregister, got %d", c.GetHandlerCount())
	}
}

func TestShutdownPhasesInOrder(t *testing.T) {
	c := NewCoordinator(zap.NewNop())

	var mu sync.Mutex
	var order []Phase
	record := func(p Phase) ShutdownFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, p)
			return nil
		}
	}

	// Registered out of order on purpose.
	c.RegisterFunc("cleanup", PhaseCleanup, record(PhaseCleanup))
	c.RegisterFunc("server", PhaseServer, record(PhaseServer))
	c.RegisterFunc("sources", PhaseSources, record(PhaseSources))
	c.RegisterFunc("radio", PhaseRadio, record(PhaseRadio))
	c.RegisterFunc("monitor", PhaseMonitor, record(PhaseMonitor))

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if !c.IsShuttingDown() {
		t.Error("Expected IsShuttingDown to be true after shutdown")
	}

	expected := []Phase{PhaseSources, PhaseMonitor, PhaseRadio, PhaseServer, PhaseCleanup}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(expected) {
		t.Fatalf("Expected %d phases, got %d", len(expected), len(order))
	}
	for i, p := range expected {
		if order[i] != p {
			t.Errorf("Phase %d: expected %s, got %s", i, p, order[i])
		}
	}
}

func TestShutdownHandlerError(t *testing.T) {
	c := NewCoordinator(zap.NewNop())
	expectedErr := errors.New("nmcli still running")

	var after atomic.Bool
	c.RegisterFunc("failing", PhaseSources, func(ctx context.Context) error { return expectedErr })
	c.RegisterFunc("server", PhaseServer, func(ctx context.Context) error {
		after.Store(true)
		return nil
	})

	err := c.Shutdown(context.Background())
	if !errors.Is(err, expectedErr) {
		t.Errorf("Expected error to contain %v, got %v", expectedErr, err)
	}
	if !after.Load() {
		t.Error("Later phases should run after a handler error")
	}
}

func TestShutdownHandlerTimeout(t *testing.T) {
	c := NewCoordinator(zap.NewNop())

	c.Register(&Handler{
		Name:    "stuck",
		Phase:   PhaseRadio,
		Timeout: 50 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			time.Sleep(time.Second)
			return nil
		},
	})

	start := time.Now()
	err := c.Shutdown(context.Background())
	if err == nil {
		t.Error("Expected handler timeout error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Shutdown took too long: %v", time.Since(start))
	}
}

func TestShutdownTotalTimeout(t *testing.T) {
	c := NewCoordinator(zap.NewNop())
	c.SetTotalTimeout(100 * time.Millisecond)

	var cleaned atomic.Bool
	c.RegisterFunc("slow", PhaseSources, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c.RegisterFunc("cleanup", PhaseCleanup, func(ctx context.Context) error {
		cleaned.Store(true)
		return nil
	})

	start := time.Now()
	if err := c.Shutdown(context.Background()); err == nil {
		t.Error("Expected timeout error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Shutdown took too long: %v", time.Since(start))
	}
	if cleaned.Load() {
		t.Error("Phases after the timeout should be skipped")
	}
}

func TestShutdownOnlyOnce(t *testing.T) {
	c := NewCoordinator(zap.NewNop())

	var count atomic.Int32
	c.RegisterFunc("counter", PhaseCleanup, func(ctx context.Context) error {
		count.Add(1)
		return nil
	})

	_ = c.Shutdown(context.Background())
	_ = c.Shutdown(context.Background())

	if count.Load() != 1 {
		t.Errorf("Expected handler to run once, ran %d times", count.Load())
	}
}

func TestProgressChannel(t *testing.T) {
	c := NewCoordinator(zap.NewNop())
	c.RegisterFunc("monitor", PhaseMonitor, func(ctx context.Context) error { return nil })

	progressCh := c.Progress()
	go func() { _ = c.Shutdown(context.Background()) }()

	select {
	case progress := <-progressCh:
		if progress.Handler != "monitor" || !progress.Completed {
			t.Errorf("Unexpected progress %+v", progress)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for progress update")
	}

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for done channel")
	}
	if _, ok := <-progressCh; ok {
		t.Error("Progress channel should be closed after shutdown")
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase    Phase
		expected string
	}{
		{PhaseSources, "Sources"},
		{PhaseMonitor, "Monitor"},
		{PhaseRadio, "Radio"},
		{PhaseServer, "Server"},
		{PhaseCleanup, "Cleanup"},
		{Phase(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.expected {
			t.Errorf("Phase(%d).String() = %s, want %s", tt.phase, got, tt.expected)
		}
	}
}
